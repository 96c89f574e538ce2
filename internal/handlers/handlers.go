package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/logic"
	"github.com/cs2predict/predict-api/internal/models"
)

// PipelineScheduler is the part of the scheduler the API exposes.
type PipelineScheduler interface {
	Status() []models.PipelineStatus
	Trigger(id string) error
}

// StorePinger is satisfied by store.Store.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Config struct {
	Store     StorePinger
	Redis     RedisPinger // nil when caching is disabled
	Scheduler PipelineScheduler
	Logger    *zap.Logger
	// Services
	Evaluation logic.EvaluationService
	Dataset    logic.DatasetService
}

type Handler struct {
	store      StorePinger
	redis      RedisPinger
	scheduler  PipelineScheduler
	logger     *zap.Logger
	validator  *validator.Validate
	evaluation logic.EvaluationService
	dataset    logic.DatasetService
}

func New(cfg Config) *Handler {
	return &Handler{
		store:      cfg.Store,
		redis:      cfg.Redis,
		scheduler:  cfg.Scheduler,
		logger:     cfg.Logger,
		validator:  validator.New(),
		evaluation: cfg.Evaluation,
		dataset:    cfg.Dataset,
	}
}
