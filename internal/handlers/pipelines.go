package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cs2predict/predict-api/internal/scheduler"
)

// ListPipelines returns the scheduler state of every pipeline
// @Summary List Pipelines
// @Tags Pipelines
// @Produce json
// @Success 200 {array} models.PipelineStatus
// @Failure 503 {object} map[string]string "Scheduler disabled"
// @Router /pipelines [get]
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "Scheduler disabled")
		return
	}
	h.jsonResponse(w, http.StatusOK, h.scheduler.Status())
}

// RunPipeline starts a pipeline outside its schedule. The chain runs in the
// background under the pipeline's overlap policy.
// @Summary Trigger Pipeline
// @Tags Pipelines
// @Produce json
// @Param id path string true "Pipeline name"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string "Unknown pipeline"
// @Failure 409 {object} map[string]string "Already running"
// @Failure 503 {object} map[string]string "Scheduler stopped"
// @Router /pipelines/{id}/run [post]
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "Scheduler disabled")
		return
	}

	id := chi.URLParam(r, "id")
	err := h.scheduler.Trigger(id)
	switch {
	case err == nil:
		h.log(r).Infow("Pipeline triggered", "pipeline", id)
		h.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "accepted", "pipeline": id})
	case errors.Is(err, scheduler.ErrUnknownPipeline):
		h.errorResponse(w, http.StatusNotFound, "Unknown pipeline")
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		h.errorResponse(w, http.StatusConflict, "Pipeline is already running")
	case errors.Is(err, scheduler.ErrStopped):
		h.errorResponse(w, http.StatusServiceUnavailable, "Scheduler stopped")
	default:
		h.log(r).Errorw("Failed to trigger pipeline", "error", err, "pipeline", id)
		h.errorResponse(w, http.StatusInternalServerError, "Server error")
	}
}
