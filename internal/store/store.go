// Package store is the read side of the prediction database. Every lookup
// goes through a fixed, parameterized query template; callers never supply
// SQL or table names.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cs2predict/predict-api/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUnknownSet = errors.New("unknown dataset")
)

// Set selects one of the two datasets: historical matches used for training,
// or upcoming matches scored live.
type Set string

const (
	Training Set = "training"
	Live     Set = "live"
)

// ParseSet validates a dataset name from a request.
func ParseSet(s string) (Set, error) {
	switch Set(s) {
	case Training, Live:
		return Set(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSet, s)
}

// Reader is the query interface consumed by the evaluation services.
type Reader interface {
	ListModels(ctx context.Context) ([]models.Model, error)
	GetModelByName(ctx context.Context, name string) (*models.TrainingMetrics, error)
	QueryScoredRecords(ctx context.Context, modelID string) ([]models.ScoredRecord, error)
	QueryFeatureVectors(ctx context.Context, set Set, modelID *string) ([]models.FeatureRecord, error)
	ListUpcomingMatches(ctx context.Context, modelID string) ([]models.UpcomingMatch, error)
	MatchSummary(ctx context.Context, set Set) (models.MatchSummary, error)
	FeatureRowCount(ctx context.Context, set Set, modelID string) (int64, error)
	// FirstFeatureRow returns nil without error when the set has no rows for modelID.
	FirstFeatureRow(ctx context.Context, set Set, modelID string) (models.FeatureRecord, error)
	Ping(ctx context.Context) error
	Close()
}

// rowScanner is satisfied by *sql.Row and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// resultRows hides the differences between database/sql and pgx row sets.
type resultRows interface {
	Next() bool
	Scan(dest ...any) error
	// Values returns the current row decoded to plain Go values.
	Values() ([]any, error)
	Columns() []string
	Err() error
	Close()
}

// backend is one database driver.
type backend interface {
	query(ctx context.Context, q string, args ...any) (resultRows, error)
	queryRow(ctx context.Context, q string, args ...any) rowScanner
	ping(ctx context.Context) error
	close()
}

// Store implements Reader on top of a backend.
type Store struct {
	db      backend
	queries queries
}

// Open connects to the configured driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*Store, error) {
	var (
		db  backend
		err error
	)
	switch driver {
	case "mysql":
		db, err = openMySQL(dsn, maxOpenConns)
	case "postgres":
		db, err = openPostgres(ctx, dsn, maxOpenConns)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	s := newStore(db, driver)
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return s, nil
}

func newStore(db backend, driver string) *Store {
	q := mysqlQueries
	if driver == "postgres" {
		q = mysqlQueries.rebind()
	}
	return &Store{db: db, queries: q}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.ping(ctx) }

func (s *Store) Close() { s.db.close() }

func (s *Store) ListModels(ctx context.Context) ([]models.Model, error) {
	rows, err := s.db.query(ctx, s.queries.listModels)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := []models.Model{}
	for rows.Next() {
		var m models.Model
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetModelByName(ctx context.Context, name string) (*models.TrainingMetrics, error) {
	var m models.TrainingMetrics
	err := s.db.queryRow(ctx, s.queries.modelByName, name).Scan(
		&m.ModelID, &m.ModelName,
		&m.TruePositive, &m.TrueNegative, &m.FalsePositive, &m.FalseNegative,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("model %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get model %q: %w", name, err)
	}
	return &m, nil
}

func (s *Store) QueryScoredRecords(ctx context.Context, modelID string) ([]models.ScoredRecord, error) {
	rows, err := s.db.query(ctx, s.queries.scoredRecords, modelID)
	if err != nil {
		return nil, fmt.Errorf("query scored records: %w", err)
	}
	defer rows.Close()

	out := []models.ScoredRecord{}
	for rows.Next() {
		var r models.ScoredRecord
		if err := rows.Scan(&r.PredictedLabel, &r.ActualLabel, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan scored record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListUpcomingMatches(ctx context.Context, modelID string) ([]models.UpcomingMatch, error) {
	rows, err := s.db.query(ctx, s.queries.upcomingMatches, modelID)
	if err != nil {
		return nil, fmt.Errorf("list upcoming matches: %w", err)
	}
	defer rows.Close()

	out := []models.UpcomingMatch{}
	for rows.Next() {
		var m models.UpcomingMatch
		if err := rows.Scan(
			&m.MatchID, &m.TeamA, &m.TeamB, &m.Date,
			&m.TournamentName, &m.TournamentType, &m.BestOf, &m.ActualOutcome,
			&m.Prediction, &m.Confidence, &m.ModelID,
		); err != nil {
			return nil, fmt.Errorf("scan upcoming match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) QueryFeatureVectors(ctx context.Context, set Set, modelID *string) ([]models.FeatureRecord, error) {
	q, err := s.queries.forSet(set)
	if err != nil {
		return nil, err
	}

	var rows resultRows
	if modelID != nil {
		rows, err = s.db.query(ctx, q.vectorsByModel, *modelID)
	} else {
		rows, err = s.db.query(ctx, q.vectors)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s feature vectors: %w", set, err)
	}
	defer rows.Close()

	out := []models.FeatureRecord{}
	for rows.Next() {
		rec, err := readRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) MatchSummary(ctx context.Context, set Set) (models.MatchSummary, error) {
	q, err := s.queries.forSet(set)
	if err != nil {
		return models.MatchSummary{}, err
	}

	var (
		sum              models.MatchSummary
		minDate, maxDate sql.NullTime
	)
	if err := s.db.queryRow(ctx, q.matchSummary).Scan(&sum.RowCount, &minDate, &maxDate); err != nil {
		return models.MatchSummary{}, fmt.Errorf("%s match summary: %w", set, err)
	}
	sum.MinDate = nullTime(minDate)
	sum.MaxDate = nullTime(maxDate)
	return sum, nil
}

func (s *Store) FeatureRowCount(ctx context.Context, set Set, modelID string) (int64, error) {
	q, err := s.queries.forSet(set)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.queryRow(ctx, q.featureCount, modelID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s feature row count: %w", set, err)
	}
	return n, nil
}

func (s *Store) FirstFeatureRow(ctx context.Context, set Set, modelID string) (models.FeatureRecord, error) {
	q, err := s.queries.forSet(set)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.query(ctx, q.firstFeatureRow, modelID)
	if err != nil {
		return nil, fmt.Errorf("%s first feature row: %w", set, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return readRecord(rows)
}

func readRecord(rows resultRows) (models.FeatureRecord, error) {
	vals, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("read feature row: %w", err)
	}
	cols := rows.Columns()
	rec := make(models.FeatureRecord, len(vals))
	for i, v := range vals {
		rec[i] = models.FeatureValue{Name: cols[i], Value: v}
	}
	return rec, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
