package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cs2predict/predict-api/internal/logic"
)

// ListModels returns the model registry
// @Summary List Models
// @Tags Models
// @Produce json
// @Success 200 {array} models.Model
// @Failure 500 {object} map[string]string "Server error"
// @Router /models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.evaluation.ListModels(r.Context())
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to list models")
		return
	}
	h.jsonResponse(w, http.StatusOK, list)
}

// GetTrainingMetrics returns the confusion matrix stored by the training job,
// as a one-row array in the shape the dashboard reads.
// @Summary Get Training Metrics
// @Tags Models
// @Produce json
// @Param name path string true "Model name"
// @Success 200 {array} logic.TrainingReport
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /metrics/{name} [get]
func (h *Handler) GetTrainingMetrics(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		h.errorResponse(w, http.StatusBadRequest, "Model name is required")
		return
	}

	report, err := h.evaluation.GetTrainingMetrics(r.Context(), name)
	if err != nil {
		var partial interface{}
		if report != nil {
			partial = []*logic.TrainingReport{report}
		}
		h.serviceError(w, r, err, partial, "Failed to get training metrics", "model", name)
		return
	}
	h.jsonResponse(w, http.StatusOK, []*logic.TrainingReport{report})
}

// GetModelEvaluation scores a model against the outcomes played since
// @Summary Get Live Evaluation
// @Tags Models
// @Produce json
// @Param modelID path string true "Model ID"
// @Success 200 {object} stats.Evaluation
// @Failure 500 {object} map[string]string "Server error"
// @Router /models/{modelID}/evaluation [get]
func (h *Handler) GetModelEvaluation(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.modelIDParam(w, r, "modelID")
	if !ok {
		return
	}

	ev, err := h.evaluation.GetModelMetrics(r.Context(), modelID)
	if err != nil {
		var partial interface{}
		if ev != nil {
			partial = ev
		}
		h.serviceError(w, r, err, partial, "Failed to evaluate model", "modelID", modelID)
		return
	}
	h.jsonResponse(w, http.StatusOK, ev)
}

// GetUpcomingMatches returns upcoming and recent matches with the model's predictions
// @Summary Get Upcoming Matches
// @Tags Matches
// @Produce json
// @Param modelID path string true "Model ID"
// @Success 200 {array} models.UpcomingMatch
// @Failure 500 {object} map[string]string "Server error"
// @Router /upcoming/{modelID} [get]
func (h *Handler) GetUpcomingMatches(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.modelIDParam(w, r, "modelID")
	if !ok {
		return
	}

	matches, err := h.evaluation.GetUpcomingMatches(r.Context(), modelID)
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to get upcoming matches", "modelID", modelID)
		return
	}
	h.jsonResponse(w, http.StatusOK, matches)
}

// GetScoredRecords returns the raw prediction/outcome pairs of a model
// @Summary Get Scored Records
// @Tags Matches
// @Produce json
// @Param modelID path string true "Model ID"
// @Success 200 {array} models.ScoredRecord
// @Failure 500 {object} map[string]string "Server error"
// @Router /upcomingstats/{modelID} [get]
func (h *Handler) GetScoredRecords(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.modelIDParam(w, r, "modelID")
	if !ok {
		return
	}

	records, err := h.evaluation.GetScoredRecords(r.Context(), modelID)
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to get scored records", "modelID", modelID)
		return
	}
	h.jsonResponse(w, http.StatusOK, records)
}
