package handlers

import (
	"net/http"

	"github.com/cs2predict/predict-api/internal/store"
)

// GetDatasetStats returns row counts and the date range of a dataset
// @Summary Get Dataset Stats
// @Description All-or-nothing: if any of the underlying queries fails the whole request fails.
// @Tags Datasets
// @Produce json
// @Param set path string true "training or live"
// @Param modelID path string true "Model ID"
// @Success 200 {object} models.DatasetStats
// @Failure 400 {object} map[string]string "Unknown dataset"
// @Failure 500 {object} map[string]string "Server error"
// @Router /datasets/{set}/stats/{modelID} [get]
func (h *Handler) GetDatasetStats(w http.ResponseWriter, r *http.Request) {
	set, ok := h.setParam(w, r)
	if !ok {
		return
	}
	h.datasetStats(w, r, set)
}

// GetTrainingDatasetStats is the legacy path for training dataset stats
// @Router /trainingdatasetstats/{modelID} [get]
func (h *Handler) GetTrainingDatasetStats(w http.ResponseWriter, r *http.Request) {
	h.datasetStats(w, r, store.Training)
}

// GetLiveDatasetStats is the legacy path for live dataset stats
// @Router /livedatasetstats/{modelID} [get]
func (h *Handler) GetLiveDatasetStats(w http.ResponseWriter, r *http.Request) {
	h.datasetStats(w, r, store.Live)
}

func (h *Handler) datasetStats(w http.ResponseWriter, r *http.Request, set store.Set) {
	modelID, ok := h.modelIDParam(w, r, "modelID")
	if !ok {
		return
	}

	ds, err := h.dataset.GetDatasetStats(r.Context(), set, modelID)
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to get dataset stats", "set", set, "modelID", modelID)
		return
	}
	h.jsonResponse(w, http.StatusOK, ds)
}

// GetFeatureVectors returns raw feature rows of a dataset
// @Summary Get Feature Vectors
// @Tags Datasets
// @Produce json
// @Param set path string true "training or live"
// @Param model_id query string false "Restrict to one model"
// @Success 200 {array} object
// @Failure 500 {object} map[string]string "Server error"
// @Router /datasets/{set}/vectors [get]
func (h *Handler) GetFeatureVectors(w http.ResponseWriter, r *http.Request) {
	set, ok := h.setParam(w, r)
	if !ok {
		return
	}
	h.featureVectors(w, r, set)
}

// GetLiveFeatureVectors is the legacy path for live feature vectors
// @Router /livefeaturevectors [get]
func (h *Handler) GetLiveFeatureVectors(w http.ResponseWriter, r *http.Request) {
	h.featureVectors(w, r, store.Live)
}

func (h *Handler) featureVectors(w http.ResponseWriter, r *http.Request, set store.Set) {
	modelID, ok := h.optionalModelID(w, r)
	if !ok {
		return
	}

	rows, err := h.dataset.GetFeatureVectors(r.Context(), set, modelID)
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to get feature vectors", "set", set)
		return
	}
	h.jsonResponse(w, http.StatusOK, rows)
}

// GetFeatureDistributions summarizes every numeric feature of a dataset
// @Summary Get Feature Distributions
// @Tags Datasets
// @Produce json
// @Param set path string true "training or live"
// @Param model_id query string false "Restrict to one model"
// @Success 200 {array} stats.FeatureDistribution
// @Failure 500 {object} map[string]string "Server error"
// @Router /datasets/{set}/distributions [get]
func (h *Handler) GetFeatureDistributions(w http.ResponseWriter, r *http.Request) {
	set, ok := h.setParam(w, r)
	if !ok {
		return
	}
	modelID, ok := h.optionalModelID(w, r)
	if !ok {
		return
	}

	dists, err := h.dataset.GetFeatureDistributions(r.Context(), set, modelID)
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to get feature distributions", "set", set)
		return
	}
	h.jsonResponse(w, http.StatusOK, dists)
}

// GetCorrelations returns the Spearman rank correlation matrix of a dataset
// @Summary Get Feature Correlations
// @Tags Datasets
// @Produce json
// @Param set path string true "training or live"
// @Param model_id query string false "Restrict to one model"
// @Success 200 {object} stats.CorrelationMatrix
// @Failure 500 {object} map[string]string "Server error"
// @Router /datasets/{set}/correlations [get]
func (h *Handler) GetCorrelations(w http.ResponseWriter, r *http.Request) {
	set, ok := h.setParam(w, r)
	if !ok {
		return
	}
	modelID, ok := h.optionalModelID(w, r)
	if !ok {
		return
	}

	matrix, err := h.dataset.GetCorrelations(r.Context(), set, modelID)
	if err != nil {
		h.serviceError(w, r, err, nil, "Failed to compute correlations", "set", set)
		return
	}
	h.jsonResponse(w, http.StatusOK, matrix)
}
