package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/observability"
	"github.com/cs2predict/predict-api/internal/stats"
	"github.com/cs2predict/predict-api/internal/store"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]bool{
		"store": h.store.Ping(ctx) == nil,
	}
	if h.redis != nil {
		checks["redis"] = h.redis.Ping(ctx).Err() == nil
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	})
}

// RequestIDMiddleware tags every request with a correlation id. A valid
// incoming X-Request-ID is kept, anything else is replaced. The request
// context also carries a logger bound to the id.
func (h *Handler) RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = observability.IntoContext(ctx, h.logger.With(zap.String("requestId", id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the correlation id attached by RequestIDMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// log returns the request-scoped logger.
func (h *Handler) log(r *http.Request) *zap.SugaredLogger {
	return observability.FromContext(r.Context()).Sugar()
}

// modelIDParam reads and validates a model identifier from the path.
func (h *Handler) modelIDParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if err := h.validator.Var(id, "required,max=128,printascii"); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid "+name)
		return "", false
	}
	return id, true
}

// optionalModelID reads ?model_id=. Absent means every model.
func (h *Handler) optionalModelID(w http.ResponseWriter, r *http.Request) (*string, bool) {
	id := r.URL.Query().Get("model_id")
	if id == "" {
		return nil, true
	}
	if err := h.validator.Var(id, "max=128,printascii"); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid model_id")
		return nil, false
	}
	return &id, true
}

func (h *Handler) setParam(w http.ResponseWriter, r *http.Request) (store.Set, bool) {
	set, err := store.ParseSet(chi.URLParam(r, "set"))
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Unknown dataset, expected training or live")
		return "", false
	}
	return set, true
}

// serviceError maps a service failure onto a response. Insufficient data is
// not a failure: it is reported as a 200 with status insufficient_data and
// whatever partial payload the service returned.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, err error, partial interface{}, msg string, keysAndValues ...interface{}) {
	switch {
	case errors.Is(err, stats.ErrInsufficientData):
		body := map[string]interface{}{"status": "insufficient_data"}
		if partial != nil {
			body["data"] = partial
		}
		h.jsonResponse(w, http.StatusOK, body)
	case errors.Is(err, store.ErrNotFound):
		h.errorResponse(w, http.StatusNotFound, "Not found")
	default:
		h.log(r).Errorw(msg, append([]interface{}{"error", err}, keysAndValues...)...)
		h.errorResponse(w, http.StatusInternalServerError, "Server error")
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
