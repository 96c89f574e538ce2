package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predict_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Routes builds the API router.
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/prometheus", promhttp.Handler())

	r.Get("/models", h.ListModels)
	r.Get("/models/{modelID}/evaluation", h.GetModelEvaluation)
	r.Get("/metrics/{name}", h.GetTrainingMetrics)
	r.Get("/upcoming/{modelID}", h.GetUpcomingMatches)
	r.Get("/upcomingstats/{modelID}", h.GetScoredRecords)

	r.Route("/datasets/{set}", func(r chi.Router) {
		r.Get("/stats/{modelID}", h.GetDatasetStats)
		r.Get("/vectors", h.GetFeatureVectors)
		r.Get("/distributions", h.GetFeatureDistributions)
		r.Get("/correlations", h.GetCorrelations)
	})

	// Legacy dashboard paths
	r.Get("/trainingdatasetstats/{modelID}", h.GetTrainingDatasetStats)
	r.Get("/livedatasetstats/{modelID}", h.GetLiveDatasetStats)
	r.Get("/livefeaturevectors", h.GetLiveFeatureVectors)

	r.Get("/pipelines", h.ListPipelines)
	r.Post("/pipelines/{id}/run", h.RunPipeline)

	return r
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
