package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-screener/internal/api/handlers"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

// Pinger reports dependency health
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds everything the router wires
type RouterDeps struct {
	Patterns   *handlers.PatternHandler
	RunLimiter RunLimiter        // nil disables run throttling
	Metrics    *metrics.Registry // nil disables /metrics
	Database   Pinger            // nil skips the database check in /health
	Logger     *logger.Logger
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(deps RouterDeps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(deps.Database)).Methods("GET")
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	ph := deps.Patterns

	// Evaluation endpoints (throttled)
	runs := api.NewRoute().Subrouter()
	runs.HandleFunc("/patterns/preview", ph.PreviewPattern).Methods("POST")
	runs.HandleFunc("/patterns/{id}/run", ph.RunPattern).Methods("POST", "GET")
	if deps.RunLimiter != nil {
		runs.Use(throttleMiddleware(deps.RunLimiter, log))
	}

	// Pattern endpoints
	api.HandleFunc("/patterns", ph.ListPatterns).Methods("GET")
	api.HandleFunc("/patterns", ph.CreatePattern).Methods("POST")
	api.HandleFunc("/patterns/{id}", ph.GetPattern).Methods("GET")
	api.HandleFunc("/patterns/{id}", ph.UpdatePattern).Methods("PATCH")
	api.HandleFunc("/patterns/{id}", ph.DeletePattern).Methods("DELETE")
	api.HandleFunc("/patterns/{id}/cache", ph.ClearCache).Methods("DELETE")
	api.HandleFunc("/cache", ph.ClearCache).Methods("DELETE")

	// Apply middleware
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log, deps.Metrics))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "ok",
			"service": "aegis-screener-api",
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["database"] = err.Error()
			} else {
				body["database"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
