package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/middleware"
)

const readyTimeout = 2 * time.Second

// Pinger is anything whose reachability decides readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are what the ops routes report on.
type Deps struct {
	Store   Pinger
	Limiter *middleware.RateLimiter // nil disables rate limiting
	Log     *logrus.Entry
}

// NewRouter builds the ops router: health, readiness and metrics.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.SecurityHeaders)
	if deps.Limiter != nil {
		r.Use(deps.Limiter.Middleware)
	}

	SetupRoutes(r, deps)
	return r
}

func SetupRoutes(r chi.Router, deps Deps) {
	// Health check (liveness only)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Readiness: the store must answer a ping
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := deps.Store.Ping(ctx); err != nil {
			deps.Log.WithError(err).Warn("store not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "store unavailable",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	r.Handle("/metrics", metrics.Handler())
}
