package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/insight-tool/internal/http/middleware"
	"github.com/wolfman30/insight-tool/internal/research"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	ResearchHandler *research.Handler
	MetricsHandler  http.Handler

	// HealthCheck reports backing-store health; nil means always healthy.
	HealthCheck func(ctx context.Context) error

	CORSAllowedOrigins []string

	// ResearcherJWTSecret protects /projects when set.
	ResearcherJWTSecret string

	// ScanLimiter throttles PII scans (optional).
	ScanLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.ResearchHandler != nil {
		r.Group(func(api chi.Router) {
			if cfg.ResearcherJWTSecret != "" {
				api.Use(httpmiddleware.ResearcherJWT(cfg.ResearcherJWTSecret))
			}
			var detectMW []func(http.Handler) http.Handler
			if cfg.ScanLimiter != nil {
				detectMW = append(detectMW, cfg.ScanLimiter.RateLimit)
			}
			api.Mount("/projects", cfg.ResearchHandler.Routes(detectMW...))
		})
	}

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
