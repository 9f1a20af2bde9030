package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/aidqr/aidqr/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// QR issuance and redemption
	IssueWater http.HandlerFunc
	IssueMeals http.HandlerFunc
	Scan       http.HandlerFunc

	// Quota status
	QuotaStatus http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string

	// StorageName labels the storage entry of the readiness report.
	StorageName string
	// StorageReady checks the persistence backend; nil means not checked.
	StorageReady func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, always 200
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe, checks the storage backend
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":  "healthy",
			"storage": "healthy",
		}
		if cfg.StorageName != "" {
			health["driver"] = cfg.StorageName
		}

		status := http.StatusOK

		if cfg.StorageReady == nil {
			health["storage"] = "not checked"
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.StorageReady(ctx); err != nil {
				health["storage"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/generate-water-qrcode", h.IssueWater)
	r.Post("/generate-meal-qrcode", h.IssueMeals)
	r.Post("/scan-qrcode", h.Scan)
	r.Get("/quota/{id}", h.QuotaStatus)

	return r
}
