package routing

import (
	"net/http"

	"wuwareport/internal/handlers"
	"wuwareport/internal/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers   *handlers.Handler
	AdminToken string
	Logger     zerolog.Logger
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Public submission endpoint
	mux.HandleFunc("POST /api/report", h.HandleSubmit)

	// Admin endpoints sit behind the token check. A missing or wrong
	// token yields 404 so the surface is not discoverable.
	admin := middleware.RequireAdmin(cfg.AdminToken)
	mux.Handle("GET /api/admin/reports/{id}", admin(http.HandlerFunc(h.HandleGetReport)))
	mux.Handle("PATCH /api/admin/reports/{id}/status", admin(http.HandlerFunc(h.HandleUpdateStatus)))
	mux.Handle("GET /api/admin/stats", admin(http.HandlerFunc(h.HandleStats)))
	mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(h.HandleAudit)))
	mux.Handle("POST /api/admin/backup", admin(http.HandlerFunc(h.HandleBackup)))

	// Operational endpoints
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Logging wraps everything so every request is accounted for
	return middleware.LoggingMiddleware(cfg.Logger)(mux)
}
