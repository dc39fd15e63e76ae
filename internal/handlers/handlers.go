// Package handlers is the HTTP boundary of the report gatekeeper. Every
// response body is generic by construction: internal causes stay in the
// logs, clients only ever see an error category and a safe message.
package handlers

import (
	"encoding/json"
	"net/http"

	"wuwareport/internal/filecheck"
	"wuwareport/internal/report"
	"wuwareport/internal/session"

	"github.com/rs/zerolog/log"
)

// SessionCookieName carries the opaque session token clients must echo.
const SessionCookieName = "wuwa_session"

// Config holds handler configuration options
type Config struct {
	// SecureCookies sets the Secure flag on the session cookie.
	// Should be true in production (HTTPS), false for local development.
	SecureCookies bool

	// UploadDir receives accepted file artifacts.
	UploadDir string

	// AddressSalt salts client address hashes.
	AddressSalt string

	// MaxFileBytes is the per-file upload ceiling, used to bound the
	// request body before parsing.
	MaxFileBytes int64
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	engine   *session.Engine
	pipeline *filecheck.Pipeline
	reports  *report.Service
	config   Config
}

// NewHandler creates a new Handler with all required dependencies.
func NewHandler(engine *session.Engine, pipeline *filecheck.Pipeline, reports *report.Service, config Config) *Handler {
	return &Handler{
		engine:   engine,
		pipeline: pipeline,
		reports:  reports,
		config:   config,
	}
}

// errorResponse is the only error shape clients ever see.
type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("handlers: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, category, message string) {
	writeJSON(w, status, errorResponse{Error: category, Message: message})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
