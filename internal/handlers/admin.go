package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"wuwareport/internal/report"
	"wuwareport/internal/schema"

	"github.com/rs/zerolog/log"
)

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// HandleGetReport returns one report by id. Sensitive fields stay
// encrypted unless the caller asks for them with ?reveal=1.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !report.ValidID(id) {
		writeError(w, http.StatusNotFound, "not_found", "report not found")
		return
	}

	reveal := r.URL.Query().Get("reveal") == "1"
	view, err := h.reports.Get(r.Context(), id, reveal)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		log.Error().Err(err).Str("report", id).Msg("handlers: failed to load report")
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// statusUpdateRequest is the PATCH body for a status transition.
type statusUpdateRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

// HandleUpdateStatus transitions a report to a new status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !report.ValidID(id) {
		writeError(w, http.StatusNotFound, "not_found", "report not found")
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "admin"
	}

	view, err := h.reports.UpdateStatus(r.Context(), id, report.Status(req.Status), actor)
	if err != nil {
		var verr *schema.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, "validation", verr.Message)
		case errors.Is(err, report.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "report not found")
		default:
			log.Error().Err(err).Str("report", id).Msg("handlers: failed to update status")
			writeError(w, http.StatusInternalServerError, "internal", "could not update report")
		}
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// HandleStats returns aggregate report statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reports.Statistics(r.Context()))
}

// auditResponse wraps a day's audit segment plus its chain verdict.
type auditResponse struct {
	Day        string               `json:"day"`
	Entries    []*report.AuditEntry `json:"entries"`
	ChainValid bool                 `json:"chain_valid"`
	ChainError string               `json:"chain_error,omitempty"`
}

// HandleAudit returns one day's audit entries and verifies the hash
// chain over them. Defaults to today (UTC) when no day is given.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = report.DaySegment(time.Now())
	}
	if !dayPattern.MatchString(day) {
		writeError(w, http.StatusBadRequest, "bad_request", "day must be YYYY-MM-DD")
		return
	}

	entries, err := h.reports.AuditLog(r.Context(), day)
	if err != nil {
		log.Error().Err(err).Str("day", day).Msg("handlers: failed to load audit log")
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	resp := auditResponse{Day: day, Entries: entries, ChainValid: true}
	if entries == nil {
		resp.Entries = []*report.AuditEntry{}
	}
	if err := report.VerifyChain(entries); err != nil {
		resp.ChainValid = false
		resp.ChainError = err.Error()
		log.Error().Err(err).Str("day", day).Msg("handlers: audit chain verification failed")
	}

	writeJSON(w, http.StatusOK, resp)
}

// backupResponse reports where the snapshot landed.
type backupResponse struct {
	Location string `json:"location"`
}

// HandleBackup snapshots the database to the configured backup
// directory.
func (h *Handler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	location, err := h.reports.Backup(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handlers: backup failed")
		writeError(w, http.StatusInternalServerError, "internal", "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, backupResponse{Location: location})
}
