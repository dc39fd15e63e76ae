package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"wuwareport/internal/filecheck"
	"wuwareport/internal/metrics"
	"wuwareport/internal/middleware"
	"wuwareport/internal/report"
	"wuwareport/internal/schema"
	"wuwareport/internal/session"

	"github.com/rs/zerolog/log"
)

// retryAfterSeconds is advertised to quota-limited clients.
const retryAfterSeconds = 3600

// multipartMemoryLimit is how much of a parsed form stays in memory
// before spilling to disk.
const multipartMemoryLimit = 8 << 20

// submitResponse acknowledges an accepted submission.
type submitResponse struct {
	ReportID string `json:"report_id"`
}

// HandleSubmit accepts a bug report submission: resolves the client's
// session, admits it against the quota and blacklist gates, validates
// the form and any attached files, scores the content for abuse and
// only then persists. A blacklist verdict reached during scoring
// rejects the request before anything is stored.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ip := middleware.GetClientIP(r)
	ua := r.Header.Get("User-Agent")
	lang := r.Header.Get("Accept-Language")
	ver := r.Header.Get("X-Client-Version")

	fingerprint := session.Fingerprint(ua, lang, ip, ver)
	addrHash := session.HashAddr(ip, h.config.AddressSalt)

	token := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		token = c.Value
	}

	sess, created := h.engine.Resolve(token, fingerprint, addrHash)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}

	if err := h.engine.Admit(sess); err != nil {
		switch {
		case errors.Is(err, session.ErrBlacklisted):
			writeError(w, http.StatusForbidden, "forbidden", "submission not accepted")
		case errors.Is(err, session.ErrQuotaExceeded):
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "submission limit reached, try again later")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		}
		return
	}

	// Bound the whole body before touching the multipart reader. The
	// ceiling covers every attached file plus form overhead.
	maxBody := h.config.MaxFileBytes*schema.MaxFiles + multipartMemoryLimit
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "malformed multipart request")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}()

	sub := schema.Submission{
		Category:      schema.Category(r.FormValue("category")),
		OtherCategory: r.FormValue("other_category"),
		Description:   r.FormValue("description"),
		Platform:      schema.Platform(r.FormValue("platform")),
	}
	if err := sub.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	var fileHeaders []*multipart.FileHeader
	if r.MultipartForm != nil {
		fileHeaders = r.MultipartForm.File["files"]
	}
	if len(fileHeaders) > schema.MaxFiles {
		writeError(w, http.StatusBadRequest, "validation", fmt.Sprintf("at most %d files per submission", schema.MaxFiles))
		return
	}

	uploads, err := readUploads(fileHeaders, h.config.MaxFileBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "attached file too large")
		return
	}

	results, err := h.pipeline.CheckBatch(r.Context(), uploads)
	if err != nil {
		var batch *filecheck.BatchError
		if errors.As(err, &batch) {
			writeFileRejection(w, batch)
			return
		}
		log.Error().Err(err).Msg("handlers: file validation failed")
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	h.engine.ScoreContent(sess, sub)
	if h.engine.EvaluateRisk(r.Context(), sess) == session.RiskBlacklisted {
		writeError(w, http.StatusForbidden, "forbidden", "submission not accepted")
		return
	}

	staged, err := filecheck.Stage(h.config.UploadDir, uploads, results)
	if err != nil {
		log.Error().Err(err).Msg("handlers: failed to stage artifacts")
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	id, err := h.reports.Save(r.Context(), report.SaveRequest{
		Submission:      sub,
		UserAgent:       ua,
		Files:           results,
		SessionID:       sess.ID,
		IPHash:          addrHash,
		FingerprintHash: fingerprint,
	})
	if err != nil {
		staged.Discard()
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeValidationError(w, err)
			return
		}
		log.Error().Err(err).Msg("handlers: failed to persist report")
		writeError(w, http.StatusInternalServerError, "internal", "could not store submission")
		return
	}
	staged.Commit()

	h.engine.RecordSubmission(sess)

	writeJSON(w, http.StatusCreated, submitResponse{ReportID: id})
}

// readUploads drains each multipart part into memory, enforcing the
// per-file ceiling while reading rather than trusting the declared size.
func readUploads(headers []*multipart.FileHeader, maxBytes int64) ([]*filecheck.Upload, error) {
	uploads := make([]*filecheck.Upload, 0, len(headers))
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", hdr.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", hdr.Filename, err)
		}
		if int64(len(data)) > maxBytes {
			return nil, fmt.Errorf("upload %q exceeds %d bytes", hdr.Filename, maxBytes)
		}
		uploads = append(uploads, &filecheck.Upload{
			OriginalName: hdr.Filename,
			DeclaredMime: hdr.Header.Get("Content-Type"),
			Size:         int64(len(data)),
			Data:         data,
		})
	}
	return uploads, nil
}

// writeValidationError maps a field validation failure to a 400 without
// echoing submitted content back.
func writeValidationError(w http.ResponseWriter, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation",
			Message: fmt.Sprintf("%s: %s", verr.Field, verr.Message),
		})
		return
	}
	writeError(w, http.StatusBadRequest, "validation", "invalid submission")
}

// writeFileRejection reports a rejected batch with per-file reasons. The
// reasons are the pipeline's own categories, safe to show.
func writeFileRejection(w http.ResponseWriter, batch *filecheck.BatchError) {
	var reasons []string
	for _, res := range batch.Results {
		if res.Accepted {
			continue
		}
		metrics.FilesRejected.Inc()
		for _, reason := range res.Reasons {
			reasons = append(reasons, fmt.Sprintf("%s: %s", res.OriginalName, reason))
		}
	}
	metrics.SubmissionsRejected.WithLabelValues("file_rejected").Inc()
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Error:   "file_rejected",
		Message: "one or more files failed validation",
		Reasons: reasons,
	})
}
