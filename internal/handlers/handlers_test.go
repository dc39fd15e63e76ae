package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"wuwareport/internal/database/boltstore"
	"wuwareport/internal/filecheck"
	"wuwareport/internal/metrics"
	"wuwareport/internal/report"
	"wuwareport/internal/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler(t *testing.T) *Handler {
	return testHandlerOpts(t, session.Options{
		PerSessionLimit:     3,
		PerFingerprintLimit: 5,
		TTL:                 time.Hour,
		MediumThreshold:     50,
		BlacklistThreshold:  100,
		FreeSubmissions:     3,
		VolumePenalty:       10,
		ContentPenalty:      15,
	})
}

func testHandlerOpts(t *testing.T, opts session.Options) *Handler {
	t.Helper()

	store, err := boltstore.Open(boltstore.Options{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cipher, err := report.NewCipher("handler-test-key")
	require.NoError(t, err)

	reports := report.NewService(store.ReportStore(), cipher, t.TempDir())
	engine := session.NewEngine(opts, store.SessionStore())

	return NewHandler(engine, filecheck.New(1<<20), reports, Config{
		UploadDir:    t.TempDir(),
		AddressSalt:  "test-salt",
		MaxFileBytes: 1 << 20,
	})
}

type formFile struct {
	name string
	mime string
	data []byte
}

func submissionRequest(t *testing.T, fields map[string]string, files []formFile) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="files"; filename="` + f.name + `"`}
		hdr["Content-Type"] = []string{f.mime}
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/report", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "test-agent/1.0")
	req.Header.Set("Accept-Language", "en-US")
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"category":    "gameplay-bug",
		"description": "The client crashes when opening the inventory screen after a long session.",
		"platform":    "pc",
	}
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestHandleSubmit_Accepted(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, report.ValidID(resp.ReportID))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestHandleSubmit_AcceptedCountsOnce(t *testing.T) {
	h := testHandler(t)

	before := testutil.ToFloat64(metrics.SubmissionsAccepted)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SubmissionsAccepted))
}

func TestHandleSubmit_ReusesSessionCookie(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	cookie := rec.Result().Cookies()[0]

	req := submissionRequest(t, map[string]string{
		"category":    "visual-glitch",
		"description": "Enemies stop responding after the second boss phase begins.",
		"platform":    "ps5",
	}, nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.HandleSubmit(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "existing session should not get a new cookie")
}

func TestHandleSubmit_ValidationFailure(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, map[string]string{
		"category":    "gameplay-bug",
		"description": "short",
		"platform":    "pc",
	}, nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation", resp.Error)
}

func TestHandleSubmit_SessionQuota(t *testing.T) {
	h := testHandler(t)

	var cookie *http.Cookie
	for i := 0; i < 3; i++ {
		req := submissionRequest(t, validFields(), nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		h.HandleSubmit(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, "submission %d", i+1)
		if cookie == nil {
			cookie = rec.Result().Cookies()[0]
		}
	}

	req := submissionRequest(t, validFields(), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandleSubmit_RejectedFile(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), []formFile{
		{name: "screenshot.png", mime: "image/png", data: []byte{'M', 'Z', 0x90, 0x00, 1, 2, 3, 4}},
	}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "file_rejected", resp.Error)
	assert.NotEmpty(t, resp.Reasons)
}

func TestHandleSubmit_AcceptedFileStaged(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), []formFile{
		{name: "screenshot.png", mime: "image/png", data: encodePNG(t)},
	}))

	require.Equal(t, http.StatusCreated, rec.Code)

	entries, err := filepath.Glob(filepath.Join(h.config.UploadDir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandleSubmit_BlacklistedSession(t *testing.T) {
	h := testHandlerOpts(t, session.Options{
		PerSessionLimit:     10,
		PerFingerprintLimit: 20,
		TTL:                 time.Hour,
		MediumThreshold:     30,
		BlacklistThreshold:  60,
		FreeSubmissions:     10,
		VolumePenalty:       10,
		ContentPenalty:      15,
	})

	degenerate := map[string]string{
		"category":    "gameplay-bug",
		"description": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"platform":    "pc",
	}

	var cookie *http.Cookie
	var lastCode int
	// Repeated degenerate near-duplicate submissions accrue risk until
	// the session crosses the blacklist threshold.
	for i := 0; i < 10; i++ {
		req := submissionRequest(t, degenerate, nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		h.HandleSubmit(rec, req)
		if cookie == nil && len(rec.Result().Cookies()) > 0 {
			cookie = rec.Result().Cookies()[0]
		}
		lastCode = rec.Code
		if lastCode == http.StatusForbidden {
			break
		}
	}
	require.Equal(t, http.StatusForbidden, lastCode)

	// Once blacklisted, even a clean submission is refused.
	req := submissionRequest(t, validFields(), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleGetReport(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/reports/"+created.ReportID, nil)
	req.SetPathValue("id", created.ReportID)
	rec = httptest.NewRecorder()
	h.HandleGetReport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var view report.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, created.ReportID, view.ID)
	assert.Equal(t, report.StatusPending, view.Status)
	assert.Empty(t, view.Description, "description stays sealed without reveal")

	req = httptest.NewRequest(http.MethodGet, "/api/admin/reports/"+created.ReportID+"?reveal=1", nil)
	req.SetPathValue("id", created.ReportID)
	rec = httptest.NewRecorder()
	h.HandleGetReport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, validFields()["description"], view.Description)
}

func TestHandleGetReport_NotFound(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/reports/WUWA-ABC123-deadbeef", nil)
	req.SetPathValue("id", "WUWA-ABC123-deadbeef")
	rec := httptest.NewRecorder()
	h.HandleGetReport(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/reports/garbage", nil)
	req.SetPathValue("id", "garbage")
	rec = httptest.NewRecorder()
	h.HandleGetReport(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateStatus(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := bytes.NewBufferString(`{"status":"in-review","actor":"ops"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/reports/"+created.ReportID+"/status", body)
	req.SetPathValue("id", created.ReportID)
	rec = httptest.NewRecorder()
	h.HandleUpdateStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var view report.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, report.StatusInReview, view.Status)
}

func TestHandleUpdateStatus_UnknownStatus(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := bytes.NewBufferString(`{"status":"archived"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/reports/"+created.ReportID+"/status", body)
	req.SetPathValue("id", created.ReportID)
	rec = httptest.NewRecorder()
	h.HandleUpdateStatus(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	rec = httptest.NewRecorder()
	h.HandleStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats report.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalReports)
	assert.Equal(t, 1, stats.ByCategory["gameplay-bug"])
}

func TestHandleAudit(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, submissionRequest(t, validFields(), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
	rec = httptest.NewRecorder()
	h.HandleAudit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp auditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.ChainValid)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, report.AuditActionCreateReport, resp.Entries[0].Action)
}

func TestHandleAudit_BadDay(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit?day=yesterday", nil)
	rec := httptest.NewRecorder()
	h.HandleAudit(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBackup(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/backup", nil)
	rec := httptest.NewRecorder()
	h.HandleBackup(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp backupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.FileExists(t, resp.Location)
}

func TestHandleHealth(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
