package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"wuwareport/internal/handlers"
	"wuwareport/internal/middleware"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testRouter() http.Handler {
	return SetupRouter(Config{
		Handlers:   handlers.NewHandler(nil, nil, nil, handlers.Config{}),
		AdminToken: "secret",
		Logger:     zerolog.Nop(),
	})
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	router := testRouter()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/admin/reports/WUWA-ABC-12345678"},
		{http.MethodPatch, "/api/admin/reports/WUWA-ABC-12345678/status"},
		{http.MethodGet, "/api/admin/stats"},
		{http.MethodGet, "/api/admin/audit"},
		{http.MethodPost, "/api/admin/backup"},
	}

	for _, p := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s without token", p.method, p.path)

		rec = httptest.NewRecorder()
		req := httptest.NewRequest(p.method, p.path, nil)
		req.Header.Set(middleware.AdminTokenHeader, "wrong")
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s with wrong token", p.method, p.path)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
