package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HealthReportsDegradedCheck(t *testing.T) {
	s := NewServer(0, "v1", nil)
	s.RegisterCheck("oracle", func(context.Context) (bool, string) { return true, "" })
	s.RegisterCheck("eventstore", func(context.Context) (bool, string) { return false, "locked" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "v1", body.Version)
	assert.False(t, body.Checks["eventstore"].Healthy)
	assert.Equal(t, "locked", body.Checks["eventstore"].Message)
}

func TestServer_ReadyAndLive(t *testing.T) {
	s := NewServer(0, "v1", nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, "alive", rec.Body.String())
}

func TestServer_MountedRoute(t *testing.T) {
	s := NewServer(0, "v1", nil)
	s.Mount(http.MethodGet, "/positions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("position"))
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions/p-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "position", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(0, "v1", nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
