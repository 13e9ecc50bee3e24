package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmailmcp/internal/dispatch"
	"github.com/teemow/gmailmcp/internal/google"
)

func newTestServerContext(t *testing.T) *ServerContext {
	t.Helper()
	store := google.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	flow := google.NewFlow(store, nil, nil)
	bridge := dispatch.New(dispatch.Config{Workers: 1, QueueSize: 1})
	sc := NewServerContext(context.Background(), flow, nil, bridge)
	t.Cleanup(func() { _ = sc.Shutdown(context.Background()) })
	return sc
}

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	h.SetReady(false)

	rec, body := serve(t, h.LivenessHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, healthStatusOK, body["status"])
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		shutdown   bool
		wantStatus int
		wantChecks map[string]any
	}{
		{
			name:       "ready",
			ready:      true,
			wantStatus: http.StatusOK,
			wantChecks: map[string]any{"ready": healthStatusOK, "shutdown": healthStatusOK},
		},
		{
			name:       "not ready",
			ready:      false,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]any{"ready": healthStatusNotReady, "shutdown": healthStatusOK},
		},
		{
			name:       "shutting down",
			ready:      true,
			shutdown:   true,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]any{"ready": healthStatusOK, "shutdown": healthStatusShuttingDown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestServerContext(t)
			h := NewHealthChecker(sc)
			h.SetReady(tt.ready)
			if tt.shutdown {
				require.NoError(t, sc.Shutdown(context.Background()))
			}

			rec, body := serve(t, h.ReadinessHandler(), "/readyz")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantChecks, body["checks"])
		})
	}
}

func TestHealthChecker_DetailedReportsAuthState(t *testing.T) {
	sc := newTestServerContext(t)
	h := NewHealthChecker(sc)

	rec, body := serve(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_credential", body["auth_state"])
	assert.NotEmpty(t, body["uptime"])

	// No authorizer is configured, so the absent credential cannot be obtained.
	_, err := sc.Flow().Credential(context.Background())
	require.Error(t, err)

	_, body = serve(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, "failed", body["auth_state"])
}

func TestHealthChecker_RegisterHealthEndpoints(t *testing.T) {
	r := mux.NewRouter()
	NewHealthChecker(nil).RegisterHealthEndpoints(r)

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		rec, _ := serve(t, r, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestServerContext(t)
	assert.False(t, sc.IsShutdown())
	assert.Equal(t, google.StateNoCredential, sc.AuthState())

	require.NoError(t, sc.Shutdown(context.Background()))
	require.NoError(t, sc.Shutdown(context.Background()))
	assert.True(t, sc.IsShutdown())
	assert.ErrorIs(t, sc.Context().Err(), context.Canceled)

	_, err := dispatch.Offload(context.Background(), sc.Bridge(), func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, dispatch.ErrClosed)
}
