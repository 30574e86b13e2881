package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(origins, "X-Sqlchat-Session-ID")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	rec := serve(t, []string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173")

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "Content-Type, X-Sqlchat-Session-ID", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	rec := serve(t, []string{"*"}, http.MethodGet, "https://elsewhere.example")

	require.Equal(t, "https://elsewhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	rec := serve(t, []string{"http://localhost:5173"}, http.MethodGet, "https://evil.example")

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec := serve(t, []string{"*"}, http.MethodOptions, "http://localhost:5173")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
