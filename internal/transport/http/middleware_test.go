package httptransport

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainAssignsRequestID(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	var logs bytes.Buffer
	chain := Chain(handler, slog.New(slog.NewJSONHandler(&logs, nil)), "")

	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/inventory", nil))

	require.Equal(t, http.StatusTeapot, rr.Code)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rr.Header().Get("X-Request-ID"))
	require.Contains(t, logs.String(), `"status":418`)
	require.Contains(t, logs.String(), `"level":"WARN"`)
}

func TestChainKeepsIncomingRequestID(t *testing.T) {
	chain := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, req)

	require.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestChainAnswersPreflight(t *testing.T) {
	called := false
	chain := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }), nil, "http://localhost:5173")

	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/creatures/acquire", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.False(t, called)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}
