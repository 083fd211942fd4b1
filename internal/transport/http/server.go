// Package httptransport builds the HTTP server and its middleware chain.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Chain wraps handler with request ids, tracing, access logging and CORS, in
// that order from the outside in. An empty corsOrigin disables CORS headers.
func Chain(handler http.Handler, logger *slog.Logger, corsOrigin string) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if corsOrigin != "" {
		handler = corsMiddleware(corsOrigin, handler)
	}
	return requestIDMiddleware(tracingMiddleware(loggingMiddleware(logger, handler)))
}
