// Package httpserver assembles the arbiter HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// Options carries the server timeouts. There is no WriteTimeout field on
// purpose: the worklist endpoint keeps its response open while a scan streams
// NDJSON candidates, and a write deadline would cut long scans off
// mid-stream. Per-request bounds come from the request context instead.
type Options struct {
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// New builds the server. Zero timeouts fall back to defaults rather than
// running unbounded.
func New(addr string, handler http.Handler, opts Options) *http.Server {
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Minute
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
}
