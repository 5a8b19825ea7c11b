// Package httpserver builds the http.Server used by cmd/server.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts suited to an authorization server:
// requests are small form posts and redirects, so slow-client allowances stay
// short.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
