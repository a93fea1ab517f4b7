// Package server wires HTTP handlers into a ServeMux for the chat relay
// via routing helpers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures and returns an HTTP ServeMux with all
// application routes: health check, WebSocket endpoint, Prometheus
// metrics, and the built-in test page.
func SetupRoutes(hub *Hub, dir *Directory, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.Handle("/ws", NewWebSocketHandler(hub, dir, logger))
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}

// WrapCORS applies the configured cross-origin policy to a handler. A
// "*" entry in the allowed origins yields a fully permissive policy.
func WrapCORS(handler http.Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(handler)
}
