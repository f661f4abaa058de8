package api

import (
	"net/http"

	"github.com/rs/cors"
)

// corsMiddleware allows browser calls from origins. With no origins the
// handler is returned unchanged and no CORS headers are sent.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Range", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "X-Correlation-ID", "Mcp-Session-Id"},
		MaxAge:         600,
	})
	return c.Handler
}
