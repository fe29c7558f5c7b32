package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS wraps next so the web client may call the API from the given
// origins. A "*" entry allows any origin.
func CORS(next http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler(next)
}
