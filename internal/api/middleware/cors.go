package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the web reader to call the API with credentials
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			RequestIDHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// DefaultCORS allows frontendURL plus the Expo and Vite dev servers when
// frontendURL points at localhost.
func DefaultCORS(frontendURL string) func(http.Handler) http.Handler {
	origins := []string{frontendURL}
	if strings.Contains(frontendURL, "localhost") || strings.Contains(frontendURL, "127.0.0.1") {
		origins = append(origins,
			"http://localhost:8081",
			"http://localhost:19006",
			"http://localhost:5173",
		)
	}
	return CORS(origins)
}
