package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware allows the listed origins; "*" allows any.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler
}
