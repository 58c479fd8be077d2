package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sipsa-io/sipsa/internal/storage"
)

// authProtectedPrefix scopes API-key authentication to the operational
// endpoints; the curated read API stays open.
const authProtectedPrefix = "/internal/"

// extractAPIKey reads the API key from the X-Api-Key header, falling back to
// Authorization: Bearer. Keys containing newlines are rejected to prevent
// header injection.
func extractAPIKey(r *http.Request) (string, bool) {
	key := r.Header.Get("X-Api-Key")

	if key == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	return key, true
}

// APIKeyAuth creates a middleware that requires a valid API key on the
// operational endpoints. Other paths pass through untouched.
func APIKeyAuth(store storage.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, authProtectedPrefix) {
				next.ServeHTTP(w, r)

				return
			}

			key, ok := extractAPIKey(r)
			if !ok || !store.ValidateKey(r.Context(), key) {
				correlationID := GetCorrelationID(r.Context())

				logger.Warn("Rejected unauthenticated request",
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":     "invalid or missing API key",
					"requestId": correlationID,
				})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
