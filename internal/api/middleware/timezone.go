package middleware

import (
	"context"
	"net/http"
	"time"
)

// timezoneKey is the context key for the request display timezone.
type timezoneKey struct{}

// Timezone creates a middleware that resolves the X-Timezone header into a
// *time.Location carried in the request context. Unknown or absent zones
// fall back to UTC; timestamps in responses are rendered in this zone.
func Timezone() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := time.UTC

			if name := r.Header.Get("X-Timezone"); name != "" {
				if parsed, err := time.LoadLocation(name); err == nil {
					loc = parsed
				}
			}

			ctx := context.WithValue(r.Context(), timezoneKey{}, loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTimezone extracts the request display timezone, defaulting to UTC.
func GetTimezone(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(timezoneKey{}).(*time.Location); ok {
		return loc
	}

	return time.UTC
}
