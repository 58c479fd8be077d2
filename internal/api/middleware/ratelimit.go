package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier = 2
	defaultGlobalRPS        = 100
	defaultClientRPS        = 10
	defaultMaxClients       = 10000

	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 1 * time.Hour
)

type (
	// RateLimiter decides whether a request may proceed.
	RateLimiter interface {
		// Allow reports whether the client identified by clientKey is within
		// its limits. clientKey is typically the remote IP.
		Allow(clientKey string) bool
	}

	// InMemoryRateLimiter implements RateLimiter with token buckets: one
	// global bucket plus one bucket per client, cleaned up when idle.
	// Suitable for the single-instance deployment this service assumes.
	InMemoryRateLimiter struct {
		global    *rate.Limiter
		perClient map[string]*clientLimiter
		mu        sync.RWMutex

		clientRPS   int
		clientBurst int
		maxClients  int

		cleanupTicker *time.Ticker
		done          chan struct{}
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
	}
)

// NewInMemoryRateLimiter creates the limiter and starts its cleanup loop.
func NewInMemoryRateLimiter(cfg *Config) *InMemoryRateLimiter {
	globalBurst := cfg.GlobalBurst
	if globalBurst == 0 {
		globalBurst = cfg.GlobalRPS * burstCapacityMultiplier
	}

	clientBurst := cfg.ClientBurst
	if clientBurst == 0 {
		clientBurst = cfg.ClientRPS * burstCapacityMultiplier
	}

	limiter := &InMemoryRateLimiter{
		global:        rate.NewLimiter(rate.Limit(cfg.GlobalRPS), globalBurst),
		perClient:     make(map[string]*clientLimiter),
		clientRPS:     cfg.ClientRPS,
		clientBurst:   clientBurst,
		maxClients:    cfg.MaxClients,
		cleanupTicker: time.NewTicker(cfg.CleanupInterval),
		done:          make(chan struct{}),
	}

	go limiter.cleanupLoop(cfg.IdleTimeout)

	return limiter
}

// Allow implements RateLimiter.
func (l *InMemoryRateLimiter) Allow(clientKey string) bool {
	if !l.global.Allow() {
		return false
	}

	if clientKey == "" {
		return true
	}

	return l.clientAllow(clientKey)
}

func (l *InMemoryRateLimiter) clientAllow(clientKey string) bool {
	l.mu.RLock()
	client, ok := l.perClient[clientKey]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		client, ok = l.perClient[clientKey]

		if !ok {
			if len(l.perClient) >= l.maxClients {
				// Over capacity: fall back to the global limit only.
				l.mu.Unlock()

				return true
			}

			client = &clientLimiter{
				limiter: rate.NewLimiter(rate.Limit(l.clientRPS), l.clientBurst),
			}
			l.perClient[clientKey] = client
		}
		l.mu.Unlock()
	}

	l.mu.Lock()
	client.lastAccess = time.Now()
	l.mu.Unlock()

	return client.limiter.Allow()
}

func (l *InMemoryRateLimiter) cleanupLoop(idleTimeout time.Duration) {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanupTicker.C:
			cutoff := time.Now().Add(-idleTimeout)

			l.mu.Lock()
			for key, client := range l.perClient {
				if client.lastAccess.Before(cutoff) {
					delete(l.perClient, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (l *InMemoryRateLimiter) Close() error {
	close(l.done)
	l.cleanupTicker.Stop()

	return nil
}

// RateLimit creates a middleware that rejects over-limit requests with 429.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := clientIP(r)

			if !limiter.Allow(clientKey) {
				correlationID := GetCorrelationID(r.Context())

				logger.Warn("Request rate limited",
					slog.String("path", r.URL.Path),
					slog.String("client", clientKey),
					slog.String("correlation_id", correlationID),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":     "rate limit exceeded",
					"requestId": correlationID,
				})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
