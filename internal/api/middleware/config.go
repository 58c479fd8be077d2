package middleware

import (
	"time"

	"github.com/sipsa-io/sipsa/internal/config"
)

// Config holds rate limiter configuration: a global requests-per-second cap
// plus a per-client cap keyed by remote IP. Burst fields left at 0 are
// computed as 2 × rate.
type Config struct {
	GlobalRPS   int
	ClientRPS   int
	GlobalBurst int
	ClientBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxClients      int
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:   config.GetEnvInt("SIPSA_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS:   config.GetEnvInt("SIPSA_CLIENT_RPS", defaultClientRPS),
		GlobalBurst: config.GetEnvInt("SIPSA_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("SIPSA_CLIENT_BURST", 0),

		CleanupInterval: config.GetEnvDuration("SIPSA_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("SIPSA_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("SIPSA_RATE_LIMIT_MAX_CLIENTS", defaultMaxClients),
	}
}
