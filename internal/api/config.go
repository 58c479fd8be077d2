// Package api provides the HTTP API server for the SIPSA service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sipsa-io/sipsa/internal/config"
)

const (
	defaultPort        = 8080
	maxPort            = 65535
	defaultHost        = "0.0.0.0"
	defaultCORSMaxAge  = 86400
	defaultTimeout     = 30 * time.Second
	defaultLogLevel    = slog.LevelInfo
	defaultPageSize    = 50
	maxPageSize        = 500
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidTimeout indicates a zero or negative timeout.
	ErrInvalidTimeout = errors.New("timeouts must be positive")
)

type (
	// ServerConfig holds HTTP server configuration.
	// Pure configuration only - no runtime dependencies.
	ServerConfig struct {
		Port            int
		Host            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		LogLevel        slog.Level
		DefaultPageSize int
		MaxPageSize     int
		TimeZone        string

		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig holds CORS configuration options.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("SIPSA_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("SIPSA_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("SIPSA_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("SIPSA_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("SIPSA_SERVER_SHUTDOWN_TIMEOUT", defaultTimeout),
		LogLevel:        config.GetEnvLogLevel("SIPSA_SERVER_LOG_LEVEL", defaultLogLevel),
		DefaultPageSize: config.GetEnvInt("SIPSA_PAGE_SIZE", defaultPageSize),
		MaxPageSize:     config.GetEnvInt("SIPSA_MAX_PAGE_SIZE", maxPageSize),
		TimeZone:        config.GetEnvStr("SIPSA_TIMEZONE", "America/Bogota"),

		// "*" is a development default - restrict in production.
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("SIPSA_CORS_ALLOWED_ORIGINS", "*"),
		),
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("SIPSA_CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr("SIPSA_CORS_ALLOWED_HEADERS",
				"Content-Type,Authorization,X-Correlation-ID,X-Api-Key,X-Timezone"),
		),
		CORSMaxAge: config.GetEnvInt("SIPSA_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig adapts the server configuration to the middleware interface.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// GetAllowedOrigins implements middleware.CORSConfig.
func (c *CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }

// GetAllowedMethods implements middleware.CORSConfig.
func (c *CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }

// GetAllowedHeaders implements middleware.CORSConfig.
func (c *CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }

// GetMaxAge implements middleware.CORSConfig.
func (c *CORSConfig) GetMaxAge() int { return c.MaxAge }
