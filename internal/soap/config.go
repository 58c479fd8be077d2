// Package soap provides the streaming SOAP 1.2 client used to pull SIPSA
// datasets from the upstream DANE web service.
package soap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sipsa-io/sipsa/internal/config"
)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultReadTimeout      = 5 * time.Minute
	defaultMaxRetries       = 3
	defaultRetryBackoff     = 2 * time.Second
	defaultNamespace        = "https://appweb.dane.gov.co/sipsaWS/"
	defaultMaxChildElements = 50000

	millisecond = time.Millisecond
)

// ErrEndpointEmpty is returned when the SOAP endpoint is not configured.
var ErrEndpointEmpty = errors.New("SOAP endpoint cannot be empty")

// Config holds SOAP client configuration.
type Config struct {
	Endpoint         string
	Namespace        string
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	MaxChildElements int // XML safety cap, consumed by the parsers
}

// LoadConfig loads SOAP configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Endpoint:  config.GetEnvStr("SIPSA_SOAP_ENDPOINT", ""),
		Namespace: config.GetEnvStr("SIPSA_SOAP_NAMESPACE", defaultNamespace),
		ConnectTimeout: time.Duration(
			config.GetEnvInt64("SIPSA_SOAP_CONNECT_TIMEOUT_MS", int64(defaultConnectTimeout/millisecond)),
		) * millisecond,
		ReadTimeout: time.Duration(
			config.GetEnvInt64("SIPSA_SOAP_READ_TIMEOUT_MS", int64(defaultReadTimeout/millisecond)),
		) * millisecond,
		MaxRetries: config.GetEnvInt("SIPSA_SOAP_MAX_RETRIES", defaultMaxRetries),
		RetryBackoff: time.Duration(
			config.GetEnvInt64("SIPSA_SOAP_RETRY_BACKOFF_MS", int64(defaultRetryBackoff/millisecond)),
		) * millisecond,
		MaxChildElements: config.GetEnvInt("SIPSA_SOAP_MAX_CHILD_ELEMENTS", defaultMaxChildElements),
	}
}

// Validate checks if the SOAP configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrEndpointEmpty
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries %d", c.MaxRetries)
	}

	return nil
}
