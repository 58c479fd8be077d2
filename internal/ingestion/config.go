package ingestion

import (
	"fmt"

	"github.com/sipsa-io/sipsa/internal/config"
)

const (
	defaultBatchSize      = 2000
	defaultMaxRejectRate  = 0.01
	defaultMaxRejectCount = 5000
)

// Config holds the ingestion quality and batching settings.
type Config struct {
	BatchSize      int
	MaxRejectRate  float64
	MaxRejectCount int
}

// LoadConfig loads ingestion configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		BatchSize:      config.GetEnvInt("SIPSA_BATCH_SIZE", defaultBatchSize),
		MaxRejectRate:  config.GetEnvFloat("SIPSA_MAX_REJECT_RATE", defaultMaxRejectRate),
		MaxRejectCount: config.GetEnvInt("SIPSA_MAX_REJECT_COUNT", defaultMaxRejectCount),
	}
}

// Validate checks if the ingestion configuration is valid.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}

	if c.MaxRejectRate < 0 || c.MaxRejectRate > 1 {
		return fmt.Errorf("max reject rate must be in [0,1], got %f", c.MaxRejectRate)
	}

	if c.MaxRejectCount < 0 {
		return fmt.Errorf("max reject count must be non-negative, got %d", c.MaxRejectCount)
	}

	return nil
}
