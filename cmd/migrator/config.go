package main

import (
	"errors"
	"strings"

	"github.com/sipsa-io/sipsa/internal/config"
)

// ErrDatabaseURLRequired is returned when no database URL is configured.
var ErrDatabaseURLRequired = errors.New("DATABASE_URL is required")

// Config holds migrator configuration.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig loads migrator configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}
}

// Validate checks the migrator configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLRequired
	}

	return nil
}

// String renders the configuration with the database URL masked.
func (c *Config) String() string {
	masked := c.DatabaseURL
	if at := strings.LastIndex(masked, "@"); at != -1 {
		if scheme := strings.Index(masked, "://"); scheme != -1 {
			masked = masked[:scheme+3] + "***" + masked[at:]
		}
	}

	return "databaseURL=" + masked + " migrationTable=" + c.MigrationTable
}
