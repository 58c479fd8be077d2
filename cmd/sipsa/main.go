// Package main provides the SIPSA ingestion service.
//
// The service periodically pulls agricultural pricing and supply datasets
// from the DANE SIPSA SOAP web service, validates and deduplicates them into
// curated PostgreSQL tables, and keeps a complete control and audit trail of
// every execution.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/sipsa-io/sipsa/internal/api"
	"github.com/sipsa-io/sipsa/internal/api/middleware"
	"github.com/sipsa-io/sipsa/internal/config"
	"github.com/sipsa-io/sipsa/internal/ingestion"
	"github.com/sipsa-io/sipsa/internal/scheduler"
	"github.com/sipsa-io/sipsa/internal/soap"
	"github.com/sipsa-io/sipsa/internal/storage"
	"github.com/sipsa-io/sipsa/internal/stream"
	"github.com/sipsa-io/sipsa/internal/window"
)

// Version information.
const (
	version = "1.0.0"
	name    = "sipsa"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	// Optional YAML file seeds defaults; real environment variables win.
	if err := config.LoadFile(config.GetEnvStr(config.FileEnvVar, "")); err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting SIPSA service",
		slog.String("service", name),
		slog.String("version", version),
	)

	windowConfig, err := window.LoadConfig()
	if err != nil {
		logger.Error("Invalid window configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	policy, err := window.NewPolicy(windowConfig)
	if err != nil {
		logger.Error("Invalid window configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	soapConfig := soap.LoadConfig()

	soapClient, err := soap.NewClient(soapConfig)
	if err != nil {
		logger.Error("Invalid SOAP configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("SOAP client initialized",
		slog.String("endpoint", soapConfig.Endpoint),
		slog.Int("max_retries", soapConfig.MaxRetries),
		slog.Duration("retry_backoff", soapConfig.RetryBackoff),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	logger.Info("Database connection established",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("max_open_conns", storageConfig.MaxOpenConns),
	)

	controlStore, err := storage.NewControlStore(dbConn)
	if err != nil {
		fatal(logger, dbConn, "Failed to create control store", err)
	}

	ciudadStore, err := storage.NewCiudadStore(dbConn)
	if err != nil {
		fatal(logger, dbConn, "Failed to create ciudad store", err)
	}

	parcialStore, err := storage.NewParcialStore(dbConn)
	if err != nil {
		fatal(logger, dbConn, "Failed to create parcial store", err)
	}

	semanaStore, err := storage.NewSemanaStore(dbConn)
	if err != nil {
		fatal(logger, dbConn, "Failed to create semanal store", err)
	}

	mesStore, err := storage.NewMesStore(dbConn)
	if err != nil {
		fatal(logger, dbConn, "Failed to create mensual store", err)
	}

	abasStore, err := storage.NewAbasStore(dbConn)
	if err != nil {
		fatal(logger, dbConn, "Failed to create abastecimientos store", err)
	}

	// Optional Kafka mirror for the audit trail.
	var publisher ingestion.EventPublisher

	kafkaConfig := stream.LoadConfig()
	if kafkaConfig.Enabled() {
		auditPublisher := stream.NewAuditPublisher(kafkaConfig)
		publisher = auditPublisher

		defer func() {
			_ = auditPublisher.Close()
		}()

		logger.Info("Audit Kafka mirror enabled",
			slog.Any("brokers", kafkaConfig.Brokers),
			slog.String("topic", kafkaConfig.Topic),
		)
	}

	auditor := ingestion.NewAuditor(controlStore, publisher)

	ingestionConfig := ingestion.LoadConfig()
	if err := ingestionConfig.Validate(); err != nil {
		fatal(logger, dbConn, "Invalid ingestion configuration", err)
	}

	registry := ingestion.NewRegistry(
		ingestion.NewCiudadHandler(soapClient, ciudadStore, ingestionConfig.BatchSize, soapConfig.MaxChildElements),
		ingestion.NewParcialHandler(soapClient, parcialStore, ingestionConfig.BatchSize, soapConfig.MaxChildElements),
		ingestion.NewSemanaHandler(soapClient, semanaStore, ingestionConfig.BatchSize, soapConfig.MaxChildElements),
		ingestion.NewMesHandler(soapClient, mesStore, ingestionConfig.BatchSize, soapConfig.MaxChildElements),
		ingestion.NewAbasHandler(soapClient, abasStore, ingestionConfig.BatchSize, soapConfig.MaxChildElements),
	)

	job := ingestion.NewJob(policy, controlStore, auditor, registry, ingestionConfig)

	schedulerConfig, err := scheduler.LoadConfig()
	if err != nil {
		fatal(logger, dbConn, "Invalid scheduler configuration", err)
	}

	cronScheduler, err := scheduler.New(schedulerConfig, job)
	if err != nil {
		fatal(logger, dbConn, "Failed to create scheduler", err)
	}

	cronScheduler.Start()
	defer cronScheduler.Stop()

	var apiKeyStore storage.APIKeyStore

	if config.GetEnvBool("SIPSA_AUTH_ENABLED", false) {
		keyStore, err := storage.NewPersistentKeyStore(dbConn)
		if err != nil {
			fatal(logger, dbConn, "Failed to create API key store", err)
		}

		apiKeyStore = keyStore

		logger.Info("API key authentication enabled")
	} else {
		logger.Warn("API key authentication disabled",
			slog.String("note", "Set SIPSA_AUTH_ENABLED=true to protect the internal endpoints"),
		)
	}

	rateLimiter := middleware.NewInMemoryRateLimiter(middleware.LoadConfig())

	server, err := api.NewServer(serverConfig, &api.Dependencies{
		Job:         job,
		Registry:    registry,
		Auditor:     auditor,
		Audit:       controlStore,
		Runs:        controlStore,
		Ciudad:      ciudadStore,
		Parcial:     parcialStore,
		Semana:      semanaStore,
		Mes:         mesStore,
		Abas:        abasStore,
		DB:          dbConn,
		APIKeyStore: apiKeyStore,
		RateLimiter: rateLimiter,
	})
	if err != nil {
		fatal(logger, dbConn, "Failed to create server", err)
	}

	if err := server.Start(); err != nil {
		fatal(logger, dbConn, "Server failed", err)
	}

	logger.Info("SIPSA service stopped")
}

// fatal logs, closes the connection (defers do not run through os.Exit), and exits.
func fatal(logger *slog.Logger, conn *storage.Connection, message string, err error) {
	logger.Error(message, slog.String("error", err.Error()))

	_ = conn.Close()

	os.Exit(1)
}
