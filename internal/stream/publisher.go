// Package stream provides the optional Kafka mirror for audit events.
//
// The mirror is strictly fire-and-forget: the durable audit trail lives in
// PostgreSQL, and publish failures are logged, never escalated.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sipsa-io/sipsa/internal/config"
	"github.com/sipsa-io/sipsa/internal/storage"
)

const (
	defaultTopic   = "sipsa.audit"
	publishTimeout = 5 * time.Second
)

// Config holds the audit mirror settings. Empty Brokers disables the mirror.
type Config struct {
	Brokers []string
	Topic   string
}

// LoadConfig loads Kafka configuration from environment variables. The mirror
// stays disabled unless SIPSA_KAFKA_BROKERS is set.
func LoadConfig() *Config {
	brokers := config.GetEnvStr("SIPSA_KAFKA_BROKERS", "")

	cfg := &Config{
		Topic: config.GetEnvStr("SIPSA_KAFKA_TOPIC", defaultTopic),
	}

	if brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if trimmed := strings.TrimSpace(broker); trimmed != "" {
				cfg.Brokers = append(cfg.Brokers, trimmed)
			}
		}
	}

	return cfg
}

// Enabled reports whether any broker is configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// auditMessage is the wire form of a mirrored audit event.
type auditMessage struct {
	RunID         *int64    `json:"runId,omitempty"`
	RequestID     string    `json:"requestId"`
	RequestSource string    `json:"requestSource"`
	EventType     string    `json:"eventType"`
	Message       string    `json:"message"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// AuditPublisher mirrors audit events to a Kafka topic, keyed by request id
// so one request's events stay ordered within a partition.
type AuditPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewAuditPublisher creates the mirror. Returns nil when the config disables it.
func NewAuditPublisher(cfg *Config) *AuditPublisher {
	if !cfg.Enabled() {
		return nil
	}

	return &AuditPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Publish mirrors one audit event. Failures are logged and swallowed.
func (p *AuditPublisher) Publish(ctx context.Context, event storage.AuditEvent) {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(auditMessage{
		RunID:         event.RunID,
		RequestID:     event.RequestID,
		RequestSource: string(event.RequestSource),
		EventType:     event.EventType,
		Message:       event.Message,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		p.logger.Error("Failed to encode audit event for Kafka",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)

		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.RequestID),
		Value: payload,
	})
	if err != nil {
		p.logger.Error("Failed to mirror audit event to Kafka",
			slog.String("event_type", event.EventType),
			slog.String("request_id", event.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes and closes the underlying writer.
func (p *AuditPublisher) Close() error {
	return p.writer.Close()
}
