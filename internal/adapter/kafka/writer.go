// Package kafka publishes run summaries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-inundation/internal/config"
	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Publisher produces one message per completed run.
// It implements pipeline.SummarySink.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured summary topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSummaryTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "kafka" }

// Publish serializes and writes a run summary. Summaries are keyed by run ID
// so replays of the same request land on the same partition.
func (p *Publisher) Publish(ctx context.Context, summary domain.RunSummary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", summary.ID, err)
	}
	p.logger.Debug("run summary published", "id", summary.ID, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a RunSummary into a Kafka message.
func serializeToMessage(summary domain.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "quantity", Value: []byte(summary.Quantity)},
			{Key: "completed_at", Value: []byte(summary.CompletedAt.Format(time.RFC3339))},
			{Key: "inundated_cells", Value: []byte(strconv.Itoa(summary.InundatedCells))},
		},
	}, nil
}
