// Package kafka publishes audit reports to a Kafka topic for downstream
// ticketing consumers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/occupancy-etl/internal/issues"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// issueMessage is the JSON value of a published report.
type issueMessage struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher is an issues.Tracker that writes each report as one message keyed
// by a fresh run ID.
type Publisher struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the issue topic.
func NewPublisher(brokers []string, topic string, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, clock: clock, logger: logger}
}

// Submit publishes report and returns its run ID.
func (p *Publisher) Submit(ctx context.Context, report issues.Report) (string, error) {
	runID := uuid.NewString()
	msg, err := serializeToMessage(runID, report, p.clock.Now())
	if err != nil {
		return "", err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if unreachable(err) {
			return "", fmt.Errorf("%w: publish issue report: %w", issues.ErrTrackerUnavailable, err)
		}
		return "", fmt.Errorf("publish issue report: %w", err)
	}
	p.logger.Debug("published issue report", "run_id", runID, "kind", report.Kind)
	return runID, nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// unreachable reports whether err means no broker could take the write, as
// opposed to the broker rejecting it.
func unreachable(err error) bool {
	var writeErrs kafkago.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && unreachable(e) {
				return true
			}
		}
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, kafkago.BrokerNotAvailable) ||
		errors.Is(err, kafkago.LeaderNotAvailable) ||
		errors.Is(err, kafkago.NetworkException)
}

func serializeToMessage(runID string, report issues.Report, createdAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(issueMessage{
		RunID:     runID,
		Kind:      report.Kind,
		Title:     report.Title,
		Body:      report.Body,
		CreatedAt: createdAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize issue report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(runID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "report_kind", Value: []byte(report.Kind)},
			{Key: "created_at", Value: []byte(createdAt.Format(time.RFC3339))},
		},
	}, nil
}
