package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ski-report-service/internal/alert"
	"github.com/couchcryptid/ski-report-service/internal/config"
)

const (
	EventAlertRaised  = "alert.raised"
	EventAlertCleared = "alert.cleared"
	EventWakeup       = "wakeup.raised"

	messageKey   = "ski-alerts"
	maxAttempts  = 3
	firstBackoff = 200 * time.Millisecond
	maxBackoff   = 2 * time.Second
)

// AlertEvent is the JSON payload published for each notification change.
type AlertEvent struct {
	Type    string    `json:"type"`
	Resorts []string  `json:"resorts,omitempty"`
	Count   int       `json:"count"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var _ alert.Notifier = (*Writer)(nil)

// Writer publishes alert notifications to a Kafka topic.
// It implements alert.Notifier.
type Writer struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured alert topic.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, clock, logger)
}

func newWriter(w messageWriter, clock clockwork.Clock, logger *slog.Logger) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{writer: w, clock: clock, logger: logger}
}

// Notify publishes an alert.raised event, or wakeup.raised for wake-ups.
func (w *Writer) Notify(ctx context.Context, n alert.Notification) error {
	eventType := EventAlertRaised
	if n.Kind == alert.KindWakeup {
		eventType = EventWakeup
	}
	return w.publish(ctx, AlertEvent{
		Type:    eventType,
		Resorts: n.Resorts,
		Count:   n.Count,
		Message: n.Message,
		Time:    n.Time,
	})
}

// Clear publishes an alert.cleared event.
func (w *Writer) Clear(ctx context.Context) error {
	return w.publish(ctx, AlertEvent{Type: EventAlertCleared, Time: w.clock.Now()})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// publish writes the event, retrying transient failures with backoff.
func (w *Writer) publish(ctx context.Context, event AlertEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}

	backoff := firstBackoff
	for attempt := 1; ; attempt++ {
		err = w.writer.WriteMessages(ctx, msg)
		if err == nil {
			w.logger.Debug("alert event published", "type", event.Type, "count", event.Count)
			return nil
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			return fmt.Errorf("publish %s: %w", event.Type, err)
		}
		w.logger.Warn("publish alert event failed, retrying", "type", event.Type, "attempt", attempt, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("publish %s: %w", event.Type, ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// serializeToMessage marshals an AlertEvent into a Kafka message. All events
// share one key so consumers see raise and clear in order.
func serializeToMessage(event AlertEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(messageKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "published_at", Value: []byte(event.Time.UTC().Format(time.RFC3339))},
		},
	}, nil
}
