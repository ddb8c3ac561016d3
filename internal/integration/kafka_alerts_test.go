//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ski-report-service/internal/adapter/kafka"
	"github.com/couchcryptid/ski-report-service/internal/alert"
	"github.com/couchcryptid/ski-report-service/internal/config"
	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

const testAlertTopic = "test-ski-alerts"

type publishedEvent struct {
	Event   kafka.AlertEvent
	Key     string
	Headers map[string]string
}

// readEvent reads a single message from the consumer and deserializes it.
func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedEvent {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event kafka.AlertEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal alert event")

	return publishedEvent{Event: event, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-alerts-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriter_RaiseAndClear publishes a raise followed by a clear and
// verifies both arrive in order with their headers.
func TestKafkaWriter_RaiseAndClear(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaAlertTopic: testAlertTopic}
	writer := kafka.NewWriter(cfg, nil, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, writer.Notify(ctx, alert.NewNotification([]string{"Alpental"}, now)))
	require.NoError(t, writer.Clear(ctx))

	consumer := newConsumer(t, broker)

	raised := readEvent(ctx, t, consumer)
	assert.Equal(t, kafka.EventAlertRaised, raised.Event.Type)
	assert.Equal(t, "Snow alert for Alpental", raised.Event.Message)
	assert.Equal(t, kafka.EventAlertRaised, raised.Headers["event_type"])
	_, err := time.Parse(time.RFC3339, raised.Headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")

	cleared := readEvent(ctx, t, consumer)
	assert.Equal(t, kafka.EventAlertCleared, cleared.Event.Type)
	assert.Equal(t, raised.Key, cleared.Key, "raise and clear share a key")
}

// TestAlertManagerPublishesToKafka runs the alert manager against a real
// SQLite file and Kafka broker: a matching forecast is stored and exactly one
// consolidated notification is published.
func TestAlertManagerPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaAlertTopic: testAlertTopic}
	writer := kafka.NewWriter(cfg, nil, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	now := time.Now().UTC()
	mgr, err := alert.Open(alert.Options{
		DBPath:               filepath.Join(t.TempDir(), "alerts.db"),
		Threshold:            domain.Threshold{Depth: 6, Units: domain.Inches},
		NotificationsEnabled: true,
		Notifier:             writer,
		Clock:                clockwork.NewFakeClockAt(now),
	}, observability.NewMetricsForTesting(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	expr := regexp.MustCompile(`snow accumulation of (\d+) to (\d+)`)
	for _, label := range []string{"Alpental", "Crystal"} {
		report := domain.Report{
			Resort: domain.NewResort(domain.Location{Label: label, Path: "washington.php?location=" + label}),
			Weather: []domain.Weather{
				domain.NewWeather("Tonight", now.Add(6*time.Hour).Unix(), "snow accumulation of 4 to 8 inches", domain.Inches),
			},
			ServerInfo: domain.ServerInfo{ServerVersion: 5, AlertExpressions: []*regexp.Regexp{expr}},
		}
		n, err := mgr.AddAlerts(ctx, report)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	require.NoError(t, mgr.HandleNotifications(ctx))

	consumer := newConsumer(t, broker)
	got := readEvent(ctx, t, consumer)
	assert.Equal(t, kafka.EventAlertRaised, got.Event.Type)
	assert.Equal(t, 2, got.Event.Count)
	assert.Equal(t, []string{"Alpental", "Crystal"}, got.Event.Resorts)

	// No second notification was raised.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected exactly one notification")
}
