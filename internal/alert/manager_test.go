package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

type recordingNotifier struct {
	notified []Notification
	cleared  int
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.notified = append(r.notified, n)
	return r.err
}

func (r *recordingNotifier) Clear(_ context.Context) error {
	r.cleared++
	return r.err
}

func openTestManager(t *testing.T, enabled bool) (*Manager, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	m, err := Open(Options{
		DBPath:               filepath.Join(t.TempDir(), "alerts.db"),
		Threshold:            domain.Threshold{Depth: 6, Units: domain.Inches},
		NotificationsEnabled: enabled,
		Notifier:             notifier,
		Clock:                clockwork.NewFakeClockAt(testNow),
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, notifier
}

func forecastReport(loc domain.Location, desc string, exact time.Time) domain.Report {
	return domain.Report{
		Resort: domain.NewResort(loc),
		Weather: []domain.Weather{
			domain.NewWeather("Tonight", exact.Unix(), desc, domain.Inches),
		},
		ServerInfo: domain.ServerInfo{ServerVersion: 5, AlertExpressions: []*regexp.Regexp{accumulationRe}},
	}
}

func TestManager_AddAlerts(t *testing.T) {
	m, _ := openTestManager(t, true)
	ctx := context.Background()

	r := forecastReport(alpental, "Snow. New snow accumulation of 4 to 8 inches.", testNow.Add(6*time.Hour))
	n, err := m.AddAlerts(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := m.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Re-matching the same forecast updates in place.
	r.Weather[0] = domain.NewWeather("Tonight", testNow.Add(6*time.Hour).Unix(), "snow accumulation of 6 to 10 inches", domain.Inches)
	_, err = m.AddAlerts(ctx, r)
	require.NoError(t, err)

	count, err = m.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_AddAlerts_BelowThresholdOrNoExpressions(t *testing.T) {
	m, _ := openTestManager(t, true)
	ctx := context.Background()

	low := forecastReport(alpental, "snow accumulation of 1 to 2 inches", testNow)
	n, err := m.AddAlerts(ctx, low)
	require.NoError(t, err)
	assert.Zero(t, n)

	noExprs := forecastReport(alpental, "snow accumulation of 10 to 20 inches", testNow)
	noExprs.ServerInfo.AlertExpressions = nil
	n, err = m.AddAlerts(ctx, noExprs)
	require.NoError(t, err)
	assert.Zero(t, n)

	noTime := forecastReport(alpental, "snow accumulation of 10 to 20 inches", testNow)
	noTime.Weather[0].Exact = time.Time{}
	n, err = m.AddAlerts(ctx, noTime)
	require.NoError(t, err)
	assert.Zero(t, n)

	resorts, err := m.Store().AlertResorts(ctx)
	require.NoError(t, err)
	assert.Empty(t, resorts)
}

func TestManager_HandleNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("no alerts", func(t *testing.T) {
		m, notifier := openTestManager(t, true)
		require.NoError(t, m.HandleNotifications(ctx))
		assert.Empty(t, notifier.notified)
	})

	t.Run("single resort", func(t *testing.T) {
		m, notifier := openTestManager(t, true)
		_, err := m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 4 to 8 inches", testNow))
		require.NoError(t, err)
		_, err = m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 6 to 9 inches", testNow.Add(time.Hour)))
		require.NoError(t, err)

		require.NoError(t, m.HandleNotifications(ctx))
		require.Len(t, notifier.notified, 1)
		assert.Equal(t, "Snow alert for Alpental", notifier.notified[0].Message)
	})

	t.Run("several resorts", func(t *testing.T) {
		m, notifier := openTestManager(t, true)
		_, err := m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 4 to 8 inches", testNow))
		require.NoError(t, err)
		_, err = m.AddAlerts(ctx, forecastReport(crystal, "snow accumulation of 4 to 8 inches", testNow))
		require.NoError(t, err)

		require.NoError(t, m.HandleNotifications(ctx))
		require.Len(t, notifier.notified, 1)
		assert.Equal(t, 2, notifier.notified[0].Count)
		assert.Equal(t, []string{"Alpental", "Crystal"}, notifier.notified[0].Resorts)
	})

	t.Run("disabled", func(t *testing.T) {
		m, notifier := openTestManager(t, false)
		_, err := m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 4 to 8 inches", testNow))
		require.NoError(t, err)

		require.NoError(t, m.HandleNotifications(ctx))
		assert.Empty(t, notifier.notified)
	})

	t.Run("acknowledged", func(t *testing.T) {
		m, notifier := openTestManager(t, true)
		_, err := m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 4 to 8 inches", testNow))
		require.NoError(t, err)

		acked, err := m.Acknowledge(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), acked)
		assert.Equal(t, 1, notifier.cleared)

		require.NoError(t, m.HandleNotifications(ctx))
		assert.Empty(t, notifier.notified)
	})

	t.Run("notifier error", func(t *testing.T) {
		m, notifier := openTestManager(t, true)
		notifier.err = errors.New("broker down")
		_, err := m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 4 to 8 inches", testNow))
		require.NoError(t, err)

		err = m.HandleNotifications(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})
}

func TestManager_RemoveResortAndOld(t *testing.T) {
	m, _ := openTestManager(t, true)
	ctx := context.Background()

	_, err := m.AddAlerts(ctx, forecastReport(alpental, "snow accumulation of 4 to 8 inches", testNow.Add(-7*time.Hour)))
	require.NoError(t, err)
	_, err = m.AddAlerts(ctx, forecastReport(crystal, "snow accumulation of 4 to 8 inches", testNow))
	require.NoError(t, err)

	require.NoError(t, m.RemoveOld(ctx))
	count, err := m.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, m.RemoveResort(ctx, domain.NewResort(crystal)))
	count, err = m.Store().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMultiNotifier(t *testing.T) {
	a := &recordingNotifier{err: errors.New("a failed")}
	b := &recordingNotifier{}
	multi := MultiNotifier{a, b}

	err := multi.Notify(context.Background(), NewNotification([]string{"Alpental"}, testNow))
	require.Error(t, err)
	assert.Len(t, b.notified, 1, "later notifiers still run")

	require.Error(t, multi.Clear(context.Background()))
	assert.Equal(t, 1, b.cleared)
}
