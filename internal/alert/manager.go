package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

// Options configures a Manager.
type Options struct {
	DBPath               string
	Threshold            domain.Threshold
	NotificationsEnabled bool
	Notifier             Notifier
	Clock                clockwork.Clock
}

// Manager combines the store, matcher and notifier for one unit of work.
// Callers open a Manager per action and Close it when done.
type Manager struct {
	store    *Store
	matcher  *Matcher
	notifier Notifier
	enabled  bool
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Open opens the alert store and returns a Manager that owns it.
func Open(opts Options, metrics *observability.Metrics, logger *slog.Logger) (*Manager, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	store, err := OpenStore(opts.DBPath, clk)
	if err != nil {
		return nil, err
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Manager{
		store:    store,
		matcher:  NewMatcher(opts.Threshold),
		notifier: notifier,
		enabled:  opts.NotificationsEnabled,
		clock:    clk,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Close releases the store handle.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) Store() *Store {
	return m.store
}

// AddAlerts stores an alert for every forecast of r that meets the
// threshold. It returns the number of alerts written.
func (m *Manager) AddAlerts(ctx context.Context, r domain.Report) (int, error) {
	exprs := r.ServerInfo.AlertExpressions
	if len(exprs) == 0 || len(r.Weather) == 0 {
		return 0, nil
	}

	var (
		resortID int64
		written  int
	)
	for _, w := range r.Weather {
		if w.Exact.IsZero() {
			m.logger.Debug("forecast has no exact time, skipping alert check", "resort", r.Resort.Name(), "when", w.When)
			continue
		}
		if !m.matcher.HasSnowAlert(w, exprs) {
			continue
		}
		if resortID == 0 {
			id, err := m.store.ResortID(ctx, r.Resort.Location)
			if err != nil {
				return written, err
			}
			resortID = id
		}
		if err := m.store.UpsertAlert(ctx, resortID, w.Exact, w.Description); err != nil {
			return written, err
		}
		written++
		m.metrics.AlertsUpserted.Inc()
		m.logger.Info("snow alert stored", "resort", r.Resort.Name(), "when", w.When, "time", w.Exact)
	}
	return written, nil
}

// HandleNotifications raises one notification covering every resort with
// unacknowledged alerts. Nothing is raised when notifications are disabled
// or no such resort exists.
func (m *Manager) HandleNotifications(ctx context.Context) error {
	if !m.enabled {
		return nil
	}
	resorts, err := m.store.UnackedResorts(ctx)
	if err != nil {
		return err
	}
	if len(resorts) == 0 {
		return nil
	}

	labels := make([]string, 0, len(resorts))
	for _, r := range resorts {
		labels = append(labels, r.Label)
	}
	if err := m.notifier.Notify(ctx, NewNotification(labels, m.clock.Now())); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	m.metrics.NotificationsRaised.Inc()
	return nil
}

// Acknowledge marks all alerts as acknowledged and clears the pending notification.
func (m *Manager) Acknowledge(ctx context.Context) (int64, error) {
	n, err := m.store.AcknowledgeAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.notifier.Clear(ctx); err != nil {
		return n, fmt.Errorf("clear notification: %w", err)
	}
	return n, nil
}

func (m *Manager) RemoveResort(ctx context.Context, r domain.Resort) error {
	n, err := m.store.RemoveResort(ctx, r.Location)
	if err != nil {
		return err
	}
	m.metrics.AlertsRemoved.Add(float64(n))
	return nil
}

func (m *Manager) RemoveAll(ctx context.Context) error {
	return m.store.RemoveAll(ctx)
}

// RemoveOld ages out alerts past MaxAge.
func (m *Manager) RemoveOld(ctx context.Context) error {
	n, err := m.store.RemoveOld(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.metrics.AlertsRemoved.Add(float64(n))
		m.logger.Info("old alerts removed", "count", n)
	}
	return nil
}

// AlertResorts lists resorts with alerts, ordered by label.
func (m *Manager) AlertResorts(ctx context.Context) ([]AlertResort, error) {
	return m.store.AlertResorts(ctx)
}

// Alerts lists the alerts of one resort ordered by forecast time.
func (m *Manager) Alerts(ctx context.Context, resortID int64) ([]Alert, error) {
	return m.store.Alerts(ctx, resortID)
}
