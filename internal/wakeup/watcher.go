// Package wakeup raises a wake-up event when a wake-up enabled resort
// reports enough fresh snow.
package wakeup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ski-report-service/internal/alert"
	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

// Watcher is a controller listener. It fires at most one wake-up per load:
// the first wake-up enabled resort meeting the threshold wins and the flag
// is reset when the next load starts.
//
// Callbacks only decide and queue; Run delivers to the notifier so a slow
// notifier never blocks the controller worker.
type Watcher struct {
	threshold domain.Threshold
	notifier  alert.Notifier
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	fired  bool
	events chan alert.Notification
}

func NewWatcher(threshold domain.Threshold, notifier alert.Notifier, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{
		threshold: threshold,
		notifier:  notifier,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		events:    make(chan alert.Notification, 1),
	}
}

// OnLoading re-arms the watcher when a load starts.
func (w *Watcher) OnLoading(started bool) {
	if !started {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fired = false
}

// OnAdded checks one report against the wake-up threshold.
func (w *Watcher) OnAdded(r domain.Report) {
	name := r.Resort.Name()
	if !r.Resort.WakeupEnabled {
		w.logger.Debug("resort is not wakeup enabled", "resort", name)
		return
	}
	if !r.MeetsPreference(w.threshold) {
		w.logger.Debug("resort did not meet wakeup threshold", "resort", name, "fresh", r.FreshString(), "threshold", w.threshold.String())
		return
	}

	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()

	w.logger.Info("resort met wakeup threshold", "resort", name, "fresh", r.FreshString(), "threshold", w.threshold.String())
	n := alert.NewWakeupNotification(name, r.FreshString(), w.clock.Now())
	select {
	case w.events <- n:
	default:
		w.logger.Warn("wakeup dropped, previous one still pending", "resort", name)
	}
}

func (w *Watcher) OnBusy(bool) {}

func (w *Watcher) OnUpdated() {}

// Run delivers queued wake-ups until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.events:
			if err := w.notifier.Notify(ctx, n); err != nil {
				w.logger.Error("wakeup notification failed", "resort", n.Resorts[0], "error", err)
				continue
			}
			w.metrics.WakeupsRaised.Inc()
		}
	}
}
