// Package controller serializes report loading onto a single worker and
// keeps a shared report cache that any number of listeners can observe.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

// StaleAfter is how long a completed load keeps the cache fresh.
const StaleAfter = time.Hour

// Listener observes the controller. Callbacks run on the worker goroutine
// (or on the caller of AddListenerAndUpdateReports during replay) and must
// not block. They may call the read-only methods and RemoveListener.
// Implementations must be comparable; use pointer receivers.
type Listener interface {
	OnAdded(r domain.Report)
	OnLoading(started bool)
	OnBusy(busy bool)
	// OnUpdated fires whenever the cache changed.
	OnUpdated()
}

// ReportLoader fetches one resort report. It never fails; transport errors
// yield an errored report.
type ReportLoader interface {
	LoadReport(ctx context.Context, resort domain.Resort) domain.Report
}

// ResortSource supplies the resorts a full reload covers.
type ResortSource interface {
	Resorts() []domain.Resort
}

// AlertSession is the alert store scoped to one action.
type AlertSession interface {
	AddAlerts(ctx context.Context, r domain.Report) (int, error)
	HandleNotifications(ctx context.Context) error
	RemoveResort(ctx context.Context, r domain.Resort) error
	RemoveAll(ctx context.Context) error
	RemoveOld(ctx context.Context) error
	Close() error
}

// AlertOpener opens an AlertSession. The controller closes every session it opens.
type AlertOpener func(ctx context.Context) (AlertSession, error)

// Options configures a Controller.
type Options struct {
	Loader  ReportLoader
	Resorts ResortSource
	Alerts  AlertOpener
	Clock   clockwork.Clock
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Controller owns the report cache and the worker that fills it.
type Controller struct {
	loader     ReportLoader
	resorts    ResortSource
	openAlerts AlertOpener
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
	queue      *actionQueue

	// mu guards listeners, cache, lastLoad, loading and forcePending.
	mu           sync.Mutex
	listeners    map[Listener]struct{}
	cache        map[string]domain.Report
	lastLoad     time.Time
	loading      bool
	forcePending bool

	// forceMu serializes the stale check and reload enqueue.
	forceMu sync.Mutex
	// notifyMu serializes delivery so replays never interleave with worker events.
	notifyMu sync.Mutex

	pending atomic.Int64
	busy    atomic.Bool
	ready   atomic.Bool
}

// New creates a Controller. Call Run to start its worker.
func New(opts Options) *Controller {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Controller{
		loader:     opts.Loader,
		resorts:    opts.Resorts,
		openAlerts: opts.Alerts,
		clock:      clk,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		queue:      newActionQueue(),
		listeners:  make(map[Listener]struct{}),
		cache:      make(map[string]domain.Report),
	}
}

// Run executes queued actions one at a time until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started")
	for {
		a, ok := c.queue.pop(ctx)
		if !ok {
			c.logger.Info("controller stopping", "reason", ctx.Err())
			return nil
		}
		c.process(ctx, a)
	}
}

// CheckReadiness returns nil once a full load has completed.
func (c *Controller) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("reports have not been loaded yet")
	}
	return nil
}

// IsBusy reports whether the worker is executing an action.
func (c *Controller) IsBusy() bool {
	return c.busy.Load()
}

// Pending returns the number of queued or running actions.
func (c *Controller) Pending() int {
	return int(c.pending.Load())
}

// AddResort queues a fetch of a single resort.
func (c *Controller) AddResort(r domain.Resort) {
	c.logger.Debug("add resort requested", "resort", r.Name())
	c.enqueue(action{kind: actionAddResort, resort: r})
}

// RemoveResort queues removal of a resort and its alerts.
func (c *Controller) RemoveResort(r domain.Resort) {
	c.logger.Debug("remove resort requested", "resort", r.Name())
	c.enqueue(action{kind: actionRemoveResort, resort: r})
}

// ForceLoadReports queues a reload of every resort regardless of cache age.
// It is a no-op while a forced reload is already pending. background is
// carried for logging only.
func (c *Controller) ForceLoadReports(background bool) {
	c.mu.Lock()
	if c.forcePending {
		c.mu.Unlock()
		c.logger.Debug("forced reload already pending")
		return
	}
	c.forcePending = true
	c.mu.Unlock()

	c.enqueue(action{kind: actionLoadAll, resorts: c.resorts.Resorts(), background: background})
}

// AddListenerAndUpdateReports registers l. When the cache is fresh, the
// cached reports are replayed to l; otherwise one forced reload is queued no
// matter how many listeners register concurrently.
func (c *Controller) AddListenerAndUpdateReports(l Listener, background bool) {
	c.notifyMu.Lock()
	c.mu.Lock()
	fresh := !c.staleLocked()
	var (
		cached  []domain.Report
		loading bool
	)
	if fresh {
		cached = c.sortedLocked()
		loading = c.loading
	}
	c.listeners[l] = struct{}{}
	c.mu.Unlock()

	if fresh {
		c.deliver(l, func(l Listener) {
			l.OnLoading(true)
			for _, r := range cached {
				l.OnAdded(r)
			}
			if !loading {
				l.OnLoading(false)
			}
			l.OnUpdated()
		})
	}
	c.notifyMu.Unlock()

	c.forceMu.Lock()
	defer c.forceMu.Unlock()

	c.mu.Lock()
	reload := c.staleLocked() && !c.forcePending
	c.mu.Unlock()
	if reload {
		c.ForceLoadReports(background)
	}
}

// RemoveListener unregisters l and reports whether it was registered.
func (c *Controller) RemoveListener(l Listener) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.listeners[l]
	delete(c.listeners, l)
	return ok
}

// GetSortedReportList returns the cached reports ordered by resort name.
func (c *Controller) GetSortedReportList() []domain.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedLocked()
}

// RemoveAllReportsAndAlerts clears the cache and purges every stored alert.
func (c *Controller) RemoveAllReportsAndAlerts(ctx context.Context) error {
	c.logger.Info("removing all reports and alerts")
	c.update(func() {
		clear(c.cache)
	}, func(l Listener) {
		l.OnUpdated()
	})

	return c.withAlerts(ctx, func(s AlertSession) error {
		return s.RemoveAll(ctx)
	})
}

// RemoveOldAlerts queues aging of alerts past their horizon. The store is
// only touched by the worker.
func (c *Controller) RemoveOldAlerts() {
	c.enqueue(action{kind: actionRemoveOld})
}

func (c *Controller) enqueue(a action) {
	c.pending.Add(1)
	c.queue.push(a)
}

func (c *Controller) process(ctx context.Context, a action) {
	defer c.pending.Add(-1)
	c.setBusy(true)
	defer c.setBusy(false)

	if err := c.safeExecute(ctx, a); err != nil {
		c.metrics.ActionFailures.WithLabelValues(a.kind.String()).Inc()
		c.logger.Error("action failed", "action", a.kind.String(), "error", err)
	}
	c.metrics.ActionsProcessed.WithLabelValues(a.kind.String()).Inc()
}

func (c *Controller) safeExecute(ctx context.Context, a action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.execute(ctx, a)
}

func (c *Controller) execute(ctx context.Context, a action) error {
	switch a.kind {
	case actionAddResort:
		return c.addResort(ctx, a.resort)
	case actionRemoveResort:
		return c.removeResort(ctx, a.resort)
	case actionLoadAll:
		return c.loadAll(ctx, a)
	case actionRemoveOld:
		return c.withAlerts(ctx, func(s AlertSession) error {
			return s.RemoveOld(ctx)
		})
	default:
		return fmt.Errorf("unknown action %d", a.kind)
	}
}

func (c *Controller) addResort(ctx context.Context, resort domain.Resort) error {
	report := c.loader.LoadReport(ctx, resort)

	err := c.withAlerts(ctx, func(s AlertSession) error {
		if _, err := s.AddAlerts(ctx, report); err != nil {
			return err
		}
		return s.HandleNotifications(ctx)
	})

	c.update(func() {
		c.lastLoad = c.clock.Now()
		c.cache[resort.Name()] = report
	}, func(l Listener) {
		l.OnAdded(report)
		l.OnUpdated()
	})
	c.logger.Info("resort added", "resort", resort.Name(), "errored", report.HasErrors())
	return err
}

func (c *Controller) removeResort(ctx context.Context, resort domain.Resort) error {
	err := c.withAlerts(ctx, func(s AlertSession) error {
		return s.RemoveResort(ctx, resort)
	})

	c.update(func() {
		delete(c.cache, resort.Name())
	}, func(l Listener) {
		l.OnUpdated()
	})
	c.logger.Info("resort removed", "resort", resort.Name())
	return err
}

func (c *Controller) loadAll(ctx context.Context, a action) error {
	c.logger.Info("loading reports", "resorts", len(a.resorts), "background", a.background)

	c.update(func() {
		clear(c.cache)
		c.loading = true
	}, func(l Listener) {
		l.OnUpdated()
		l.OnLoading(true)
	})
	defer c.update(func() {
		c.loading = false
		c.forcePending = false
	}, func(l Listener) {
		l.OnLoading(false)
	})

	var errs []error
	session, err := c.openAlerts(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("open alerts: %w", err))
	} else {
		defer c.closeAlerts(session)
	}

	for _, resort := range a.resorts {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		report := c.loader.LoadReport(ctx, resort)
		if session != nil {
			if _, err := session.AddAlerts(ctx, report); err != nil {
				errs = append(errs, fmt.Errorf("add alerts for %s: %w", resort.Name(), err))
			}
		}

		c.update(func() {
			c.lastLoad = c.clock.Now()
			c.cache[resort.Name()] = report
		}, func(l Listener) {
			l.OnAdded(report)
			l.OnUpdated()
		})
	}

	if session != nil {
		if err := session.HandleNotifications(ctx); err != nil {
			errs = append(errs, fmt.Errorf("handle notifications: %w", err))
		}
	}

	c.ready.Store(true)
	c.logger.Info("reports loaded", "resorts", len(a.resorts))
	return errors.Join(errs...)
}

// withAlerts opens a session, runs fn and always closes the session.
func (c *Controller) withAlerts(ctx context.Context, fn func(AlertSession) error) error {
	session, err := c.openAlerts(ctx)
	if err != nil {
		return fmt.Errorf("open alerts: %w", err)
	}
	defer c.closeAlerts(session)
	return fn(session)
}

func (c *Controller) closeAlerts(s AlertSession) {
	if err := s.Close(); err != nil {
		c.logger.Warn("close alerts failed", "error", err)
	}
}

func (c *Controller) setBusy(busy bool) {
	c.busy.Store(busy)
	if busy {
		c.metrics.ControllerBusy.Set(1)
	} else {
		c.metrics.ControllerBusy.Set(0)
	}
	c.update(nil, func(l Listener) {
		l.OnBusy(busy)
	})
}

// update applies mutate under the state lock and then delivers notify to a
// snapshot of the listeners outside it.
func (c *Controller) update(mutate func(), notify func(Listener)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if mutate != nil {
		mutate()
	}
	c.metrics.CachedReports.Set(float64(len(c.cache)))
	listeners := make([]Listener, 0, len(c.listeners))
	for l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		c.deliver(l, notify)
	}
}

// deliver runs one listener callback. A panicking listener is logged and
// does not stop delivery to the others or the worker.
func (c *Controller) deliver(l Listener, notify func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.ListenerPanics.Inc()
			c.logger.Error("listener panicked", "listener", fmt.Sprintf("%T", l), "panic", r)
		}
	}()
	notify(l)
}

func (c *Controller) staleLocked() bool {
	return c.lastLoad.IsZero() || c.clock.Since(c.lastLoad) > StaleAfter
}

func (c *Controller) sortedLocked() []domain.Report {
	reports := make([]domain.Report, 0, len(c.cache))
	for _, r := range c.cache {
		reports = append(reports, r)
	}
	slices.SortFunc(reports, func(a, b domain.Report) int {
		return domain.CompareResorts(a.Resort, b.Resort)
	})
	return reports
}
