package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	httpadapter "github.com/couchcryptid/ski-report-service/internal/adapter/http"
	"github.com/couchcryptid/ski-report-service/internal/controller"
	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/resorts"
	"github.com/couchcryptid/ski-report-service/internal/wakeup"
)

// logListener mirrors controller events into the log and keeps the cache
// subscribed so freshness checks run on registration.
type logListener struct {
	svc *service
}

func (l *logListener) OnAdded(r domain.Report) {
	l.svc.logger.Debug("report added", "resort", r.Resort.Name(), "fresh", r.FreshString(), "errored", r.HasErrors())
}

func (l *logListener) OnLoading(started bool) {
	l.svc.logger.Debug("report loading", "started", started)
}

func (l *logListener) OnBusy(bool) {}

func (l *logListener) OnUpdated() {}

func runServe(_ *cli.Context) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()
	logger := svc.logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := resorts.OpenStore(svc.cfg.ResortDBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	list, err := resorts.Open(ctx, store, svc.cfg.Resorts)
	if err != nil {
		return err
	}

	ctrl := controller.New(controller.Options{
		Loader:  svc.loader,
		Resorts: list,
		Alerts: func(ctx context.Context) (controller.AlertSession, error) {
			m, err := svc.openAlerts(ctx)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		Metrics: svc.metrics,
		Logger:  logger,
	})
	poller := controller.NewPoller(ctrl, svc.cfg.ReloadInterval, nil, logger)

	srv := httpadapter.NewServer(svc.cfg.HTTPAddr, httpadapter.Deps{
		Reports: ctrl,
		Resorts: list,
		Alerts: func(ctx context.Context) (httpadapter.AlertView, error) {
			m, err := svc.openAlerts(ctx)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		Finder: svc.finder,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the controller worker and the reload poller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Run(ctx); err != nil {
			logger.Error("controller error", "error", err)
		}
	}()
	go poller.Run(ctx)

	// The first listener finds the cache stale and triggers the initial load.
	listener := &logListener{svc: svc}
	ctrl.AddListenerAndUpdateReports(listener, false)

	watcher := wakeup.NewWatcher(svc.cfg.WakeupThreshold, svc.notifier(), nil, svc.metrics, logger)
	go watcher.Run(ctx)
	ctrl.AddListenerAndUpdateReports(watcher, false)
	logger.Info("service started", "resorts", list.Len(), "reload_interval", svc.cfg.ReloadInterval)

	<-ctx.Done()
	logger.Info("shutting down")
	ctrl.RemoveListener(listener)
	ctrl.RemoveListener(watcher)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("controller did not stop before shutdown timeout")
	}

	logger.Info("shutdown complete")
	return nil
}
