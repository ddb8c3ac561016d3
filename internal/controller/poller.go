package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Poller periodically ages alerts and forces a background reload.
type Poller struct {
	controller *Controller
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewPoller(c *Controller, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{controller: c, interval: interval, clock: clock, logger: logger}
}

// Run ticks until ctx is cancelled. The first reload is left to listeners
// registering against an empty cache.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("reload poller started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	p.logger.Debug("reload poll")
	p.controller.RemoveOldAlerts()
	p.controller.ForceLoadReports(true)
}
