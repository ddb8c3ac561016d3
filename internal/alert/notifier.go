package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Kind tells snow alert notifications apart from wake-up events.
type Kind string

const (
	KindSnowAlert Kind = "snow_alert"
	KindWakeup    Kind = "wakeup"
)

// Notification is the single consolidated event raised for all resorts
// that currently have unacknowledged alerts, or a wake-up for one resort.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Resorts []string  `json:"resorts"`
	Count   int       `json:"count"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// NewNotification builds the event for the given resort labels.
func NewNotification(resorts []string, now time.Time) Notification {
	msg := fmt.Sprintf("Snow alerts for %d resorts", len(resorts))
	if len(resorts) == 1 {
		msg = "Snow alert for " + resorts[0]
	}
	return Notification{Kind: KindSnowAlert, Resorts: resorts, Count: len(resorts), Message: msg, Time: now}
}

// NewWakeupNotification builds the wake-up event for a resort whose fresh
// snow met the wake-up threshold.
func NewWakeupNotification(resort, fresh string, now time.Time) Notification {
	return Notification{
		Kind:    KindWakeup,
		Resorts: []string{resort},
		Count:   1,
		Message: fmt.Sprintf("Wake up! %s reports %s of fresh snow", resort, fresh),
		Time:    now,
	}
}

// Notifier delivers alert notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	// Clear withdraws any pending notification.
	Clear(ctx context.Context) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	msg := "snow alert"
	if notification.Kind == KindWakeup {
		msg = "wake-up"
	}
	n.logger.Info(msg, "message", notification.Message, "resorts", notification.Resorts)
	return nil
}

func (n *LogNotifier) Clear(_ context.Context) error {
	n.logger.Info("snow alerts acknowledged")
	return nil
}

// MultiNotifier fans a notification out to several notifiers, returning the
// first error after trying all of them.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiNotifier) Clear(ctx context.Context) error {
	var first error
	for _, notifier := range m {
		if err := notifier.Clear(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
