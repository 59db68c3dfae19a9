package telegraph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/hive/internal/health"
)

// DefaultPostTimeout bounds one fan-out to every sink.
const DefaultPostTimeout = 15 * time.Second

// Notifier fans alert events out to sinks.
type Notifier struct {
	sinks    []Sink
	minLevel health.Level
	timeout  time.Duration
}

// NewNotifier returns a Notifier forwarding alerts at or above minLevel.
func NewNotifier(minLevel health.Level, sinks ...Sink) *Notifier {
	if _, ok := health.ParseLevel(string(minLevel)); !ok {
		minLevel = health.LevelWarning
	}
	return &Notifier{sinks: sinks, minLevel: minLevel, timeout: DefaultPostTimeout}
}

// Sinks returns the configured sinks.
func (n *Notifier) Sinks() []Sink { return n.sinks }

func levelRank(l health.Level) int {
	switch l {
	case health.LevelCritical:
		return 2
	case health.LevelWarning:
		return 1
	}
	return 0
}

// Wants reports whether an alert at level l passes the threshold.
func (n *Notifier) Wants(l health.Level) bool {
	return levelRank(l) >= levelRank(n.minLevel)
}

// NotifyAlert posts ev to every sink when its level passes the threshold.
func (n *Notifier) NotifyAlert(ctx context.Context, ev health.AlertEvent) error {
	if !n.Wants(ev.Alert.Level) {
		return nil
	}
	formatted := FormatAlert(ev)
	return n.Broadcast(ctx, OutboundMessage{Text: formatted.Title, Events: []FormattedEvent{formatted}})
}

// Broadcast posts msg to every sink, continuing past failures. The returned
// error joins every sink failure.
func (n *Notifier) Broadcast(ctx context.Context, msg OutboundMessage) error {
	var errs []error
	for _, s := range n.sinks {
		if err := s.Post(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("telegraph: %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Hook adapts the Notifier to health.WithAlertHook. Failures are logged.
func (n *Notifier) Hook() func(health.AlertEvent) {
	return func(ev health.AlertEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.NotifyAlert(ctx, ev); err != nil {
			log.Printf("telegraph: alert %s: %v", ev.Alert.ID, err)
		}
	}
}
