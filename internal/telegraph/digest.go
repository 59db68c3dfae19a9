package telegraph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DigestSource builds the summary a digest posts.
type DigestSource func() (FormattedEvent, error)

// Digest posts a periodic fleet summary to every sink of a Notifier.
type Digest struct {
	expr     string
	schedule cron.Schedule
	source   DigestSource
	notifier *Notifier
}

// NewDigest validates expr and returns a Digest. A nil notifier or source
// is an error.
func NewDigest(expr string, notifier *Notifier, source DigestSource) (*Digest, error) {
	if notifier == nil {
		return nil, fmt.Errorf("telegraph: digest notifier is required")
	}
	if source == nil {
		return nil, fmt.Errorf("telegraph: digest source is required")
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &Digest{expr: expr, schedule: sched, source: source, notifier: notifier}, nil
}

// Expr returns the schedule expression.
func (d *Digest) Expr() string { return d.expr }

// Until returns how long after now the next digest fires.
func (d *Digest) Until(now time.Time) time.Duration {
	return nextCronDuration(d.expr, now)
}

// Post builds the summary and sends it to every sink.
func (d *Digest) Post(ctx context.Context) error {
	ev, err := d.source()
	if err != nil {
		return fmt.Errorf("telegraph: build digest: %w", err)
	}
	return d.notifier.Broadcast(ctx, OutboundMessage{Text: ev.Title, Events: []FormattedEvent{ev}})
}

// Run implements cron.Job. Failures are logged.
func (d *Digest) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), d.notifier.timeout)
	defer cancel()
	if err := d.Post(ctx); err != nil {
		log.Printf("telegraph: digest: %v", err)
	}
}

// Register adds the digest to c on its own schedule.
func (d *Digest) Register(c *cron.Cron) cron.EntryID {
	return c.Schedule(d.schedule, d)
}
