// Package coordinator runs the daemon that advances every hive component on
// a fixed cadence: inbox routing, message delivery and cleanup, agent
// liveness and health evaluation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/journal"
	"github.com/zulandar/hive/internal/messenger"
	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/router"
	"github.com/zulandar/hive/internal/status"
	"github.com/zulandar/hive/internal/telegraph"
	"github.com/zulandar/hive/internal/wire"
	"gorm.io/gorm"
)

// DefaultFleet names the lease row when Opts.Fleet is empty.
const DefaultFleet = "hive"

// Opts holds parameters for creating a Coordinator.
type Opts struct {
	Config   *config.Config
	DB       *gorm.DB
	Sampler  Sampler             // nil reads /proc
	Notifier *telegraph.Notifier // nil disables chat notifications
	Fleet    string              // lease name; defaults to DefaultFleet
	Holder   string              // lease holder; defaults to hostname:pid
	Out      io.Writer           // operator progress; defaults to io.Discard
}

// Coordinator owns one coordination domain.
type Coordinator struct {
	cfg       *config.Config
	db        *gorm.DB
	queues    *queue.Registry
	router    *router.Router
	messenger *messenger.Messenger
	monitor   *health.Monitor
	tracker   *status.Tracker
	sampler   Sampler
	notifier  *telegraph.Notifier
	digest    *telegraph.Digest
	fleet     string
	holder    string
	out       io.Writer
	now       func() time.Time

	leaseLost chan error
}

// New wires every component from cfg. Queues for every known agent are
// created up front so they show in status output before receiving work.
func New(opts Opts) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("coordinator: config is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("coordinator: db is required")
	}
	cfg := opts.Config
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	mirror := journal.DBMirror{DB: opts.DB}
	queues, err := queue.NewRegistry(cfg.QueueDir, mirror)
	if err != nil {
		return nil, err
	}
	for _, a := range wire.Agents() {
		if _, err := queues.Get(a.String()); err != nil {
			return nil, err
		}
	}

	tracker, err := status.NewTracker(opts.DB, status.Timeouts{
		OfflineAfter:   cfg.Agents.OfflineAfter.D(),
		WaitingTimeout: cfg.Agents.WaitingTimeout.D(),
		BusyTimeout:    cfg.Agents.BusyTimeout.D(),
	})
	if err != nil {
		return nil, err
	}

	rt, err := router.New(router.Opts{
		InboxDir:     cfg.InboxDir,
		Queues:       queues,
		Availability: tracker,
		Out:          out,
	})
	if err != nil {
		return nil, err
	}

	msgr := messenger.New(messenger.Opts{
		LogDir:          cfg.LogDir,
		MaxRetries:      cfg.Messenger.MaxRetries,
		DefaultTTL:      cfg.Messenger.DefaultTTL.D(),
		MailboxCapacity: cfg.Messenger.MailboxCapacity,
		Mirror:          mirror,
	})

	monOpts := []health.Option{health.WithMirror(mirror)}
	if r := cfg.Health.Retention.D(); r > 0 {
		monOpts = append(monOpts, health.WithRetention(r))
	}
	if opts.Notifier != nil {
		monOpts = append(monOpts, health.WithAlertHook(opts.Notifier.Hook()))
	}

	c := &Coordinator{
		cfg:       cfg,
		db:        opts.DB,
		queues:    queues,
		router:    rt,
		messenger: msgr,
		monitor:   health.New(cfg.LogDir, monOpts...),
		tracker:   tracker,
		sampler:   opts.Sampler,
		notifier:  opts.Notifier,
		fleet:     opts.Fleet,
		holder:    opts.Holder,
		out:       out,
		now:       time.Now,
		leaseLost: make(chan error, 1),
	}
	if c.sampler == nil {
		c.sampler = NewProcSampler()
	}
	if c.fleet == "" {
		c.fleet = DefaultFleet
	}
	if c.holder == "" {
		host, _ := os.Hostname()
		c.holder = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	if opts.Notifier != nil && cfg.Telegraph.DigestSchedule != "" {
		c.digest, err = telegraph.NewDigest(cfg.Telegraph.DigestSchedule, opts.Notifier, c.digestEvent)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Queues returns the queue registry.
func (c *Coordinator) Queues() *queue.Registry { return c.queues }

// Router returns the inbox router.
func (c *Coordinator) Router() *router.Router { return c.router }

// Messenger returns the ephemeral messenger.
func (c *Coordinator) Messenger() *messenger.Messenger { return c.messenger }

// Monitor returns the health monitor.
func (c *Coordinator) Monitor() *health.Monitor { return c.monitor }

// Tracker returns the agent status tracker.
func (c *Coordinator) Tracker() *status.Tracker { return c.tracker }

// Holder returns the lease holder id this coordinator runs as.
func (c *Coordinator) Holder() string { return c.holder }

// RouteInbox runs one inbox pass.
func (c *Coordinator) RouteInbox() int {
	n := c.router.ProcessInbox()
	if n > 0 {
		fmt.Fprintf(c.out, "Routed %d new messages\n", n)
	}
	return n
}

// Sweep delivers queued ephemeral messages.
func (c *Coordinator) Sweep() messenger.SweepResult {
	res := c.messenger.Sweep()
	for _, id := range res.Failed {
		log.Printf("coordinator: message %s failed after retries", id)
	}
	return res
}

// Cleanup purges expired mailbox entries and returns how many were removed.
func (c *Coordinator) Cleanup() int {
	total := 0
	for _, n := range c.messenger.CleanupExpired() {
		total += n
	}
	if total > 0 {
		fmt.Fprintf(c.out, "Cleaned up %d expired messages\n", total)
	}
	return total
}

// CheckHeartbeats applies the agent liveness rules.
func (c *Coordinator) CheckHeartbeats() ([]status.Transition, error) {
	trans, err := c.tracker.CheckHeartbeats(c.now())
	for _, t := range trans {
		fmt.Fprintf(c.out, "Agent %s: %s -> %s (%s)\n", t.AgentID, t.From, t.To, t.Reason)
	}
	return trans, err
}

// Gather collects the health inputs from every component. A resource
// sampling failure is logged and reported as zero usage.
func (c *Coordinator) Gather() (health.FleetMetrics, error) {
	sum, err := c.tracker.Summarize()
	if err != nil {
		return health.FleetMetrics{}, fmt.Errorf("coordinator: gather: %w", err)
	}
	counts := c.messenger.Counts()
	fm := health.FleetMetrics{
		TotalBots:              sum.Total,
		ActiveBots:             sum.Active(),
		QueuedTasks:            c.queues.TotalSize(),
		AvgBotLoad:             sum.Load(),
		MessageQueueSize:       c.messenger.Status().PendingDelivery,
		PendingMessageFailures: counts.PendingFailures,
		AvgSuccessRate:         counts.SuccessRate(),
	}
	res, err := c.sampler.Sample()
	if err != nil {
		log.Printf("coordinator: sample resources: %v", err)
	} else {
		fm.CPU = res.CPU
		fm.Memory = res.Memory
	}
	return fm, nil
}

// Evaluate gathers metrics and runs one health evaluation.
func (c *Coordinator) Evaluate() (health.Snapshot, error) {
	fm, err := c.Gather()
	if err != nil {
		return health.Snapshot{}, err
	}
	return c.monitor.Evaluate(fm), nil
}

// Tick runs every job once in dependency order.
func (c *Coordinator) Tick() error {
	c.RouteInbox()
	c.Sweep()
	c.Cleanup()
	if _, err := c.CheckHeartbeats(); err != nil {
		return err
	}
	_, err := c.Evaluate()
	return err
}

func (c *Coordinator) digestEvent() (telegraph.FormattedEvent, error) {
	return telegraph.FormatDigest(c.monitor.Dashboard(), c.queues.Sizes()), nil
}

// heartbeatJob checks agent liveness and renews the lease. Losing the lease
// stops Run; a failed renewal is retried on the next tick.
func (c *Coordinator) heartbeatJob() {
	if _, err := c.CheckHeartbeats(); err != nil {
		log.Printf("coordinator: %v", err)
	}
	err := RenewLease(c.db, c.fleet, c.holder, c.now())
	if errors.Is(err, ErrLeaseLost) {
		select {
		case c.leaseLost <- err:
		default:
		}
	} else if err != nil {
		log.Printf("coordinator: %v (retrying)", err)
	}
}

func every(d, fallback time.Duration) string {
	if d <= 0 {
		d = fallback
	}
	return "@every " + d.String()
}

// Run takes the fleet lease, then schedules every job until ctx is
// cancelled or the lease is lost. It stops the scheduler and waits for
// running jobs before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	if _, err := AcquireLease(c.db, c.fleet, c.holder, c.now(), DefaultLeaseTimeout); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Coordinator %s holds lease %q\n", c.holder, c.fleet)
	defer func() {
		if err := ReleaseLease(c.db, c.fleet, c.holder); err != nil {
			log.Printf("coordinator: %v", err)
		}
		fmt.Fprintf(c.out, "Coordinator stopped.\n")
	}()

	logger := cron.PrintfLogger(log.Default())
	sched := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	d := c.cfg.Daemon
	heartbeat := d.HeartbeatCheckInterval.D()
	if heartbeat <= 0 || heartbeat > DefaultLeaseTimeout/3 {
		heartbeat = DefaultLeaseTimeout / 3
	}
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"route", every(c.cfg.Router.PollInterval.D(), router.DefaultPollInterval), func() { c.RouteInbox() }},
		{"sweep", every(d.SweepInterval.D(), 5*time.Second), func() { c.Sweep() }},
		{"cleanup", every(d.CleanupInterval.D(), 5*time.Minute), func() { c.Cleanup() }},
		{"heartbeat", every(heartbeat, time.Minute), c.heartbeatJob},
		{"health", every(c.cfg.Health.Interval.D(), 30*time.Second), func() {
			if _, err := c.Evaluate(); err != nil {
				log.Printf("coordinator: %v", err)
			}
		}},
	}
	for _, j := range jobs {
		if _, err := sched.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("coordinator: schedule %s: %w", j.name, err)
		}
		fmt.Fprintf(c.out, "Scheduled %s (%s)\n", j.name, j.spec)
	}
	if c.digest != nil {
		c.digest.Register(sched)
		fmt.Fprintf(c.out, "Scheduled digest (%s)\n", c.digest.Expr())
	}

	if err := c.Tick(); err != nil {
		log.Printf("coordinator: initial pass: %v", err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-c.leaseLost:
		return fmt.Errorf("coordinator: lease lost: %w", err)
	}
}
