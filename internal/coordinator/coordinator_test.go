package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/messenger"
	"github.com/zulandar/hive/internal/models"
	"github.com/zulandar/hive/internal/status"
	"github.com/zulandar/hive/internal/telegraph"
	"github.com/zulandar/hive/internal/wire"
	"gorm.io/gorm"
)

type failingSampler struct{}

func (failingSampler) Sample() (Resources, error) { return Resources{}, fmt.Errorf("no /proc") }

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("home: " + t.TempDir() + "\n" + extra))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func testCoordinator(t *testing.T, opts Opts) (*Coordinator, *gorm.DB) {
	t.Helper()
	if opts.Config == nil {
		opts.Config = testConfig(t, "")
	}
	if opts.DB == nil {
		opts.DB = testDB(t)
	}
	if opts.Sampler == nil {
		opts.Sampler = StaticSampler{CPU: 0.1, Memory: 0.2}
	}
	if opts.Holder == "" {
		opts.Holder = "test:1"
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, opts.DB
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{DB: testDB(t)}); err == nil || !strings.Contains(err.Error(), "config is required") {
		t.Errorf("expected config error, got %v", err)
	}
	if _, err := New(Opts{Config: testConfig(t, "")}); err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("expected db error, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Opts{Config: testConfig(t, ""), DB: testDB(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.sampler.(*ProcSampler); !ok {
		t.Errorf("default sampler = %T", c.sampler)
	}
	if c.fleet != DefaultFleet {
		t.Errorf("fleet = %q", c.fleet)
	}
	if !strings.Contains(c.Holder(), ":") {
		t.Errorf("holder = %q, want host:pid", c.Holder())
	}
	if c.digest != nil {
		t.Error("digest should be off without a notifier")
	}
}

func TestNew_PrecreatesAgentQueues(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	if got := len(c.Queues().Agents()); got != len(wire.Agents()) {
		t.Errorf("queues = %d, want %d", got, len(wire.Agents()))
	}
}

func TestRouteInbox_Direct(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	if _, err := wire.CreateTaskFile(c.Router().InboxDir(), t0, wire.AgentGPT4, wire.AgentDave, wire.TypeTask, "build", "body"); err != nil {
		t.Fatalf("CreateTaskFile: %v", err)
	}
	if n := c.RouteInbox(); n != 1 {
		t.Fatalf("RouteInbox = %d, want 1", n)
	}
	q, _ := c.Queues().Lookup(wire.AgentDave.String())
	if q.Size() != 1 {
		t.Errorf("DAVE queue = %d, want 1", q.Size())
	}
}

func TestRouteInbox_BestAvailableUsesTracker(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	c.Tracker().Register(wire.AgentGPT5.String(), status.RoleWorker)
	c.Tracker().Register(wire.AgentChatGPT.String(), status.RoleWorker)
	c.Tracker().Heartbeat(wire.AgentChatGPT.String(), status.StatusBusy, "x")

	wire.CreateTaskFile(c.Router().InboxDir(), t0, wire.AgentDave, wire.BestAvailable, wire.TypeQuery, "who", "")
	c.RouteInbox()

	q, _ := c.Queues().Lookup(wire.AgentGPT5.String())
	if q.Size() != 1 {
		t.Errorf("GPT5 queue = %d, want the idle agent to receive ANY", q.Size())
	}
}

func TestGather(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	c.Tracker().Register("QUEEN", status.RoleQueen)
	c.Tracker().Register("DRONE_1", status.RoleDrone)
	c.Tracker().Heartbeat("DRONE_1", status.StatusBusy, "build")
	q, _ := c.Queues().Get(wire.AgentDave.String())
	q.Enqueue(wire.Message{Filename: "a", Timestamp: t0, From: wire.AgentGPT4, To: wire.AgentDave, Type: wire.TypeTask})
	c.Messenger().Send("QUEEN", "DRONE_1", "hi", messenger.SendOpts{})

	fm, err := c.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	want := health.FleetMetrics{
		TotalBots:        2,
		ActiveBots:       2,
		QueuedTasks:      1,
		AvgBotLoad:       0.5,
		CPU:              0.1,
		Memory:           0.2,
		MessageQueueSize: 1,
		AvgSuccessRate:   1,
	}
	if fm != want {
		t.Errorf("Gather =\n %+v\nwant\n %+v", fm, want)
	}
}

func TestGather_SamplerFailure(t *testing.T) {
	c, _ := testCoordinator(t, Opts{Sampler: failingSampler{}})
	fm, err := c.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if fm.CPU != 0 || fm.Memory != 0 {
		t.Errorf("resources = %v/%v, want zero", fm.CPU, fm.Memory)
	}
}

func TestEvaluate_NotifiesSinks(t *testing.T) {
	sink := telegraph.NewMockSink("mock")
	c, _ := testCoordinator(t, Opts{
		Sampler:  StaticSampler{CPU: 0.97, Memory: 0.2},
		Notifier: telegraph.NewNotifier(health.LevelWarning, sink),
	})

	snap, err := c.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if snap.CriticalAlerts != 1 {
		t.Errorf("critical alerts = %d, want 1", snap.CriticalAlerts)
	}
	posted := sink.Posted()
	if len(posted) != 1 || !strings.Contains(posted[0].Text, "Critical CPU Usage") {
		t.Errorf("posted = %+v", posted)
	}
	if math.Abs(c.Monitor().HealthScore()-75) > 1e-9 {
		t.Errorf("score = %v, want 75", c.Monitor().HealthScore())
	}
}

func TestCheckHeartbeats(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	c.Tracker().Register("DRONE_1", status.RoleDrone)
	c.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	trans, err := c.CheckHeartbeats()
	if err != nil {
		t.Fatalf("CheckHeartbeats: %v", err)
	}
	if len(trans) != 1 || trans[0].To != status.StatusOffline {
		t.Errorf("transitions = %+v", trans)
	}
}

func TestCleanup(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	c.Messenger().Send("A", "B", "short", messenger.SendOpts{TTL: 50 * time.Millisecond})
	c.Sweep()
	time.Sleep(100 * time.Millisecond)
	if n := c.Cleanup(); n != 1 {
		t.Errorf("Cleanup = %d, want 1", n)
	}
}

func TestTick(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	wire.CreateTaskFile(c.Router().InboxDir(), t0, wire.AgentGPT4, wire.AgentDave, wire.TypeTask, "build", "")
	c.Messenger().Send("QUEEN", "DRONE_1", "hi", messenger.SendOpts{})

	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if c.Messenger().Counts().Delivered != 1 {
		t.Error("Tick should sweep the messenger")
	}
	snap, ok := c.Monitor().LastSnapshot()
	if !ok || snap.QueuedTasks != 1 {
		t.Errorf("snapshot = %+v, %v", snap, ok)
	}
}

func TestTick_DrainedQueuesClearBacklogAlert(t *testing.T) {
	c, _ := testCoordinator(t, Opts{})
	wire.CreateTaskFile(c.Router().InboxDir(), t0, wire.AgentDave, wire.Broadcast, wire.TypeReport, "weekly", "")

	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := c.Monitor().Alerts(health.LevelWarning, false); len(got) != 1 || got[0].ID != health.AlertQueue {
		t.Fatalf("after broadcast, alerts = %+v", got)
	}

	for _, id := range c.Queues().Agents() {
		q, _ := c.Queues().Lookup(id)
		for {
			if _, ok := q.Dequeue(); !ok {
				break
			}
		}
	}
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	snap, _ := c.Monitor().LastSnapshot()
	if snap.QueuedTasks != 0 {
		t.Errorf("QueuedTasks = %d after draining every queue", snap.QueuedTasks)
	}
	if got := c.Monitor().Alerts("", false); len(got) != 0 {
		t.Errorf("unresolved alerts = %+v, want none", got)
	}
}

func TestDigest_Configured(t *testing.T) {
	sink := telegraph.NewMockSink("mock")
	c, _ := testCoordinator(t, Opts{
		Config:   testConfig(t, "telegraph:\n  digest_schedule: \"@daily\"\n"),
		Notifier: telegraph.NewNotifier(health.LevelWarning, sink),
	})
	if c.digest == nil {
		t.Fatal("digest should be configured")
	}
	ev, err := c.digestEvent()
	if err != nil || ev.Title != "Hive digest" {
		t.Errorf("digestEvent = %+v, %v", ev, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRun_HoldsAndReleasesLease(t *testing.T) {
	c, db := testCoordinator(t, Opts{})
	wire.CreateTaskFile(c.Router().InboxDir(), t0, wire.AgentGPT4, wire.AgentDave, wire.TypeTask, "build", "")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	q, _ := c.Queues().Lookup(wire.AgentDave.String())
	waitFor(t, "initial pass", func() bool { return q.Size() == 1 })

	lease, err := CurrentLease(db, DefaultFleet)
	if err != nil || lease == nil || lease.Holder != "test:1" {
		t.Fatalf("lease during run = %+v, %v", lease, err)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lease, _ := CurrentLease(db, DefaultFleet); lease != nil {
		t.Errorf("lease should be released, got %+v", lease)
	}
}

func TestRun_LeaseHeld(t *testing.T) {
	c, db := testCoordinator(t, Opts{})
	if _, err := AcquireLease(db, DefaultFleet, "other:2", time.Now(), 0); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	err := c.Run(context.Background())
	if !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
}

func TestRun_StopsWhenLeaseLost(t *testing.T) {
	c, db := testCoordinator(t, Opts{})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	waitFor(t, "lease", func() bool {
		lease, _ := CurrentLease(db, DefaultFleet)
		return lease != nil
	})

	// another coordinator takes over
	db.Model(&models.CoordinatorLease{}).Where("name = ?", DefaultFleet).Update("holder", "other:2")
	c.heartbeatJob()

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "lease lost") {
			t.Fatalf("expected lease lost, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after losing the lease")
	}
}

func TestHeartbeatJob_RenewalErrorKeepsRunning(t *testing.T) {
	c, db := testCoordinator(t, Opts{})
	if _, err := AcquireLease(db, DefaultFleet, c.Holder(), time.Now(), 0); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	broken := testDB(t)
	sqlDB, _ := broken.DB()
	sqlDB.Close()
	c.db = broken

	c.heartbeatJob()
	select {
	case err := <-c.leaseLost:
		t.Fatalf("transient renewal error stopped the coordinator: %v", err)
	default:
	}

	c.db = db
	c.heartbeatJob()
	if lease, _ := CurrentLease(db, DefaultFleet); lease == nil || lease.Holder != c.Holder() {
		t.Errorf("lease after retry = %+v", lease)
	}
}

func TestBuildNotifier(t *testing.T) {
	n, err := BuildNotifier(config.TelegraphConfig{})
	if err != nil || n != nil {
		t.Fatalf("unconfigured = %v, %v; want nil", n, err)
	}

	n, err = BuildNotifier(config.TelegraphConfig{
		Slack:    config.SlackConfig{BotToken: "xoxb-test", Channel: "C1"},
		Discord:  config.DiscordConfig{BotToken: "tok", Channel: "123"},
		MinLevel: "critical",
	})
	if err != nil {
		t.Fatalf("BuildNotifier: %v", err)
	}
	var names []string
	for _, s := range n.Sinks() {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != "slack,discord" {
		t.Errorf("sinks = %v", names)
	}
	if n.Wants(health.LevelWarning) {
		t.Error("min level critical should drop warnings")
	}
}
