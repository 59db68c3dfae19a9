package status

import (
	"strings"
	"testing"
	"time"

	"github.com/zulandar/hive/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Agent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var t0 = time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)

func testTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(testDB(t), Timeouts{})
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tr.now = func() time.Time { return t0 }
	return tr
}

func TestNewTracker_NilDB(t *testing.T) {
	_, err := NewTracker(nil, Timeouts{})
	if err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v", err)
	}
}

func TestNewTracker_Defaults(t *testing.T) {
	tr := testTracker(t)
	got := tr.Timeouts()
	if got.OfflineAfter != 5*time.Minute || got.WaitingTimeout != 15*time.Minute || got.BusyTimeout != 30*time.Minute {
		t.Errorf("Timeouts = %+v", got)
	}
}

func TestRegister(t *testing.T) {
	tr := testTracker(t)
	a, err := tr.Register("GPT4", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Role != RoleWorker || a.Status != StatusIdle || !a.LastHeartbeat.Equal(t0) {
		t.Errorf("agent = %+v", a)
	}

	if _, err := tr.Register("", RoleWorker); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := tr.Register("X", "overlord"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRegister_ResetsExisting(t *testing.T) {
	tr := testTracker(t)
	tr.Register("DAVE", RoleQueen)
	tr.Heartbeat("DAVE", StatusBusy, "task-1")

	later := t0.Add(time.Hour)
	tr.now = func() time.Time { return later }
	a, err := tr.Register("DAVE", RoleCoordinator)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, _ := tr.Get("DAVE")
	if got.Status != StatusIdle || got.Role != RoleCoordinator || got.CurrentTask != "" {
		t.Errorf("after re-register = %+v", got)
	}
	if !got.RegisteredAt.Equal(t0) || !a.RegisteredAt.Equal(t0) {
		t.Errorf("RegisteredAt = %v, want original %v", got.RegisteredAt, t0)
	}
	all, _ := tr.All()
	if len(all) != 1 {
		t.Errorf("All = %d rows, want 1", len(all))
	}
}

func TestHeartbeat(t *testing.T) {
	tr := testTracker(t)
	tr.Register("GPT5", RoleWorker)

	t1 := t0.Add(time.Minute)
	tr.now = func() time.Time { return t1 }
	if err := tr.Heartbeat("GPT5", StatusBusy, "fix-login"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	a, _ := tr.Get("GPT5")
	if a.Status != StatusBusy || a.CurrentTask != "fix-login" {
		t.Errorf("agent = %+v", a)
	}
	if !a.LastHeartbeat.Equal(t1) || !a.StatusChangedAt.Equal(t1) {
		t.Errorf("times = %v / %v", a.LastHeartbeat, a.StatusChangedAt)
	}

	// Same status keeps the original change time.
	t2 := t1.Add(time.Minute)
	tr.now = func() time.Time { return t2 }
	tr.Heartbeat("GPT5", StatusBusy, "fix-login")
	a, _ = tr.Get("GPT5")
	if !a.LastHeartbeat.Equal(t2) || !a.StatusChangedAt.Equal(t1) {
		t.Errorf("times after same-status beat = %v / %v", a.LastHeartbeat, a.StatusChangedAt)
	}
}

func TestHeartbeat_Errors(t *testing.T) {
	tr := testTracker(t)
	if err := tr.Heartbeat("GHOST", StatusIdle, ""); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
	tr.Register("GPT4", RoleWorker)
	if err := tr.Heartbeat("GPT4", "sleeping", ""); err == nil {
		t.Error("expected error for unknown status")
	}
	if err := tr.Heartbeat("", StatusIdle, ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestAvailableAgents(t *testing.T) {
	tr := testTracker(t)
	for _, id := range []string{"GPT5", "DAVE", "CLAUDE_CODE", "GPT4"} {
		tr.Register(id, RoleWorker)
	}
	tr.Heartbeat("DAVE", StatusBusy, "x")
	tr.Heartbeat("GPT4", StatusPaused, "")

	ids, err := tr.AvailableAgents()
	if err != nil {
		t.Fatalf("AvailableAgents: %v", err)
	}
	if len(ids) != 2 || ids[0] != "CLAUDE_CODE" || ids[1] != "GPT5" {
		t.Errorf("AvailableAgents = %v", ids)
	}
}

func TestCheckHeartbeats(t *testing.T) {
	tr := testTracker(t)
	for _, id := range []string{"SILENT", "WAITER", "GRINDER", "FRESH"} {
		tr.Register(id, RoleWorker)
	}
	tr.Heartbeat("WAITER", StatusWaiting, "")
	tr.Heartbeat("GRINDER", StatusBusy, "big-job")

	// Twenty minutes on, everyone but SILENT keeps beating.
	now := t0.Add(20 * time.Minute)
	tr.now = func() time.Time { return now.Add(-time.Minute) }
	tr.Heartbeat("WAITER", StatusWaiting, "")
	tr.Heartbeat("GRINDER", StatusBusy, "big-job")
	tr.Heartbeat("FRESH", StatusIdle, "")

	got, err := tr.CheckHeartbeats(now)
	if err != nil {
		t.Fatalf("CheckHeartbeats: %v", err)
	}
	byID := make(map[string]Transition)
	for _, tn := range got {
		byID[tn.AgentID] = tn
	}
	if len(got) != 2 {
		t.Fatalf("transitions = %+v", got)
	}
	if tn := byID["SILENT"]; tn.To != StatusOffline || tn.From != StatusIdle {
		t.Errorf("SILENT = %+v", tn)
	}
	if tn := byID["WAITER"]; tn.To != StatusIdle {
		t.Errorf("WAITER = %+v", tn)
	}

	// Forty minutes in, the busy agent has been busy too long.
	now = t0.Add(40 * time.Minute)
	tr.now = func() time.Time { return now.Add(-time.Minute) }
	tr.Heartbeat("GRINDER", StatusBusy, "big-job")
	got, _ = tr.CheckHeartbeats(now)
	found := false
	for _, tn := range got {
		if tn.AgentID == "GRINDER" && tn.To == StatusOffline {
			found = true
		}
	}
	if !found {
		t.Errorf("GRINDER not marked offline: %+v", got)
	}
}

func TestCheckHeartbeats_SkipsOffline(t *testing.T) {
	tr := testTracker(t)
	tr.Register("GONE", RoleWorker)
	tr.Heartbeat("GONE", StatusOffline, "")
	got, err := tr.CheckHeartbeats(t0.Add(24 * time.Hour))
	if err != nil || len(got) != 0 {
		t.Errorf("transitions = %+v, err %v", got, err)
	}
}

func TestSummarize(t *testing.T) {
	tr := testTracker(t)
	for _, id := range []string{"A", "B", "C", "D"} {
		tr.Register(id, RoleWorker)
	}
	tr.Heartbeat("B", StatusBusy, "x")
	tr.Heartbeat("D", StatusOffline, "")

	s, err := tr.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Total != 4 || s.Idle != 2 || s.Busy != 1 || s.Offline != 1 {
		t.Errorf("Summary = %+v", s)
	}
	if s.Active() != 3 {
		t.Errorf("Active = %d", s.Active())
	}
	if got := s.Load(); got < 0.33 || got > 0.34 {
		t.Errorf("Load = %v", got)
	}
	if (Summary{}).Load() != 0 {
		t.Error("empty Load should be 0")
	}
}
