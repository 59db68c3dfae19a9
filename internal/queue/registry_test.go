package queue

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zulandar/hive/internal/wire"
)

func TestRegistry_GetCreatesOnce(t *testing.T) {
	root := t.TempDir()
	r, err := NewRegistry(root, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	a, err := r.Get("GPT4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := r.Get("GPT4")
	if a != b {
		t.Error("Get returned different queues for the same agent")
	}
	if a.Dir() != filepath.Join(root, "GPT4") {
		t.Errorf("Dir = %q", a.Dir())
	}
	if _, ok := r.Lookup("DAVE"); ok {
		t.Error("Lookup should not create queues")
	}
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	r, _ := NewRegistry(t.TempDir(), nil)
	var wg sync.WaitGroup
	got := make([]*TaskQueue, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = r.Get("DAVE")
		}(i)
	}
	wg.Wait()
	for i := range got {
		if got[i] != got[0] {
			t.Fatal("concurrent Get produced distinct queues")
		}
	}
}

func TestRegistry_IndependentDomains(t *testing.T) {
	r1, _ := NewRegistry(t.TempDir(), nil)
	r2, _ := NewRegistry(t.TempDir(), nil)
	q1, _ := r1.Get("DAVE")
	q1.Enqueue(msg(wire.TypeTask, 0, "only-in-r1"))

	q2, _ := r2.Get("DAVE")
	if q2.Size() != 0 {
		t.Errorf("registries share state: size %d", q2.Size())
	}
}

func TestRegistry_SizesAndAgents(t *testing.T) {
	r, _ := NewRegistry(t.TempDir(), nil)
	a, _ := r.Get("GPT5")
	b, _ := r.Get("DAVE")
	a.Enqueue(msg(wire.TypeTask, 0, "a"))
	a.Enqueue(msg(wire.TypeTask, 1, "b"))
	b.Enqueue(msg(wire.TypeTask, 2, "c"))

	agents := r.Agents()
	if len(agents) != 2 || agents[0] != "DAVE" || agents[1] != "GPT5" {
		t.Errorf("Agents = %v", agents)
	}
	sizes := r.Sizes()
	if sizes["GPT5"] != 2 || sizes["DAVE"] != 1 {
		t.Errorf("Sizes = %v", sizes)
	}
	if r.TotalSize() != 3 {
		t.Errorf("TotalSize = %d", r.TotalSize())
	}
}

func TestNewRegistry_RequiresRoot(t *testing.T) {
	if _, err := NewRegistry("", nil); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestDirStatus(t *testing.T) {
	root := t.TempDir()
	info, err := DirStatus(root, "DAVE")
	if err != nil {
		t.Fatalf("DirStatus on missing dir: %v", err)
	}
	if info.QueueSize != 0 {
		t.Errorf("QueueSize = %d", info.QueueSize)
	}

	dir := filepath.Join(root, "DAVE")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "b.md"), nil, 0o644)
	os.WriteFile(filepath.Join(dir, "a.md"), nil, 0o644)
	os.WriteFile(filepath.Join(dir, LogFile), nil, 0o644)

	info, err = DirStatus(root, "DAVE")
	if err != nil {
		t.Fatalf("DirStatus: %v", err)
	}
	if info.QueueSize != 2 {
		t.Errorf("QueueSize = %d, want 2 (log excluded)", info.QueueSize)
	}
	if info.PendingFiles[0] != "a.md" {
		t.Errorf("PendingFiles = %v, want sorted", info.PendingFiles)
	}
}

func TestDirMessages_DequeueOrder(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "DAVE")
	os.MkdirAll(dir, 0o755)
	for _, name := range []string{
		"2025-10-17-0900-GPT4-DAVE-REPORT-weekly.md",
		"2025-10-17-0930-GPT4-DAVE-ESCALATE-outage.md",
		"2025-10-17-0800-GPT4-DAVE-TASK-build.md",
		"notes.md",
	} {
		os.WriteFile(filepath.Join(dir, name), nil, 0o644)
	}

	msgs, err := DirMessages(root, "DAVE")
	if err != nil {
		t.Fatalf("DirMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3 (undecodable file skipped)", len(msgs))
	}
	want := []wire.Type{wire.TypeEscalate, wire.TypeTask, wire.TypeReport}
	for i, m := range msgs {
		if m.Type != want[i] {
			t.Errorf("msgs[%d].Type = %v, want %v", i, m.Type, want[i])
		}
	}
	if msgs[0].Path != filepath.Join(dir, "2025-10-17-0930-GPT4-DAVE-ESCALATE-outage.md") {
		t.Errorf("Path = %q", msgs[0].Path)
	}
}

func TestDirMessages_MissingDir(t *testing.T) {
	msgs, err := DirMessages(t.TempDir(), "DAVE")
	if err != nil || len(msgs) != 0 {
		t.Errorf("DirMessages = %v, %v; want empty", msgs, err)
	}
}
