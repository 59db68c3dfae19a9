package queue

import (
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zulandar/hive/internal/journal"
	"github.com/zulandar/hive/internal/wire"
)

// Registry owns the queues of one coordination domain, one per agent id,
// each in its own subdirectory of root. Independent registries can coexist
// in a process.
type Registry struct {
	root   string
	mirror journal.Mirror

	mu     sync.Mutex
	queues map[string]*TaskQueue
}

// NewRegistry returns an empty registry rooted at root. A non-nil mirror is
// attached to every queue the registry creates.
func NewRegistry(root string, mirror journal.Mirror) (*Registry, error) {
	if root == "" {
		return nil, fmt.Errorf("queue: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("queue: create %s: %w", root, err)
	}
	return &Registry{root: root, mirror: mirror, queues: make(map[string]*TaskQueue)}, nil
}

// Root returns the directory holding all queue directories.
func (r *Registry) Root() string { return r.root }

// Get returns the queue for agentID, creating it on first use.
func (r *Registry) Get(agentID string) (*TaskQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[agentID]; ok {
		return q, nil
	}
	var opts []Option
	if r.mirror != nil {
		opts = append(opts, WithMirror(r.mirror))
	}
	q, err := New(agentID, filepath.Join(r.root, agentID), opts...)
	if err != nil {
		return nil, err
	}
	r.queues[agentID] = q
	return q, nil
}

// Lookup returns an existing queue without creating one.
func (r *Registry) Lookup(agentID string) (*TaskQueue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[agentID]
	return q, ok
}

// Agents returns the ids of every queue created so far, sorted.
func (r *Registry) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.queues))
	for id := range r.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sizes returns each known queue's current size.
func (r *Registry) Sizes() map[string]int {
	r.mu.Lock()
	qs := make([]*TaskQueue, 0, len(r.queues))
	for _, q := range r.queues {
		qs = append(qs, q)
	}
	r.mu.Unlock()

	out := make(map[string]int, len(qs))
	for _, q := range qs {
		out[q.AgentID()] = q.Size()
	}
	return out
}

// TotalSize sums every known queue's size.
func (r *Registry) TotalSize() int {
	total := 0
	for _, n := range r.Sizes() {
		total += n
	}
	return total
}

// DirInfo describes a queue directory as found on disk.
type DirInfo struct {
	AgentID      string   `json:"agent_id"`
	QueueDir     string   `json:"queue_dir"`
	QueueSize    int      `json:"queue_size"`
	PendingFiles []string `json:"pending_files"`
}

// DirStatus scans the queue directory for agentID under root. It counts
// copied message files, so it reflects everything ever enqueued that has
// not been cleaned up, not the live heap.
func DirStatus(root, agentID string) (DirInfo, error) {
	dir := filepath.Join(root, agentID)
	info := DirInfo{AgentID: agentID, QueueDir: dir}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("queue: scan %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), wire.Extension) {
			continue
		}
		info.PendingFiles = append(info.PendingFiles, e.Name())
	}
	sort.Strings(info.PendingFiles)
	info.QueueSize = len(info.PendingFiles)
	return info, nil
}

// DirMessages decodes the message copies in agentID's queue directory and
// returns them in the order Dequeue would. Files whose names do not decode
// are skipped. Each message's Path points at its copy.
func DirMessages(root, agentID string) ([]wire.Message, error) {
	info, err := DirStatus(root, agentID)
	if err != nil {
		return nil, err
	}
	var h itemHeap
	for i, name := range info.PendingFiles {
		msg, ok := wire.Decode(name)
		if !ok {
			continue
		}
		msg.Path = filepath.Join(info.QueueDir, name)
		h = append(h, &item{msg: msg, seq: uint64(i)})
	}
	heap.Init(&h)

	out := make([]wire.Message, 0, len(h))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(*item).msg)
	}
	return out, nil
}
