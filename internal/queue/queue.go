// Package queue implements the durable per-agent task queue: an in-memory
// priority heap mirrored to a directory of copied message files and an
// append-only event log.
package queue

import (
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zulandar/hive/internal/journal"
	"github.com/zulandar/hive/internal/wire"
)

// LogFile is the per-queue event log name inside the queue directory.
const LogFile = "queue.log.jsonl"

// Queue events written to the log.
const (
	EventEnqueue = "ENQUEUE"
	EventDequeue = "DEQUEUE"
)

// Event is one line of the queue event log.
type Event struct {
	Timestamp   string `json:"timestamp"`
	Event       string `json:"event"`
	AgentID     string `json:"agent_id"`
	MessageFile string `json:"message_file"`
	MessageType string `json:"message_type"`
	Priority    int    `json:"priority"`
}

// TaskQueue is one agent's priority queue. The heap is authoritative; the
// directory exists for crash inspection and audit.
type TaskQueue struct {
	agentID string
	dir     string
	log     *journal.Journal

	mu    sync.Mutex
	items itemHeap
	seq   uint64
}

// Option configures a TaskQueue.
type Option func(*TaskQueue)

// WithMirror mirrors the queue event log into m.
func WithMirror(m journal.Mirror) Option {
	return func(q *TaskQueue) {
		q.log = journal.New(q.log.Path(), journal.WithMirror(m), journal.WithStream("queue:"+q.agentID))
	}
}

// New creates the queue for agentID backed by dir, creating dir if absent.
func New(agentID, dir string, opts ...Option) (*TaskQueue, error) {
	if agentID == "" {
		return nil, fmt.Errorf("queue: agentID is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("queue: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: create %s: %w", dir, err)
	}
	q := &TaskQueue{
		agentID: agentID,
		dir:     dir,
		log:     journal.New(filepath.Join(dir, LogFile), journal.WithStream("queue:"+agentID)),
	}
	for _, o := range opts {
		o(q)
	}
	return q, nil
}

// AgentID returns the owning agent.
func (q *TaskQueue) AgentID() string { return q.agentID }

// Dir returns the backing directory.
func (q *TaskQueue) Dir() string { return q.dir }

// Enqueue copies the message's backing file (if any) into the queue
// directory and pushes the message onto the heap. The source file is never
// moved or removed. A copy failure leaves the queue unchanged.
func (q *TaskQueue) Enqueue(msg wire.Message) error {
	if msg.Path != "" {
		if _, err := os.Stat(msg.Path); err == nil {
			dest := filepath.Join(q.dir, msg.Filename)
			if err := copyFile(msg.Path, dest); err != nil {
				return fmt.Errorf("queue: enqueue %s for %s: %w", msg.Filename, q.agentID, err)
			}
		}
	}

	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &item{msg: msg, seq: q.seq})
	q.mu.Unlock()

	q.logEvent(EventEnqueue, msg)
	return nil
}

// Dequeue removes and returns the most urgent message, oldest first among
// equal priorities. It returns false when the queue is empty.
func (q *TaskQueue) Dequeue() (wire.Message, bool) {
	q.mu.Lock()
	if q.items.Len() == 0 {
		q.mu.Unlock()
		return wire.Message{}, false
	}
	it := heap.Pop(&q.items).(*item)
	q.mu.Unlock()

	q.logEvent(EventDequeue, it.msg)
	return it.msg, true
}

// Peek returns the message Dequeue would return without removing it.
func (q *TaskQueue) Peek() (wire.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return wire.Message{}, false
	}
	return q.items[0].msg, true
}

// Size returns the number of queued messages.
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// ListPending returns a copy of every queued message in dequeue order.
func (q *TaskQueue) ListPending() []wire.Message {
	q.mu.Lock()
	cp := make(itemHeap, len(q.items))
	copy(cp, q.items)
	q.mu.Unlock()

	out := make([]wire.Message, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*item).msg)
	}
	return out
}

func (q *TaskQueue) logEvent(event string, msg wire.Message) {
	q.log.Append(event, Event{
		Timestamp:   journal.Timestamp(time.Now()),
		Event:       event,
		AgentID:     q.agentID,
		MessageFile: msg.Filename,
		MessageType: msg.Type.String(),
		Priority:    msg.Priority(),
	})
}

// copyFile copies src to dst, keeping the source's mode and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
