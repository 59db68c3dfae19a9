// Package router moves inbox files into agent queues.
package router

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/wire"
)

// DefaultPollInterval is how often Watch scans the inbox.
const DefaultPollInterval = 2 * time.Second

// Availability reports which agents can take best-available work, most
// preferred first.
type Availability interface {
	AvailableAgents() ([]string, error)
}

// Router decodes inbox filenames and enqueues the messages into the
// registry's queues.
type Router struct {
	inbox     string
	queues    *queue.Registry
	available Availability
	out       io.Writer

	mu   sync.Mutex
	seen map[string]bool // not persisted: a restart reprocesses the inbox
}

// Opts holds parameters for creating a Router.
type Opts struct {
	InboxDir     string
	Queues       *queue.Registry
	Availability Availability // optional; without it ANY goes to PENDING_ANY
	Out          io.Writer    // routing progress; defaults to io.Discard
}

// New creates a Router, creating the inbox directory if absent.
func New(opts Opts) (*Router, error) {
	if opts.InboxDir == "" {
		return nil, fmt.Errorf("router: inbox dir is required")
	}
	if opts.Queues == nil {
		return nil, fmt.Errorf("router: queue registry is required")
	}
	if err := os.MkdirAll(opts.InboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("router: create inbox %s: %w", opts.InboxDir, err)
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Router{
		inbox:     opts.InboxDir,
		queues:    opts.Queues,
		available: opts.Availability,
		out:       out,
		seen:      make(map[string]bool),
	}, nil
}

// InboxDir returns the watched directory.
func (r *Router) InboxDir() string { return r.inbox }

// Queues returns the registry the router delivers into.
func (r *Router) Queues() *queue.Registry { return r.queues }

// Route decodes name and enqueues the message backed by path. A name that
// does not decode is logged and left in place for manual triage.
func (r *Router) Route(name, path string) bool {
	_, ok := r.route(name, path)
	return ok
}

// route returns the agents whose queues received the message.
func (r *Router) route(name, path string) ([]string, bool) {
	msg, ok := wire.Decode(name)
	if !ok {
		_, reasons := wire.Validate(name)
		log.Printf("router: invalid filename %s: %v", name, reasons)
		return nil, false
	}
	msg.Path = path

	switch msg.To {
	case wire.Broadcast:
		return r.broadcast(msg)
	case wire.BestAvailable:
		return r.routeToAvailable(msg)
	default:
		if r.enqueue(msg, msg.To.String()) {
			return []string{msg.To.String()}, true
		}
		return nil, false
	}
}

// broadcast copies msg into every non-sentinel agent's queue. It reports
// failure if any copy failed, but still attempts every agent.
func (r *Router) broadcast(msg wire.Message) ([]string, bool) {
	var routed []string
	ok := true
	for _, agent := range wire.Agents() {
		if r.enqueue(msg, agent.String()) {
			routed = append(routed, agent.String())
		} else {
			ok = false
		}
	}
	return routed, ok
}

func (r *Router) routeToAvailable(msg wire.Message) ([]string, bool) {
	if r.available != nil {
		agents, err := r.available.AvailableAgents()
		if err != nil {
			log.Printf("router: availability lookup for %s: %v", msg.Filename, err)
		} else if len(agents) > 0 {
			if r.enqueue(msg, agents[0]) {
				return []string{agents[0]}, true
			}
			return nil, false
		}
	}

	if !r.enqueue(msg, wire.PendingAssignment) {
		return nil, false
	}
	fmt.Fprintf(r.out, "QUEUED_FOR_ASSIGNMENT: %s\n", msg.Filename)
	return []string{wire.PendingAssignment}, true
}

func (r *Router) enqueue(msg wire.Message, agentID string) bool {
	q, err := r.queues.Get(agentID)
	if err != nil {
		log.Printf("router: routing failed for %s: %v", msg.Filename, err)
		return false
	}
	if err := q.Enqueue(msg); err != nil {
		log.Printf("router: routing failed for %s: %v", msg.Filename, err)
		return false
	}
	fmt.Fprintf(r.out, "ROUTED: %s -> %s\n", msg.Filename, agentID)
	return true
}

// ProcessInbox routes every message file in the inbox not already seen by
// this Router and returns how many were routed. Files that fail to route are
// still marked seen and are not retried until restart.
func (r *Router) ProcessInbox() int {
	n, _ := r.processInbox()
	return n
}

func (r *Router) processInbox() (int, []string) {
	matches, err := filepath.Glob(filepath.Join(r.inbox, "*"+wire.Extension))
	if err != nil {
		log.Printf("router: scan inbox %s: %v", r.inbox, err)
		return 0, nil
	}
	sort.Strings(matches)

	processed := 0
	touched := make(map[string]bool)
	for _, path := range matches {
		name := filepath.Base(path)

		r.mu.Lock()
		if r.seen[name] {
			r.mu.Unlock()
			continue
		}
		r.seen[name] = true
		r.mu.Unlock()

		agents, ok := r.route(name, path)
		if ok {
			processed++
		}
		for _, a := range agents {
			touched[a] = true
		}
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return processed, ids
}

// Watch polls the inbox every interval until ctx is done. After a pass that
// routed messages it drains the queues that received them, calling callback
// for each message in priority order. With a nil callback queues are left
// for their owners to drain.
func (r *Router) Watch(ctx context.Context, interval time.Duration, callback func(wire.Message)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	fmt.Fprintf(r.out, "Watching %s every %s...\n", r.inbox, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		count, touched := r.processInbox()
		if count > 0 {
			fmt.Fprintf(r.out, "Processed %d new messages\n", count)
			if callback != nil {
				r.drain(touched, callback)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Router) drain(agentIDs []string, callback func(wire.Message)) {
	for _, id := range agentIDs {
		q, ok := r.queues.Lookup(id)
		if !ok {
			continue
		}
		for {
			msg, ok := q.Dequeue()
			if !ok {
				break
			}
			callback(msg)
		}
	}
}
