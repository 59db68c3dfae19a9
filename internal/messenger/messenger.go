package messenger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/hive/internal/journal"
)

// LogFile is the messaging event log name inside the log directory.
const LogFile = "bot-messaging.jsonl"

// Defaults applied when Opts leaves a field zero.
const (
	DefaultMaxRetries = 3
	DefaultTTL        = time.Hour
)

// Messaging events written to the log.
const (
	EventQueued    = "message_queued"
	EventDelivered = "message_delivered"
	EventRetry     = "message_retry"
	EventFailed    = "message_failed"
	EventExpired   = "message_expired"
	EventRead      = "message_read"
	EventCleanup   = "cleanup_completed"
)

// ErrMailboxFull is the delivery failure returned when a recipient's
// mailbox already holds its capacity of unread messages.
var ErrMailboxFull = errors.New("messenger: mailbox full")

// Event is one line of the messaging log. Message fields are empty for
// events not tied to a single message.
type Event struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	MessageID string         `json:"message_id"`
	FromBot   string         `json:"from_bot"`
	ToBot     string         `json:"to_bot"`
	Priority  Priority       `json:"priority"`
	Status    Status         `json:"status"`
	Details   map[string]any `json:"details"`
}

// Opts holds parameters for creating a Messenger.
type Opts struct {
	LogDir          string // empty disables the event log
	MaxRetries      int
	DefaultTTL      time.Duration
	MailboxCapacity int // unread messages per mailbox; 0 is unbounded
	Mirror          journal.Mirror
	Now             func() time.Time
}

// SendOpts holds optional parameters for sending a message.
type SendOpts struct {
	Priority Priority // unknown or empty means DefaultPriority
	TTL      time.Duration
	Metadata map[string]any
}

// SweepResult tallies one pass over the outgoing queue.
type SweepResult struct {
	Delivered []string `json:"delivered"`
	Failed    []string `json:"failed"`
	Retried   []string `json:"retried"`
	Expired   []string `json:"expired"`
	Pending   int      `json:"pending"`
}

// Messenger owns the outgoing queue, every mailbox and the full message
// history of one coordination domain. It is safe for concurrent use.
type Messenger struct {
	log        *journal.Journal
	maxRetries int
	defaultTTL time.Duration
	capacity   int
	now        func() time.Time

	mu        sync.Mutex
	outgoing  []*Message
	history   map[string]*Message
	mailboxes map[string]*mailbox
}

// New creates a Messenger.
func New(opts Opts) *Messenger {
	m := &Messenger{
		maxRetries: opts.MaxRetries,
		defaultTTL: opts.DefaultTTL,
		capacity:   opts.MailboxCapacity,
		now:        opts.Now,
		history:    make(map[string]*Message),
		mailboxes:  make(map[string]*mailbox),
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxRetries
	}
	if m.defaultTTL <= 0 {
		m.defaultTTL = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	if opts.LogDir != "" {
		var jopts []journal.Option
		if opts.Mirror != nil {
			jopts = append(jopts, journal.WithMirror(opts.Mirror), journal.WithStream("messenger"))
		}
		m.log = journal.New(filepath.Join(opts.LogDir, LogFile), jopts...)
	}
	return m
}

// LogPath returns the event log path, or "" when logging is disabled.
func (m *Messenger) LogPath() string { return m.log.Path() }

// Send queues a message for delivery on a later Sweep and returns its id.
func (m *Messenger) Send(from, to, content string, opts SendOpts) (string, error) {
	if from == "" {
		return "", fmt.Errorf("messenger: from is required")
	}
	if to == "" {
		return "", fmt.Errorf("messenger: to is required")
	}

	priority, ok := ParsePriority(string(opts.Priority))
	if !ok {
		priority = DefaultPriority
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &Message{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		Content:    content,
		Priority:   priority,
		Status:     StatusPending,
		CreatedAt:  m.now(),
		MaxRetries: m.maxRetries,
		TTL:        ttl,
		Metadata:   opts.Metadata,
	}
	m.outgoing = append(m.outgoing, msg)
	m.history[msg.ID] = msg
	m.record(EventQueued, msg, nil)
	return msg.ID, nil
}

// Sweep makes one delivery attempt for every outgoing message. Expired
// messages are dropped without an attempt. A failed attempt is retried on
// the next sweep until the message's retry bound, then marked failed.
func (m *Messenger) Sweep() SweepResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res SweepResult
	now := m.now()
	remaining := m.outgoing[:0]
	for _, msg := range m.outgoing {
		if msg.Expired(now) {
			msg.Status = StatusExpired
			res.Expired = append(res.Expired, msg.ID)
			m.record(EventExpired, msg, nil)
			continue
		}

		err := m.deliver(msg, now)
		switch {
		case err == nil:
			res.Delivered = append(res.Delivered, msg.ID)
			m.record(EventDelivered, msg, nil)
		case msg.RetryCount < msg.MaxRetries:
			msg.RetryCount++
			res.Retried = append(res.Retried, msg.ID)
			m.record(EventRetry, msg, map[string]any{"attempt": msg.RetryCount, "error": err.Error()})
			remaining = append(remaining, msg)
		default:
			msg.Status = StatusFailed
			res.Failed = append(res.Failed, msg.ID)
			m.record(EventFailed, msg, map[string]any{"error": err.Error()})
		}
	}
	for i := len(remaining); i < len(m.outgoing); i++ {
		m.outgoing[i] = nil
	}
	m.outgoing = remaining
	res.Pending = len(m.outgoing)
	return res
}

func (m *Messenger) deliver(msg *Message, now time.Time) error {
	box := m.mailbox(msg.To)
	if m.capacity > 0 && box.unread() >= m.capacity {
		return fmt.Errorf("%w: %s holds %d unread", ErrMailboxFull, msg.To, m.capacity)
	}
	msg.Status = StatusDelivered
	msg.DeliveredAt = &now
	box.messages = append(box.messages, msg)
	return nil
}

func (m *Messenger) mailbox(botID string) *mailbox {
	box, ok := m.mailboxes[botID]
	if !ok {
		box = &mailbox{botID: botID}
		m.mailboxes[botID] = box
	}
	return box
}

// Retrieve returns botID's mailbox, most urgent first. Pending entries whose
// TTL elapsed are expired and dropped first. Delivered and read entries stay
// until CleanupExpired, so a bot polling late still sees its mail.
// A non-empty priority filters the result. Unknown bots yield nil.
func (m *Messenger) Retrieve(botID string, priority Priority) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.mailboxes[botID]
	if !ok {
		return nil
	}
	now := m.now()

	kept := box.messages[:0]
	for _, msg := range box.messages {
		if msg.Status == StatusPending && msg.Expired(now) {
			msg.Status = StatusExpired
			m.record(EventExpired, msg, nil)
			continue
		}
		kept = append(kept, msg)
	}
	for i := len(kept); i < len(box.messages); i++ {
		box.messages[i] = nil
	}
	box.messages = kept

	filter, filtered := ParsePriority(string(priority))
	var out []Message
	for _, msg := range box.messages {
		if filtered && msg.Priority != filter {
			continue
		}
		if msg.Status == StatusPending {
			msg.Status = StatusDelivered
			t := now
			msg.DeliveredAt = &t
			m.record(EventDelivered, msg, nil)
		}
		out = append(out, msg.clone())
	}
	sortByPriority(out)
	return out
}

// MarkRead marks msgID in botID's mailbox as read. It reports false when the
// message is not in that mailbox.
func (m *Messenger) MarkRead(botID, msgID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.mailboxes[botID]
	if !ok {
		return false
	}
	msg := box.find(msgID)
	if msg == nil {
		return false
	}
	if msg.Status == StatusRead {
		return true
	}
	now := m.now()
	msg.Status = StatusRead
	msg.ReadAt = &now
	m.record(EventRead, msg, nil)
	return true
}

// CleanupExpired purges every mailbox entry whose TTL elapsed, whatever its
// status, and returns the number removed per bot. Bots with nothing removed
// are omitted.
func (m *Messenger) CleanupExpired() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stats := make(map[string]int)
	for botID, box := range m.mailboxes {
		kept := box.messages[:0]
		for _, msg := range box.messages {
			if msg.Expired(now) {
				if msg.Status == StatusPending {
					msg.Status = StatusExpired
				}
				continue
			}
			kept = append(kept, msg)
		}
		if removed := len(box.messages) - len(kept); removed > 0 {
			stats[botID] = removed
		}
		for i := len(kept); i < len(box.messages); i++ {
			box.messages[i] = nil
		}
		box.messages = kept
	}
	m.record(EventCleanup, nil, map[string]any{"stats": stats})
	return stats
}

// Inbox returns botID's mailbox in arrival order without changing any
// message state.
func (m *Messenger) Inbox(botID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.mailboxes[botID]
	if !ok {
		return nil
	}
	out := make([]Message, len(box.messages))
	for i, msg := range box.messages {
		out[i] = msg.clone()
	}
	return out
}

// Get returns a message from the full history.
func (m *Messenger) Get(msgID string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.history[msgID]
	if !ok {
		return Message{}, false
	}
	return msg.clone(), true
}

// Conversation returns every message exchanged between a and b in either
// direction, oldest first.
func (m *Messenger) Conversation(a, b string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Message
	for _, msg := range m.history {
		if (msg.From == a && msg.To == b) || (msg.From == b && msg.To == a) {
			out = append(out, msg.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Messenger) record(event string, msg *Message, details map[string]any) {
	if m.log == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	e := Event{
		Timestamp: journal.Timestamp(m.now()),
		Event:     event,
		Details:   details,
	}
	if msg != nil {
		e.MessageID = msg.ID
		e.FromBot = msg.From
		e.ToBot = msg.To
		e.Priority = msg.Priority
		e.Status = msg.Status
	}
	m.log.Append(event, e)
}

func sortByPriority(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ri, rj := msgs[i].Priority.rank(), msgs[j].Priority.rank()
		if ri != rj {
			return ri < rj
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
