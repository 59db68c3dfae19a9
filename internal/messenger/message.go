// Package messenger is the ephemeral bot-to-bot plane: prioritized,
// TTL-bounded messages delivered into per-bot mailboxes on explicit sweeps.
package messenger

import (
	"strings"
	"time"
)

// Priority orders mailbox contents. P0 is the most urgent.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// DefaultPriority is used when a send names no priority or an unknown one.
const DefaultPriority = P2

// Priorities returns every priority, most urgent first.
func Priorities() []Priority { return []Priority{P0, P1, P2, P3} }

// ParsePriority accepts P0-P3 case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case P0, P1, P2, P3:
		return p, true
	}
	return "", false
}

func (p Priority) rank() int {
	switch p {
	case P0:
		return 0
	case P1:
		return 1
	case P2:
		return 2
	case P3:
		return 3
	}
	return 4
}

// Status is a message's delivery state. Transitions only move forward:
// pending to delivered to read, or pending to expired or failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusDelivered, StatusRead, StatusFailed, StatusExpired}
}

// Message is one ephemeral bot message.
type Message struct {
	ID          string         `json:"message_id"`
	From        string         `json:"from_bot"`
	To          string         `json:"to_bot"`
	Content     string         `json:"content"`
	Priority    Priority       `json:"priority"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	ReadAt      *time.Time     `json:"read_at"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	TTL         time.Duration  `json:"ttl"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the message's TTL has elapsed at now.
func (m *Message) Expired(now time.Time) bool {
	return now.Sub(m.CreatedAt) >= m.TTL
}

// Deliverable reports whether the message is still within both its TTL and
// its retry bound.
func (m *Message) Deliverable(now time.Time) bool {
	return !m.Expired(now) && m.RetryCount < m.MaxRetries
}

func (m *Message) unread() bool {
	return m.Status == StatusPending || m.Status == StatusDelivered
}

func (m *Message) clone() Message {
	c := *m
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// mailbox is one bot's delivered messages in arrival order.
type mailbox struct {
	botID    string
	messages []*Message
}

func (b *mailbox) unread() int {
	n := 0
	for _, m := range b.messages {
		if m.unread() {
			n++
		}
	}
	return n
}

func (b *mailbox) find(id string) *Message {
	for _, m := range b.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}
