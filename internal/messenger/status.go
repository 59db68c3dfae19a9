package messenger

import "time"

// BotStatus summarizes one mailbox.
type BotStatus struct {
	TotalMessages int `json:"total_messages"`
	Unread        int `json:"unread"`
}

// Overview is a point-in-time summary of the messaging plane.
type Overview struct {
	Timestamp         time.Time            `json:"timestamp"`
	TotalBots         int                  `json:"total_bots"`
	TotalMessages     int                  `json:"total_messages"`
	PendingDelivery   int                  `json:"pending_delivery"`
	StatusBreakdown   map[Status]int       `json:"status_breakdown"`
	PriorityBreakdown map[Priority]int     `json:"priority_breakdown"`
	Bots              map[string]BotStatus `json:"bots"`
}

// Status returns message totals over the full history plus per-mailbox
// counts.
func (m *Messenger) Status() Overview {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Overview{
		Timestamp:         m.now(),
		TotalBots:         len(m.mailboxes),
		TotalMessages:     len(m.history),
		PendingDelivery:   len(m.outgoing),
		StatusBreakdown:   make(map[Status]int),
		PriorityBreakdown: make(map[Priority]int),
		Bots:              make(map[string]BotStatus, len(m.mailboxes)),
	}
	for _, st := range Statuses() {
		s.StatusBreakdown[st] = 0
	}
	for _, p := range Priorities() {
		s.PriorityBreakdown[p] = 0
	}
	for _, msg := range m.history {
		s.StatusBreakdown[msg.Status]++
		s.PriorityBreakdown[msg.Priority]++
	}
	for id, box := range m.mailboxes {
		s.Bots[id] = BotStatus{TotalMessages: len(box.messages), Unread: box.unread()}
	}
	return s
}

// Counts are the delivery tallies the health monitor consumes.
type Counts struct {
	Pending         int `json:"pending"`
	Delivered       int `json:"delivered"`
	Read            int `json:"read"`
	Failed          int `json:"failed"`
	Expired         int `json:"expired"`
	PendingFailures int `json:"pending_failures"` // queued messages with at least one failed attempt
}

// SuccessRate is the share of settled messages that reached a mailbox.
// With nothing settled it is 1.
func (c Counts) SuccessRate() float64 {
	ok := c.Delivered + c.Read
	settled := ok + c.Failed + c.Expired
	if settled == 0 {
		return 1
	}
	return float64(ok) / float64(settled)
}

// Counts tallies the full history by status.
func (m *Messenger) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counts
	for _, msg := range m.history {
		switch msg.Status {
		case StatusPending:
			c.Pending++
		case StatusDelivered:
			c.Delivered++
		case StatusRead:
			c.Read++
		case StatusFailed:
			c.Failed++
		case StatusExpired:
			c.Expired++
		}
	}
	for _, msg := range m.outgoing {
		if msg.RetryCount > 0 {
			c.PendingFailures++
		}
	}
	return c
}
