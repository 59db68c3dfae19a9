package dashboard

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/zulandar/hive/internal/models"
	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/status"
	"github.com/zulandar/hive/internal/wire"
)

// TaskRow is a queued task for display.
type TaskRow struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Priority  int       `json:"priority"`
	Subject   string    `json:"subject"`
}

func taskViews(msgs []wire.Message) []TaskRow {
	rows := make([]TaskRow, len(msgs))
	for i, m := range msgs {
		rows[i] = TaskRow{
			Filename:  m.Filename,
			Timestamp: m.Timestamp,
			From:      m.From.String(),
			To:        m.To.String(),
			Type:      m.Type.String(),
			Priority:  m.Priority(),
			Subject:   m.Subject,
		}
	}
	return rows
}

// NextTask answers a queue peek or pop. Task is nil when the queue was empty.
type NextTask struct {
	AgentID   string   `json:"agent_id"`
	Task      *TaskRow `json:"task"`
	Path      string   `json:"path,omitempty"`
	Remaining int      `json:"remaining"`
}

func nextView(q *queue.TaskQueue, msg wire.Message, ok bool) NextTask {
	next := NextTask{AgentID: q.AgentID(), Remaining: q.Size()}
	if ok {
		next.Task = &taskViews([]wire.Message{msg})[0]
		next.Path = filepath.Join(q.Dir(), msg.Filename)
	}
	return next
}

// AgentRow is one fleet member for display.
type AgentRow struct {
	ID              string    `json:"id"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	CurrentTask     string    `json:"current_task,omitempty"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	StatusChangedAt time.Time `json:"status_changed_at"`
}

func agentViews(agents []models.Agent) []AgentRow {
	rows := make([]AgentRow, len(agents))
	for i, a := range agents {
		rows[i] = AgentRow{
			ID:              a.ID,
			Role:            a.Role,
			Status:          a.Status,
			CurrentTask:     a.CurrentTask,
			RegisteredAt:    a.RegisteredAt,
			LastHeartbeat:   a.LastHeartbeat,
			StatusChangedAt: a.StatusChangedAt,
		}
	}
	return rows
}

// AgentSummary adds derived figures to status.Summary.
type AgentSummary struct {
	status.Summary
	Active int     `json:"active"`
	Load   float64 `json:"load"`
}

func summaryView(s status.Summary) AgentSummary {
	return AgentSummary{Summary: s, Active: s.Active(), Load: s.Load()}
}

// JournalRow is a mirrored journal line. Payload is passed through as raw
// JSON when it parses.
type JournalRow struct {
	ID        uint            `json:"id"`
	Stream    string          `json:"stream"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func journalViews(entries []models.JournalEntry) []JournalRow {
	rows := make([]JournalRow, len(entries))
	for i, e := range entries {
		payload := json.RawMessage(e.Payload)
		if !json.Valid(payload) {
			quoted, _ := json.Marshal(e.Payload)
			payload = quoted
		}
		rows[i] = JournalRow{
			ID:        e.ID,
			Stream:    e.Stream,
			Event:     e.Event,
			Payload:   payload,
			CreatedAt: e.CreatedAt,
		}
	}
	return rows
}
