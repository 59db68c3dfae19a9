// Package status tracks agent liveness in the database and answers which
// agents can take best-available work.
package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/hive/internal/models"
	"gorm.io/gorm"
)

// Agent statuses.
const (
	StatusIdle    = "idle"
	StatusBusy    = "busy"
	StatusWaiting = "waiting"
	StatusPaused  = "paused"
	StatusOffline = "offline"
)

// Agent roles.
const (
	RoleCoordinator = "coordinator"
	RoleQueen       = "queen"
	RoleWorker      = "worker"
	RoleDrone       = "drone"
)

// Default timeouts for CheckHeartbeats.
const (
	DefaultOfflineAfter   = 5 * time.Minute
	DefaultWaitingTimeout = 15 * time.Minute
	DefaultBusyTimeout    = 30 * time.Minute
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	switch s {
	case StatusIdle, StatusBusy, StatusWaiting, StatusPaused, StatusOffline:
		return true
	}
	return false
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	switch r {
	case RoleCoordinator, RoleQueen, RoleWorker, RoleDrone:
		return true
	}
	return false
}

// Timeouts configures CheckHeartbeats. Zero fields take the defaults.
type Timeouts struct {
	OfflineAfter   time.Duration // no heartbeat for this long marks an agent offline
	WaitingTimeout time.Duration // waiting this long reverts to idle
	BusyTimeout    time.Duration // busy this long marks an agent offline
}

func (t Timeouts) withDefaults() Timeouts {
	if t.OfflineAfter <= 0 {
		t.OfflineAfter = DefaultOfflineAfter
	}
	if t.WaitingTimeout <= 0 {
		t.WaitingTimeout = DefaultWaitingTimeout
	}
	if t.BusyTimeout <= 0 {
		t.BusyTimeout = DefaultBusyTimeout
	}
	return t
}

// Tracker reads and writes agent state.
type Tracker struct {
	db       *gorm.DB
	timeouts Timeouts
	now      func() time.Time
}

// NewTracker returns a Tracker over db.
func NewTracker(db *gorm.DB, timeouts Timeouts) (*Tracker, error) {
	if db == nil {
		return nil, fmt.Errorf("status: db is required")
	}
	return &Tracker{db: db, timeouts: timeouts.withDefaults(), now: time.Now}, nil
}

// Timeouts returns the effective timeouts.
func (t *Tracker) Timeouts() Timeouts { return t.timeouts }

// Register creates or resets an agent as idle with a fresh heartbeat.
func (t *Tracker) Register(id, role string) (*models.Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("status: id is required")
	}
	if role == "" {
		role = RoleWorker
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("status: unknown role %q", role)
	}

	now := t.now()
	agent := models.Agent{
		ID:              id,
		Role:            role,
		Status:          StatusIdle,
		RegisteredAt:    now,
		LastHeartbeat:   now,
		StatusChangedAt: now,
	}
	var existing models.Agent
	err := t.db.Where("id = ?", id).First(&existing).Error
	switch {
	case err == nil:
		agent.RegisteredAt = existing.RegisteredAt
		if err := t.db.Save(&agent).Error; err != nil {
			return nil, fmt.Errorf("status: re-register %s: %w", id, err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := t.db.Create(&agent).Error; err != nil {
			return nil, fmt.Errorf("status: register %s: %w", id, err)
		}
	default:
		return nil, fmt.Errorf("status: lookup %s: %w", id, err)
	}
	return &agent, nil
}

// Heartbeat records that id is alive in the given status, working on task.
func (t *Tracker) Heartbeat(id, status, task string) error {
	if id == "" {
		return fmt.Errorf("status: id is required")
	}
	if !ValidStatus(status) {
		return fmt.Errorf("status: unknown status %q", status)
	}

	agent, err := t.Get(id)
	if err != nil {
		return err
	}
	now := t.now()
	updates := map[string]interface{}{
		"status":         status,
		"current_task":   task,
		"last_heartbeat": now,
	}
	if agent.Status != status {
		updates["status_changed_at"] = now
	}
	if err := t.db.Model(&models.Agent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("status: heartbeat %s: %w", id, err)
	}
	return nil
}

// Get loads one agent.
func (t *Tracker) Get(id string) (*models.Agent, error) {
	var agent models.Agent
	err := t.db.Where("id = ?", id).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("status: agent %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("status: get %s: %w", id, err)
	}
	return &agent, nil
}

// All returns every agent ordered by id.
func (t *Tracker) All() ([]models.Agent, error) {
	var agents []models.Agent
	if err := t.db.Order("id ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("status: list agents: %w", err)
	}
	return agents, nil
}

// AvailableAgents returns the ids of idle agents ordered by id.
func (t *Tracker) AvailableAgents() ([]string, error) {
	var ids []string
	if err := t.db.Model(&models.Agent{}).
		Where("status = ?", StatusIdle).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("status: available agents: %w", err)
	}
	return ids, nil
}

// Transition is one status change made by CheckHeartbeats.
type Transition struct {
	AgentID string
	From    string
	To      string
	Reason  string
}

// CheckHeartbeats applies the liveness rules as of now: agents silent past
// OfflineAfter go offline, agents waiting past WaitingTimeout go idle, and
// agents busy past BusyTimeout go offline.
func (t *Tracker) CheckHeartbeats(now time.Time) ([]Transition, error) {
	var agents []models.Agent
	if err := t.db.Where("status != ?", StatusOffline).Order("id ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("status: check heartbeats: %w", err)
	}

	var out []Transition
	for _, a := range agents {
		to, reason := t.next(a, now)
		if to == "" {
			continue
		}
		err := t.db.Model(&models.Agent{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
			"status":            to,
			"status_changed_at": now,
		}).Error
		if err != nil {
			return out, fmt.Errorf("status: mark %s %s: %w", a.ID, to, err)
		}
		out = append(out, Transition{AgentID: a.ID, From: a.Status, To: to, Reason: reason})
	}
	return out, nil
}

func (t *Tracker) next(a models.Agent, now time.Time) (string, string) {
	if now.Sub(a.LastHeartbeat) > t.timeouts.OfflineAfter {
		return StatusOffline, fmt.Sprintf("no heartbeat for %s", now.Sub(a.LastHeartbeat).Round(time.Second))
	}
	inStatus := now.Sub(a.StatusChangedAt)
	switch a.Status {
	case StatusWaiting:
		if inStatus > t.timeouts.WaitingTimeout {
			return StatusIdle, fmt.Sprintf("waiting for %s", inStatus.Round(time.Second))
		}
	case StatusBusy:
		if inStatus > t.timeouts.BusyTimeout {
			return StatusOffline, fmt.Sprintf("busy for %s", inStatus.Round(time.Second))
		}
	}
	return "", ""
}

// Summary counts agents by status.
type Summary struct {
	Total   int `json:"total"`
	Idle    int `json:"idle"`
	Busy    int `json:"busy"`
	Waiting int `json:"waiting"`
	Paused  int `json:"paused"`
	Offline int `json:"offline"`
}

// Active is every agent not offline.
func (s Summary) Active() int { return s.Total - s.Offline }

// Load is the busy share of active agents.
func (s Summary) Load() float64 {
	if s.Active() == 0 {
		return 0
	}
	return float64(s.Busy) / float64(s.Active())
}

// Summarize counts agents by status.
func (t *Tracker) Summarize() (Summary, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	if err := t.db.Model(&models.Agent{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return Summary{}, fmt.Errorf("status: summarize: %w", err)
	}

	var s Summary
	for _, r := range rows {
		s.Total += r.N
		switch r.Status {
		case StatusIdle:
			s.Idle = r.N
		case StatusBusy:
			s.Busy = r.N
		case StatusWaiting:
			s.Waiting = r.N
		case StatusPaused:
			s.Paused = r.N
		case StatusOffline:
			s.Offline = r.N
		}
	}
	return s, nil
}
