// Package health turns fleet metrics into deduplicated alerts and a health
// score.
package health

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/hive/internal/journal"
)

// Log files inside the monitor's log directory.
const (
	AlertLogFile   = "health-alerts.jsonl"
	MetricsLogFile = "health-metrics.jsonl"
)

// Thresholds. CPU and memory are fractions of 1.
const (
	CPUCritical     = 0.95
	CPUWarning      = 0.80
	MemoryCritical  = 0.90
	MemoryWarning   = 0.75
	QueueBacklog    = 10
	MinSuccessRate  = 0.30
	MessageFailures = 5
	ExhaustedCPU    = 0.90
	ExhaustedMemory = 0.85
)

// DefaultRetention is how long resolved alerts and history are kept.
const DefaultRetention = 24 * time.Hour

const (
	historyLimit      = 100
	eventAlertRaised  = "alert_generated"
	eventAlertCleared = "alert_resolved"
)

// FleetMetrics are the scalar inputs to one evaluation.
type FleetMetrics struct {
	TotalBots              int     `json:"total_bots"`
	ActiveBots             int     `json:"active_bots"`
	QueuedTasks            int     `json:"queued_tasks"`
	AvgBotLoad             float64 `json:"avg_bot_load"`
	CPU                    float64 `json:"system_cpu_percent"`
	Memory                 float64 `json:"system_memory_percent"`
	MessageQueueSize       int     `json:"message_queue_size"`
	PendingMessageFailures int     `json:"pending_message_failures"`
	AvgSuccessRate         float64 `json:"avg_success_rate"`
}

// Snapshot is the result of one evaluation.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	FleetMetrics
	AlertCount     int `json:"alert_count"`
	CriticalAlerts int `json:"critical_alerts"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRetention sets how long resolved alerts and alert history are kept.
func WithRetention(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithMirror copies both logs to a journal mirror.
func WithMirror(mirror journal.Mirror) Option {
	return func(m *Monitor) { m.mirror = mirror }
}

// WithAlertHook registers fn to be called after an alert is raised or
// resolved. Hooks run outside the monitor's lock.
func WithAlertHook(fn func(AlertEvent)) Option {
	return func(m *Monitor) { m.hooks = append(m.hooks, fn) }
}

// Monitor holds the alert table of one coordination domain. It is safe for
// concurrent use.
type Monitor struct {
	alertLog   *journal.Journal
	metricsLog *journal.Journal
	mirror     journal.Mirror
	retention  time.Duration
	now        func() time.Time
	hooks      []func(AlertEvent)

	mu      sync.Mutex
	alerts  map[string]*Alert
	history []*Alert
	last    *Snapshot
}

// New creates a Monitor logging into logDir. An empty logDir disables both
// logs.
func New(logDir string, opts ...Option) *Monitor {
	m := &Monitor{
		retention: DefaultRetention,
		now:       time.Now,
		alerts:    make(map[string]*Alert),
	}
	for _, o := range opts {
		o(m)
	}
	if logDir != "" {
		m.alertLog = m.openLog(filepath.Join(logDir, AlertLogFile), "health:alerts")
		m.metricsLog = m.openLog(filepath.Join(logDir, MetricsLogFile), "health:metrics")
	}
	return m
}

func (m *Monitor) openLog(path, stream string) *journal.Journal {
	if m.mirror == nil {
		return journal.New(path)
	}
	return journal.New(path, journal.WithMirror(m.mirror), journal.WithStream(stream))
}

// Evaluate runs every check against fm, raising, refreshing or resolving
// alerts, and records the resulting snapshot.
func (m *Monitor) Evaluate(fm FleetMetrics) Snapshot {
	m.mu.Lock()
	now := m.now()
	var events []AlertEvent

	check := func(breached bool, id string, kind Kind, level Level, title, msg string, metrics map[string]any) {
		if breached {
			if ev, ok := m.raise(now, id, kind, level, title, msg, metrics); ok {
				events = append(events, ev)
			}
			return
		}
		if ev, ok := m.resolve(now, id); ok {
			events = append(events, ev)
		}
	}

	cpuLevel, cpuBreach := tiered(fm.CPU, CPUWarning, CPUCritical)
	cpuTitle := "High CPU Usage"
	if cpuLevel == LevelCritical {
		cpuTitle = "Critical CPU Usage"
	}
	check(cpuBreach, AlertCPU, KindCPUHigh, cpuLevel, cpuTitle,
		fmt.Sprintf("System CPU at %.1f%%", fm.CPU*100),
		map[string]any{"cpu_percent": fm.CPU})

	memLevel, memBreach := tiered(fm.Memory, MemoryWarning, MemoryCritical)
	memTitle := "High Memory Usage"
	if memLevel == LevelCritical {
		memTitle = "Critical Memory Usage"
	}
	check(memBreach, AlertMemory, KindMemoryHigh, memLevel, memTitle,
		fmt.Sprintf("System memory at %.1f%%", fm.Memory*100),
		map[string]any{"memory_percent": fm.Memory})

	check(fm.QueuedTasks >= QueueBacklog, AlertQueue, KindQueueBacklog, LevelWarning,
		"Task Queue Backlog", fmt.Sprintf("%d tasks queued", fm.QueuedTasks),
		map[string]any{"queue_size": fm.QueuedTasks})

	check(fm.ActiveBots < fm.TotalBots, AlertBotAvailability, KindBotFailure, LevelWarning,
		"Bots Offline", fmt.Sprintf("%d/%d bots inactive", fm.TotalBots-fm.ActiveBots, fm.TotalBots),
		map[string]any{"active": fm.ActiveBots, "total": fm.TotalBots})

	check(fm.AvgSuccessRate < MinSuccessRate, AlertSuccessRate, KindLowSuccessRate, LevelWarning,
		"Low Success Rate", fmt.Sprintf("Average success rate: %.1f%%", fm.AvgSuccessRate*100),
		map[string]any{"success_rate": fm.AvgSuccessRate})

	check(fm.PendingMessageFailures >= MessageFailures, AlertMessaging, KindDeliveryFailed, LevelWarning,
		"Message Delivery Failures", fmt.Sprintf("%d failed message deliveries", fm.PendingMessageFailures),
		map[string]any{"failures": fm.PendingMessageFailures, "queue_size": fm.MessageQueueSize})

	check(fm.CPU >= ExhaustedCPU && fm.Memory >= ExhaustedMemory, AlertResourceExhausted,
		KindResourceExhausted, LevelCritical,
		"System Resources Exhausted", "CPU and memory both critically high",
		map[string]any{"cpu": fm.CPU, "memory": fm.Memory})

	snap := Snapshot{Timestamp: now, FleetMetrics: fm}
	for _, a := range m.alerts {
		if a.Resolved {
			continue
		}
		snap.AlertCount++
		if a.Level == LevelCritical {
			snap.CriticalAlerts++
		}
	}
	m.last = &snap
	m.prune(now)
	m.mu.Unlock()

	m.metricsLog.Append("metrics", map[string]any{
		"timestamp": journal.Timestamp(now),
		"metrics":   snap,
	})
	m.notify(events)
	return snap
}

func tiered(v, warning, critical float64) (Level, bool) {
	switch {
	case v >= critical:
		return LevelCritical, true
	case v >= warning:
		return LevelWarning, true
	}
	return "", false
}

// raise creates the alert for id unless an unresolved one exists, in which
// case only its metrics are refreshed. Callers hold m.mu.
func (m *Monitor) raise(now time.Time, id string, kind Kind, level Level, title, msg string, metrics map[string]any) (AlertEvent, bool) {
	if a, ok := m.alerts[id]; ok && !a.Resolved {
		a.Metrics = metrics
		return AlertEvent{}, false
	}
	a := &Alert{
		ID:        id,
		Kind:      kind,
		Level:     level,
		Title:     title,
		Message:   msg,
		Timestamp: now,
		Metrics:   metrics,
	}
	m.alerts[id] = a
	m.history = append(m.history, a)
	m.logEvent(now, eventAlertRaised, map[string]any{
		"alert_id":   id,
		"alert_type": kind,
		"level":      level,
		"title":      title,
	})
	return AlertEvent{Alert: a.clone()}, true
}

// resolve clears an unresolved alert. Callers hold m.mu.
func (m *Monitor) resolve(now time.Time, id string) (AlertEvent, bool) {
	a, ok := m.alerts[id]
	if !ok || a.Resolved {
		return AlertEvent{}, false
	}
	a.Resolved = true
	a.ResolvedAt = &now
	m.logEvent(now, eventAlertCleared, map[string]any{
		"alert_id":   id,
		"alert_type": a.Kind,
	})
	return AlertEvent{Alert: a.clone(), Resolved: true}, true
}

// prune drops resolved alerts and history older than the retention window.
// Callers hold m.mu.
func (m *Monitor) prune(now time.Time) {
	cutoff := now.Add(-m.retention)
	for id, a := range m.alerts {
		if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
		}
	}
	kept := m.history[:0]
	for _, a := range m.history {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(m.history); i++ {
		m.history[i] = nil
	}
	m.history = kept
}

func (m *Monitor) logEvent(now time.Time, event string, details map[string]any) {
	m.alertLog.Append(event, map[string]any{
		"timestamp": journal.Timestamp(now),
		"event":     event,
		"details":   details,
	})
}

func (m *Monitor) notify(events []AlertEvent) {
	for _, ev := range events {
		for _, hook := range m.hooks {
			hook(ev)
		}
	}
}

// ResolveAlert resolves the alert with id by hand. It reports false when no
// such alert exists.
func (m *Monitor) ResolveAlert(id string) bool {
	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	var events []AlertEvent
	if !a.Resolved {
		ev, _ := m.resolve(m.now(), id)
		events = append(events, ev)
	}
	m.mu.Unlock()
	m.notify(events)
	return true
}

// Alerts returns alerts sorted by id. An empty level matches every level;
// resolved alerts are included only when includeResolved is set.
func (m *Monitor) Alerts(level Level, includeResolved bool) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	for _, a := range m.alerts {
		if a.Resolved && !includeResolved {
			continue
		}
		if level != "" && a.Level != level {
			continue
		}
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns up to the 100 most recently raised alerts within the
// retention window, oldest first.
func (m *Monitor) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if len(m.history) > historyLimit {
		start = len(m.history) - historyLimit
	}
	out := make([]Alert, 0, len(m.history)-start)
	for _, a := range m.history[start:] {
		out = append(out, a.clone())
	}
	return out
}

// LastSnapshot returns the most recent evaluation, if any.
func (m *Monitor) LastSnapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Snapshot{}, false
	}
	return *m.last, true
}

// AlertLogPath returns the alert log path, or "" when logging is disabled.
func (m *Monitor) AlertLogPath() string { return m.alertLog.Path() }

// MetricsLogPath returns the metrics log path, or "" when logging is disabled.
func (m *Monitor) MetricsLogPath() string { return m.metricsLog.Path() }
