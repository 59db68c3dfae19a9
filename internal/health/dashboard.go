package health

import "time"

// Overall statuses reported by Dashboard.
const (
	StatusCritical = "critical"
	StatusWarning  = "warning"
	StatusHealthy  = "healthy"
	StatusNoData   = "no_data"
)

// AlertSummary counts unresolved alerts by level.
type AlertSummary struct {
	TotalActive int `json:"total_active"`
	Critical    int `json:"critical"`
	Warning     int `json:"warning"`
	Info        int `json:"info"`
}

// BotHealth summarizes fleet availability.
type BotHealth struct {
	Total          int     `json:"total"`
	Active         int     `json:"active"`
	Inactive       int     `json:"inactive"`
	AvgLoad        float64 `json:"avg_load"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
}

// Resources is the host usage seen by the last evaluation.
type Resources struct {
	CPU    float64 `json:"cpu_percent"`
	Memory float64 `json:"memory_percent"`
}

// QueueHealth is the backlog seen by the last evaluation.
type QueueHealth struct {
	QueuedTasks     int `json:"queued_tasks"`
	PendingMessages int `json:"pending_messages"`
	FailedMessages  int `json:"failed_messages"`
}

// Dashboard is the aggregated health view.
type Dashboard struct {
	Timestamp    time.Time    `json:"timestamp"`
	Status       string       `json:"overall_status"`
	Message      string       `json:"message,omitempty"`
	HealthScore  float64      `json:"health_score"`
	Metrics      *Snapshot    `json:"metrics,omitempty"`
	ActiveAlerts []Alert      `json:"active_alerts"`
	RecentAlerts []Alert      `json:"recent_alerts"`
	AlertSummary AlertSummary `json:"alert_summary"`
	Bots         BotHealth    `json:"bot_health"`
	Resources    Resources    `json:"system_resources"`
	Queues       QueueHealth  `json:"queue_status"`
}

// Dashboard summarizes the current alert table and last snapshot. Before
// the first evaluation the status is no_data and the score 0.
func (m *Monitor) Dashboard() Dashboard {
	active := m.Alerts("", false)
	recent := m.History()

	m.mu.Lock()
	var last *Snapshot
	if m.last != nil {
		s := *m.last
		last = &s
	}
	now := m.now()
	m.mu.Unlock()

	d := Dashboard{Timestamp: now}
	if last == nil {
		d.Status = StatusNoData
		d.Message = "No metrics available yet"
		return d
	}

	d.Metrics = last
	d.ActiveAlerts = active
	d.RecentAlerts = recent
	for _, a := range active {
		d.AlertSummary.TotalActive++
		switch a.Level {
		case LevelCritical:
			d.AlertSummary.Critical++
		case LevelWarning:
			d.AlertSummary.Warning++
		case LevelInfo:
			d.AlertSummary.Info++
		}
	}
	switch {
	case d.AlertSummary.Critical > 0:
		d.Status = StatusCritical
	case d.AlertSummary.Warning > 0:
		d.Status = StatusWarning
	default:
		d.Status = StatusHealthy
	}
	d.HealthScore = score(active, last.FleetMetrics)
	d.Bots = BotHealth{
		Total:          last.TotalBots,
		Active:         last.ActiveBots,
		Inactive:       last.TotalBots - last.ActiveBots,
		AvgLoad:        last.AvgBotLoad,
		AvgSuccessRate: last.AvgSuccessRate,
	}
	d.Resources = Resources{CPU: last.CPU, Memory: last.Memory}
	d.Queues = QueueHealth{
		QueuedTasks:     last.QueuedTasks,
		PendingMessages: last.MessageQueueSize,
		FailedMessages:  last.PendingMessageFailures,
	}
	return d
}

// HealthScore returns the 0-100 score for the current state, 0 before the
// first evaluation.
func (m *Monitor) HealthScore() float64 {
	active := m.Alerts("", false)
	snap, ok := m.LastSnapshot()
	if !ok {
		return 0
	}
	return score(active, snap.FleetMetrics)
}

func score(active []Alert, fm FleetMetrics) float64 {
	s := 100.0
	for _, a := range active {
		switch a.Level {
		case LevelCritical:
			s -= 20
		case LevelWarning:
			s -= 10
		default:
			s -= 2
		}
	}
	if fm.CPU > 0.8 {
		s -= 5
	}
	if fm.Memory > 0.8 {
		s -= 5
	}
	if fm.AvgSuccessRate < 0.9 {
		s -= 10
	}
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
