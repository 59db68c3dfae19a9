package health

import "time"

// Level is an alert's severity.
type Level string

const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
)

// ParseLevel accepts critical, warning or info.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(s); l {
	case LevelCritical, LevelWarning, LevelInfo:
		return l, true
	}
	return "", false
}

// Kind classifies what an alert is about.
type Kind string

const (
	KindCPUHigh           Kind = "cpu_high"
	KindMemoryHigh        Kind = "memory_high"
	KindQueueBacklog      Kind = "queue_backlog"
	KindBotFailure        Kind = "bot_failure"
	KindLowSuccessRate    Kind = "low_success_rate"
	KindDeliveryFailed    Kind = "message_delivery_failed"
	KindResourceExhausted Kind = "resource_exhausted"
)

// Stable alert ids, one per check. An id names the condition, not an
// occurrence, so repeated breaches refresh one alert.
const (
	AlertCPU               = "cpu_health"
	AlertMemory            = "memory_health"
	AlertQueue             = "queue_health"
	AlertBotAvailability   = "bot_availability"
	AlertSuccessRate       = "success_rate"
	AlertMessaging         = "messaging_health"
	AlertResourceExhausted = "resource_exhausted"
)

// Alert is one raised condition.
type Alert struct {
	ID         string         `json:"alert_id"`
	Kind       Kind           `json:"alert_type"`
	Level      Level          `json:"level"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at"`
	Metrics    map[string]any `json:"metrics"`
}

func (a *Alert) clone() Alert {
	c := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	if a.Metrics != nil {
		c.Metrics = make(map[string]any, len(a.Metrics))
		for k, v := range a.Metrics {
			c.Metrics[k] = v
		}
	}
	return c
}

// AlertEvent is passed to alert hooks when an alert is raised or resolved.
type AlertEvent struct {
	Alert    Alert
	Resolved bool
}
