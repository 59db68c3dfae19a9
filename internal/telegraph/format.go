package telegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zulandar/hive/internal/health"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// levelSeverity maps an alert level to a chat severity.
func levelSeverity(l health.Level) string {
	switch l {
	case health.LevelCritical:
		return "error"
	case health.LevelWarning:
		return "warning"
	default:
		return "info"
	}
}

// FormatAlert formats an alert being raised or resolved.
func FormatAlert(ev health.AlertEvent) FormattedEvent {
	a := ev.Alert
	severity := levelSeverity(a.Level)
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Level)), a.Title)
	body := a.Message
	if ev.Resolved {
		severity = "success"
		title = "Resolved: " + a.Title
		body = fmt.Sprintf("%s has cleared", a.ID)
	}

	fields := []Field{
		{Name: "Alert", Value: a.ID, Short: true},
		{Name: "Type", Value: string(a.Kind), Short: true},
	}
	for _, k := range sortedKeys(a.Metrics) {
		fields = append(fields, Field{Name: k, Value: formatMetric(a.Metrics[k]), Short: true})
	}

	return FormattedEvent{
		Title:    title,
		Body:     body,
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatDigest formats a dashboard summary with per-agent queue depths.
func FormatDigest(d health.Dashboard, queues map[string]int) FormattedEvent {
	if d.Status == health.StatusNoData {
		return FormattedEvent{
			Title:    "Hive digest",
			Body:     "No metrics available yet",
			Severity: "info",
			Color:    ColorInfo,
		}
	}

	severity := "success"
	switch d.Status {
	case health.StatusCritical:
		severity = "error"
	case health.StatusWarning:
		severity = "warning"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Status %s, health score %.0f/100", d.Status, d.HealthScore)
	if d.AlertSummary.TotalActive > 0 {
		fmt.Fprintf(&body, "\n%d active alerts (%d critical, %d warning)",
			d.AlertSummary.TotalActive, d.AlertSummary.Critical, d.AlertSummary.Warning)
	}
	for _, a := range d.ActiveAlerts {
		fmt.Fprintf(&body, "\n• %s: %s", a.Title, a.Message)
	}

	fields := []Field{
		{Name: "Bots", Value: fmt.Sprintf("%d/%d active", d.Bots.Active, d.Bots.Total), Short: true},
		{Name: "Queued tasks", Value: fmt.Sprintf("%d", d.Queues.QueuedTasks), Short: true},
		{Name: "CPU", Value: fmt.Sprintf("%.0f%%", d.Resources.CPU*100), Short: true},
		{Name: "Memory", Value: fmt.Sprintf("%.0f%%", d.Resources.Memory*100), Short: true},
	}
	for _, agent := range sortedKeys(queues) {
		if queues[agent] == 0 {
			continue
		}
		fields = append(fields, Field{Name: "Queue " + agent, Value: fmt.Sprintf("%d", queues[agent]), Short: true})
	}

	return FormattedEvent{
		Title:    "Hive digest",
		Body:     body.String(),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

func formatMetric(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(x)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
