package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hive/internal/health"
)

// alertState identifies an alert version already sent to a client.
type alertState struct {
	resolved  bool
	timestamp time.Time
}

// handleEvents streams alert changes as server-sent events. The first
// message counts the active alerts; after that an "alert" event is sent
// whenever an alert is raised or resolved.
func (s *server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	seen := make(map[string]alertState)
	active := s.monitor.Alerts("", false)
	for _, a := range s.monitor.Alerts("", true) {
		seen[a.ID] = alertState{resolved: a.Resolved, timestamp: a.Timestamp}
	}
	writeSSE(c.Writer, "connected", gin.H{"active_alerts": len(active), "health_score": s.monitor.HealthScore()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(s.pollInterval)
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			changed := diffAlerts(seen, s.monitor.Alerts("", true))
			for _, a := range changed {
				writeSSE(c.Writer, "alert", a)
			}
			if len(changed) > 0 {
				c.Writer.Flush()
			}
		}
	}
}

// diffAlerts returns alerts that are new or changed since seen, updating
// seen in place.
func diffAlerts(seen map[string]alertState, alerts []health.Alert) []health.Alert {
	var changed []health.Alert
	for _, a := range alerts {
		st := alertState{resolved: a.Resolved, timestamp: a.Timestamp}
		if prev, ok := seen[a.ID]; ok && prev == st {
			continue
		}
		seen[a.ID] = st
		changed = append(changed, a)
	}
	return changed
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
