package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/coordinator"
	"github.com/zulandar/hive/internal/dashboard"
	"github.com/zulandar/hive/internal/db"
	"github.com/zulandar/hive/internal/models"
	"github.com/zulandar/hive/internal/wire"
)

// liveCoordinator returns the holder of a fresh coordinator lease on cfg's
// database, or "" when no coordinator is running.
func liveCoordinator(cfg *config.Config) (string, error) {
	if cfg.Database.Driver != "mysql" {
		if _, err := os.Stat(cfg.Database.Path); err != nil {
			return "", nil
		}
	}
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", describeDatabase(cfg.Database), err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if !gormDB.Migrator().HasTable(&models.CoordinatorLease{}) {
		return "", nil
	}

	lease, err := coordinator.CurrentLease(gormDB, coordinator.DefaultFleet)
	if err != nil || lease == nil {
		return "", err
	}
	if time.Since(lease.LastHeartbeat) > coordinator.DefaultLeaseTimeout {
		return "", nil
	}
	return lease.Holder, nil
}

// queueAPI reads and drains the live queues of a running coordinator
// through its dashboard.
type queueAPI struct {
	base   string
	client *http.Client
}

func newQueueAPI(cfg *config.Config, addr string) *queueAPI {
	if addr == "" {
		port := cfg.Dashboard.Port
		if port <= 0 {
			port = dashboard.DefaultPort
		}
		addr = fmt.Sprintf("http://localhost:%d", port)
	}
	return &queueAPI{
		base:   strings.TrimRight(addr, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *queueAPI) call(method, path string, v any) error {
	req, err := http.NewRequest(method, a.base+path, nil)
	if err != nil {
		return fmt.Errorf("coordinator api: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("coordinator api: %w (is the dashboard running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("coordinator api: %s %s: %s %s", method, path, resp.Status, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coordinator api: decode %s: %w", path, err)
	}
	return nil
}

func (a *queueAPI) list(agentID string) ([]wire.Message, error) {
	var body struct {
		Live    bool                `json:"live"`
		Pending []dashboard.TaskRow `json:"pending"`
	}
	if err := a.call(http.MethodGet, "/api/queues/"+url.PathEscape(agentID), &body); err != nil {
		return nil, err
	}
	msgs := make([]wire.Message, 0, len(body.Pending))
	for _, row := range body.Pending {
		msgs = append(msgs, rowMessage(row, ""))
	}
	return msgs, nil
}

// next peeks at, or with pop dequeues, the agent's most urgent message.
func (a *queueAPI) next(agentID string, pop bool) (wire.Message, bool, error) {
	method, path := http.MethodGet, "/api/queues/"+url.PathEscape(agentID)+"/peek"
	if pop {
		method, path = http.MethodPost, "/api/queues/"+url.PathEscape(agentID)+"/pop"
	}
	var body dashboard.NextTask
	if err := a.call(method, path, &body); err != nil {
		return wire.Message{}, false, err
	}
	if body.Task == nil {
		return wire.Message{}, false, nil
	}
	return rowMessage(*body.Task, body.Path), true, nil
}

func rowMessage(row dashboard.TaskRow, path string) wire.Message {
	typ, _ := wire.ParseType(row.Type)
	return wire.Message{
		Filename:  row.Filename,
		Timestamp: row.Timestamp,
		From:      wire.Agent(row.From),
		To:        wire.Agent(row.To),
		Type:      typ,
		Subject:   row.Subject,
		Path:      path,
	}
}
