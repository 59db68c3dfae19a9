// Package dashboard serves the fleet's health, queues, messages and agents
// as a JSON API.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/messenger"
	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/status"
	"gorm.io/gorm"
)

// DefaultPort is used when StartOpts.Port is unset.
const DefaultPort = 8080

// StartOpts holds configuration for the dashboard server. Only Monitor is
// required; routes backed by a nil source answer 503.
type StartOpts struct {
	Monitor   *health.Monitor
	Queues    *queue.Registry
	Messenger *messenger.Messenger
	Tracker   *status.Tracker
	DB        *gorm.DB // journal queries
	Port      int
	Out       io.Writer
}

type server struct {
	monitor   *health.Monitor
	queues    *queue.Registry
	messenger *messenger.Messenger
	tracker   *status.Tracker
	db        *gorm.DB

	pollInterval      time.Duration // SSE alert polling
	heartbeatInterval time.Duration // SSE keep-alive
}

// NewHandler builds the Gin engine serving every route.
func NewHandler(opts StartOpts) (*gin.Engine, error) {
	if opts.Monitor == nil {
		return nil, fmt.Errorf("dashboard: monitor is required")
	}
	s := &server{
		monitor:           opts.Monitor,
		queues:            opts.Queues,
		messenger:         opts.Messenger,
		tracker:           opts.Tracker,
		db:                opts.DB,
		pollInterval:      3 * time.Second,
		heartbeatInterval: 15 * time.Second,
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, s)
	return router, nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewHandler(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
