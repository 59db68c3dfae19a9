package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/journal"
	"github.com/zulandar/hive/internal/messenger"
	"github.com/zulandar/hive/internal/queue"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, s *server) {
	api := router.Group("/api")

	api.GET("/health", s.handleHealth)
	api.GET("/health/score", s.handleScore)
	api.GET("/alerts", s.handleAlerts)
	api.POST("/alerts/:id/resolve", s.handleResolve)
	api.GET("/events", s.handleEvents)

	api.GET("/queues", s.handleQueues)
	api.GET("/queues/:agent", s.handleQueue)
	api.GET("/queues/:agent/peek", s.handlePeek)
	api.POST("/queues/:agent/pop", s.handlePop)

	api.GET("/messages/status", s.handleMessageStatus)
	api.GET("/messages/:bot", s.handleInbox)

	api.GET("/agents", s.handleAgents)
	api.GET("/agents/summary", s.handleAgentSummary)

	api.GET("/journal", s.handleJournal)
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not available"})
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Dashboard())
}

func (s *server) handleScore(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"health_score": s.monitor.HealthScore()})
}

func (s *server) handleAlerts(c *gin.Context) {
	var level health.Level
	if raw := c.Query("level"); raw != "" {
		l, ok := health.ParseLevel(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level " + strconv.Quote(raw)})
			return
		}
		level = l
	}
	resolved, _ := strconv.ParseBool(c.Query("resolved"))
	alerts := s.monitor.Alerts(level, resolved)
	if alerts == nil {
		alerts = []health.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *server) handleResolve(c *gin.Context) {
	id := c.Param("id")
	if !s.monitor.ResolveAlert(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active alert " + strconv.Quote(id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": id})
}

func (s *server) handleQueues(c *gin.Context) {
	if s.queues == nil {
		unavailable(c, "queues")
		return
	}
	sizes := s.queues.Sizes()
	total := 0
	for _, n := range sizes {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"queues": sizes, "total": total})
}

// handleQueue serves the live heap when the queue is loaded in this
// process, otherwise what is on disk.
func (s *server) handleQueue(c *gin.Context) {
	if s.queues == nil {
		unavailable(c, "queues")
		return
	}
	agent := c.Param("agent")
	if q, ok := s.queues.Lookup(agent); ok {
		c.JSON(http.StatusOK, gin.H{
			"agent_id": agent,
			"live":     true,
			"size":     q.Size(),
			"pending":  taskViews(q.ListPending()),
		})
		return
	}
	info, err := queue.DirStatus(s.queues.Root(), agent)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": agent,
		"live":     false,
		"size":     info.QueueSize,
		"files":    info.PendingFiles,
	})
}

// liveQueue returns the agent's in-process queue, answering the request
// itself when there is none.
func (s *server) liveQueue(c *gin.Context) (*queue.TaskQueue, bool) {
	if s.queues == nil {
		unavailable(c, "queues")
		return nil, false
	}
	q, ok := s.queues.Lookup(c.Param("agent"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no queue for " + strconv.Quote(c.Param("agent"))})
		return nil, false
	}
	return q, true
}

func (s *server) handlePeek(c *gin.Context) {
	q, ok := s.liveQueue(c)
	if !ok {
		return
	}
	msg, ok := q.Peek()
	c.JSON(http.StatusOK, nextView(q, msg, ok))
}

// handlePop dequeues the most urgent message. The copy in the queue
// directory stays behind as the audit record.
func (s *server) handlePop(c *gin.Context) {
	q, ok := s.liveQueue(c)
	if !ok {
		return
	}
	msg, ok := q.Dequeue()
	c.JSON(http.StatusOK, nextView(q, msg, ok))
}

func (s *server) handleMessageStatus(c *gin.Context) {
	if s.messenger == nil {
		unavailable(c, "messenger")
		return
	}
	counts := s.messenger.Counts()
	c.JSON(http.StatusOK, gin.H{
		"overview":     s.messenger.Status(),
		"counts":       counts,
		"success_rate": counts.SuccessRate(),
	})
}

func (s *server) handleInbox(c *gin.Context) {
	if s.messenger == nil {
		unavailable(c, "messenger")
		return
	}
	msgs := s.messenger.Inbox(c.Param("bot"))
	if msgs == nil {
		msgs = []messenger.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"bot_id": c.Param("bot"), "messages": msgs})
}

func (s *server) handleAgents(c *gin.Context) {
	if s.tracker == nil {
		unavailable(c, "tracker")
		return
	}
	agents, err := s.tracker.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agentViews(agents)})
}

func (s *server) handleAgentSummary(c *gin.Context) {
	if s.tracker == nil {
		unavailable(c, "tracker")
		return
	}
	sum, err := s.tracker.Summarize()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summaryView(sum))
}

func (s *server) handleJournal(c *gin.Context) {
	if s.db == nil {
		unavailable(c, "journal")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	entries, err := journal.Recent(s.db, c.DefaultQuery("stream", "health:alerts"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": journalViews(entries)})
}
