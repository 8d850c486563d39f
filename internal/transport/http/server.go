// Package http exposes the risk state over a small read-mostly API. The only
// writes are alert acknowledgement, pipeline resume and the fill webhook that
// nudges a cycle; nothing here mutates positions or risk data.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"vigil/internal/gateway/venue"
	"vigil/internal/liquidation"
	"vigil/internal/logger"
	"vigil/internal/pipeline"
	"vigil/internal/store"
	"vigil/internal/store/cyclelog"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

type Server struct {
	store      store.Store
	cycles     *cyclelog.Store
	supervisor *pipeline.Supervisor
	coord      *liquidation.Coordinator
	srv        *http.Server
}

func NewServer(addr string, st store.Store, cycles *cyclelog.Store, sup *pipeline.Supervisor, coord *liquidation.Coordinator) *Server {
	s := &Server{store: st, cycles: cycles, supervisor: sup, coord: coord}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/healthz", s.health)
	api := r.Group("/api")
	{
		api.GET("/accounts/:id/reconciliation", s.latestReconciliation)
		api.GET("/accounts/:id/snapshot", s.latestSnapshot)
		api.GET("/accounts/:id/snapshots", s.snapshotHistory)
		api.GET("/accounts/:id/actions", s.actionHistory)
		api.GET("/accounts/:id/alerts", s.recentAlerts)
		api.GET("/accounts/:id/cycles", s.recentCycles)
		api.GET("/accounts/:id/state", s.accountState)
		api.POST("/accounts/:id/resume", s.resumeAccount)
		api.POST("/alerts/:id/ack", s.acknowledgeAlert)
	}
	r.POST("/webhook/fills", s.fillWebhook)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("http %s %s status=%d in %s", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) latestReconciliation(c *gin.Context) {
	report, err := s.store.Reconciliations().LatestReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) latestSnapshot(c *gin.Context) {
	snap, err := s.store.Snapshots().Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) snapshotHistory(c *gin.Context) {
	snaps, err := s.store.Snapshots().History(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

func (s *Server) actionHistory(c *gin.Context) {
	actions, err := s.store.Actions().History(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, actions)
}

func (s *Server) recentAlerts(c *gin.Context) {
	alerts, err := s.store.Alerts().Recent(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) recentCycles(c *gin.Context) {
	entries, err := s.cycles.Recent(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) accountState(c *gin.Context) {
	accountID := c.Param("id")
	p := s.supervisor.ByAccount(accountID)
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id":  accountID,
		"paused":      p.Paused(),
		"coordinator": s.coord.State(accountID),
	})
}

func (s *Server) resumeAccount(c *gin.Context) {
	p := s.supervisor.ByAccount(c.Param("id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	p.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": p.Paused()})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	if err := s.store.Alerts().Acknowledge(c.Request.Context(), c.Param("id")); err != nil {
		replyStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// fillWebhook accepts venue fill notifications and queues a cycle for the
// event's account. Payload problems are reported but a flaky sender can not
// make the pipeline do more than one extra cycle.
func (s *Server) fillWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	event, err := venue.ParseFillEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := s.supervisor.ByAccount(event.AccountID)
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	p.Trigger()
	logger.Infof("webhook fill account=%s symbol=%s order=%s, cycle queued", event.AccountID, event.Symbol, event.OrderID)
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func limitParam(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return n
}

func replyStoreErr(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	logger.Errorf("http %s failed: %v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
