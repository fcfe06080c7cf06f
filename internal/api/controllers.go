package api

import (
	"errors"
	"net/http"
	"time"

	"terminal-core/internal/pool"

	"github.com/gin-gonic/gin"
)

type listOrdersQuery struct {
	Limit int `form:"limit"`
}

func (q *listOrdersQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// getSchedulerStatus reports the live scheduler snapshot. Public: the UI
// polls it before the operator logs in.
func (s *Server) getSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Sched.Status(c.Request.Context()))
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"counters": s.Metrics.Get(),
		"meta": gin.H{
			"dry_run":       s.Meta.DryRun,
			"bridge_addr":   s.Meta.BridgeAddr,
			"terminals_dir": s.Meta.TerminalsDir,
			"version":       s.Meta.Version,
		},
	})
}

type workerView struct {
	AccountID     string    `json:"account_id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	IsolationPath string    `json:"isolation_path"`
}

func (s *Server) listWorkers(c *gin.Context) {
	ids := s.Pool.ListRunning()
	views := make([]workerView, 0, len(ids))
	for _, id := range ids {
		h, err := s.Pool.Get(id)
		if err != nil {
			continue // stopped between list and get
		}
		views = append(views, workerView{
			AccountID:     h.AccountID(),
			State:         h.State().String(),
			StartedAt:     h.StartedAt(),
			IsolationPath: h.Connection().IsolationPath(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"workers": views, "count": len(views)})
}

func (s *Server) startWorker(c *gin.Context) {
	accountID := c.Param("id")
	h, err := s.Pool.Start(c.Request.Context(), accountID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, workerView{
			AccountID:     h.AccountID(),
			State:         h.State().String(),
			StartedAt:     h.StartedAt(),
			IsolationPath: h.Connection().IsolationPath(),
		})
	case errors.Is(err, pool.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "WORKER_ALREADY_RUNNING", err.Error())
	case errors.Is(err, pool.ErrPathConflict):
		respondError(c, http.StatusConflict, "WORKER_PATH_CONFLICT", err.Error())
	default:
		respondError(c, http.StatusBadGateway, "WORKER_START_FAILED", err.Error())
	}
}

func (s *Server) stopWorker(c *gin.Context) {
	accountID := c.Param("id")
	err := s.Pool.Stop(c.Request.Context(), accountID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"account_id": accountID, "stopped": true})
	case errors.Is(err, pool.ErrNotRunning):
		respondError(c, http.StatusNotFound, "WORKER_NOT_RUNNING", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "WORKER_STOP_FAILED", err.Error())
	}
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.DB.ListSessions(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) listCycles(c *gin.Context) {
	history := s.Sched.History()
	c.JSON(http.StatusOK, gin.H{"cycles": history, "count": len(history)})
}

// runCycle triggers one cycle outside the timer. Blocks until the cycle
// completes; accounts already in flight are skipped as usual.
func (s *Server) runCycle(c *gin.Context) {
	record := s.Sched.RunCycle(c.Request.Context())
	c.JSON(http.StatusOK, record)
}

func (s *Server) listOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.BindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	orders, err := s.DB.ListOrderAudit(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}
