package api

import (
	"net/http"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/internal/pool"
	"terminal-core/internal/scheduler"
	"terminal-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the scheduler, worker pool and event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Pool      *pool.Manager
	Sched     *scheduler.Scheduler
	Metrics   *monitor.Metrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime configuration exposed to the UI.
type SystemMeta struct {
	DryRun       bool
	BridgeAddr   string
	TerminalsDir string
	Version      string
}

func NewServer(bus *events.Bus, database *db.Database, poolMgr *pool.Manager, sched *scheduler.Scheduler, metrics *monitor.Metrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Recovery must sit outermost; the rate limiter runs before the
	// timeout so throttled requests never spawn a handler goroutine.
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Pool:      poolMgr,
		Sched:     sched,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/scheduler/status", s.getSchedulerStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/workers", s.listWorkers)
			protected.POST("/workers/:id/start", s.startWorker)
			protected.POST("/workers/:id/stop", s.stopWorker)

			protected.GET("/sessions", s.listSessions)
			protected.GET("/cycles", s.listCycles)
			protected.POST("/cycles/run", s.runCycle)
			protected.GET("/orders", s.listOrders)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
