// Package api exposes the scheduler over HTTP with JSON bodies.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
	"github.com/SirClappington/wheelsched/internal/scheduler"
)

// Scheduler is the part of *scheduler.Scheduler the HTTP layer drives.
type Scheduler interface {
	SubmitJob(req scheduler.SubmitRequest) (domain.Job, error)
	Heartbeat(nodeID string) scheduler.HeartbeatResult
	GetJob(id string) (domain.Job, error)
	ListJobs(limit int) []domain.Job
	ListExecutions(limit int) []domain.Execution
	Nodes() scheduler.NodesView
	ShardLoad() []scheduler.ShardLoad
	QueueStats() scheduler.QueueStats
	Events(limit int) []domain.Event
	Pause()
	Resume()
	Paused() bool
	SeedDemoJobs(count int) int
}

type Server struct {
	router    chi.Router
	sched     Scheduler
	logger    *zap.Logger
	limiter   *tenantLimiter
	startTime time.Time
	now       func() time.Time
}

type Option func(*Server)

// WithSubmitRate limits job submissions per tenant to perSecond with the
// given burst. A non-positive rate disables limiting.
func WithSubmitRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.limiter = newTenantLimiter(perSecond, burst)
		}
	}
}

func New(sched Scheduler, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		sched:     sched,
		logger:    logger.Named("api"),
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/nodes", s.handleNodes)
		r.Post("/nodes/heartbeat", s.handleHeartbeat)
		r.Get("/shards", s.handleShards)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleSubmitJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
		})

		r.Get("/executions", s.handleListExecutions)
		r.Get("/queues", s.handleQueues)
		r.Get("/events", s.handleEvents)

		r.Post("/controls/pause", s.handlePause)
		r.Post("/controls/resume", s.handleResume)
		r.Post("/seed", s.handleSeed)
	})
}
