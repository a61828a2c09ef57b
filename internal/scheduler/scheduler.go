// Package scheduler owns every piece of scheduling state and is the only path
// that mutates it.
//
// Each tick runs, in order and under one mutex: wheel advance and promotion of
// due jobs, leader recomputation, dispatch of queued jobs (leader present and
// not paused), and the lease-expiry sweep. Executions started by dispatch are
// handed to the Executor after the mutex is released; their completions take
// the mutex again and only apply if the job still belongs to that execution.
package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/backoff"
	"github.com/SirClappington/wheelsched/internal/clock"
	"github.com/SirClappington/wheelsched/internal/cluster"
	"github.com/SirClappington/wheelsched/internal/domain"
	"github.com/SirClappington/wheelsched/internal/events"
	"github.com/SirClappington/wheelsched/internal/queue"
	"github.com/SirClappington/wheelsched/internal/shard"
	"github.com/SirClappington/wheelsched/internal/storage"
)

type Config struct {
	Tick               time.Duration
	WheelSize          int
	Lease              time.Duration
	EventLimit         int
	ExecutionLimit     int
	MaxDispatchPerTick int
	LeaseRetryDelay    time.Duration
	DefaultMaxAttempts int
	DefaultFailureRate float64
}

func DefaultConfig() Config {
	return Config{
		Tick:               200 * time.Millisecond,
		WheelSize:          60,
		Lease:              3500 * time.Millisecond,
		EventLimit:         220,
		ExecutionLimit:     220,
		MaxDispatchPerTick: 6,
		LeaseRetryDelay:    time.Second,
		DefaultMaxAttempts: 3,
		DefaultFailureRate: 0.12,
	}
}

type Scheduler struct {
	mu       sync.Mutex
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
	store    *storage.Store
	wheel    *queue.Wheel
	nodes    *cluster.Registry
	router   *shard.Router
	events   *events.Log
	forward  *events.Forwarder
	executor Executor
	backoff  backoff.Strategy
	rng      *rand.Rand
	paused   bool

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithExecutor(e Executor) Option {
	return func(s *Scheduler) { s.executor = e }
}

func WithRouter(r *shard.Router) Option {
	return func(s *Scheduler) { s.router = r }
}

// WithAssignment sets how dispatch picks a worker for a shard.
func WithAssignment(st cluster.Strategy) Option {
	return func(s *Scheduler) { s.nodes = cluster.NewRegistry(s.cfg.Lease, st) }
}

func WithBackoff(b backoff.Strategy) Option {
	return func(s *Scheduler) { s.backoff = b }
}

// WithForwarder mirrors every logged event to f.
func WithForwarder(f *events.Forwarder) Option {
	return func(s *Scheduler) { s.forward = f }
}

// WithSeed fixes the random source used for demo seeding.
func WithSeed(seed uint64) Option {
	return func(s *Scheduler) { s.rng = newRand(seed) }
}

func New(cfg Config, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		clock:   clock.Real(),
		logger:  logger.Named("scheduler"),
		store:   storage.New(cfg.ExecutionLimit),
		wheel:   queue.New(cfg.WheelSize, cfg.Tick),
		nodes:   cluster.NewRegistry(cfg.Lease, cluster.Modulo),
		router:  shard.New(3, shard.SumHasher),
		events:  events.NewLog(cfg.EventLimit),
		backoff: backoff.NewConstant(2 * time.Second),
		rng:     newRand(uint64(time.Now().UnixNano())),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = NewSimulatedExecutor(400*time.Millisecond, 1200*time.Millisecond,
			NewRandomOutcomes(uint64(time.Now().UnixNano()), 0), s.logger)
	}
	return s
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Start runs Tick on every tick interval. Blocks until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.started.Store(true)
	defer close(s.doneCh)

	s.logger.Info("scheduler started",
		zap.Duration("tick", s.cfg.Tick),
		zap.Int("wheel_size", s.cfg.WheelSize),
		zap.Duration("lease", s.cfg.Lease),
	)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-s.stopCh:
			s.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-ticker.C:
			if err := s.safeTick(ctx); err != nil {
				s.logger.Error("tick error", zap.Error(err))
			}
		}
	}
}

// Stop ends a running Start loop and waits for the current tick to finish.
func (s *Scheduler) Stop() error {
	if !s.started.Load() {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return nil
}

func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return s.Tick(ctx)
}

// Tick runs a single scheduling iteration.
func (s *Scheduler) Tick(ctx context.Context) error {
	launches := s.step()
	for _, l := range launches {
		s.executor.Execute(ctx, l, s.complete)
	}
	return nil
}

func (s *Scheduler) step() []Launch {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	// Phase 1: advance the wheel and queue due jobs.
	s.promote(now)

	// Phase 2: re-elect so dispatch sees the leader as of this tick.
	s.elect(now)

	// Phase 3: dispatch, leader-only and gated by pause.
	var launches []Launch
	if !s.paused && s.nodes.Leader() != "" {
		launches = s.dispatch(now)
	}

	// Phase 4: reclaim expired leases, regardless of pause.
	s.reclaimLeases(now)

	return launches
}

// promote drains the current wheel slot and moves due jobs to queued.
func (s *Scheduler) promote(now time.Time) {
	for _, e := range s.wheel.Advance() {
		job, ok := s.store.Get(e.JobID)
		if !ok || job.Status != domain.Scheduled || job.Attempts != e.Attempts {
			s.logger.Debug("dropping stale wheel entry", zap.String("job_id", e.JobID))
			continue
		}
		if job.RunAt.After(now) {
			s.wheel.Schedule(job.ID, job.RunAt, job.Attempts, now)
			continue
		}
		s.transition(job.ID, domain.Queued, func(j *domain.Job) {
			j.UpdatedAt = now
		})
		s.logEvent(domain.EventJobQueued, map[string]any{
			"jobId": job.ID,
			"shard": job.ShardID,
		}, now)
	}
}

func (s *Scheduler) elect(now time.Time) {
	prev := s.nodes.Leader()
	leader, changed := s.nodes.Elect(now)
	if !changed {
		return
	}
	s.logger.Info("leader changed", zap.String("leader_id", leader), zap.String("previous", prev))
	s.logEvent(domain.EventLeaderChanged, map[string]any{
		"leaderId": nullable(leader),
		"previous": nullable(prev),
	}, now)
}

// transition changes a job's status through the store's transition table. A
// refusal means scheduler state is inconsistent; it is logged, never fatal.
func (s *Scheduler) transition(id string, to domain.Status, fn func(j *domain.Job)) bool {
	if err := s.store.Transition(id, to, fn); err != nil {
		s.logger.Error("status transition refused", zap.String("job_id", id), zap.Error(err))
		return false
	}
	return true
}

func (s *Scheduler) logEvent(typ domain.EventType, payload map[string]any, now time.Time) {
	evt := s.events.Append(typ, payload, now)
	if s.forward != nil {
		s.forward.Offer(evt)
	}
}

// nullable maps "no id" to a JSON null.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}
