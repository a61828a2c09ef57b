package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Launch describes one execution handed to an Executor.
type Launch struct {
	JobID       string
	ExecutionID string
	WorkerID    string
	ShardID     int
	Attempt     int
	FailureRate float64
}

// Result is what a worker reports back for a Launch.
type Result struct {
	JobID       string
	ExecutionID string
	Failed      bool
	Reason      string
}

// Executor runs launched executions. Implementations must not block the
// caller for the duration of the work; report may be called from any
// goroutine, at most once per launch, or never if the worker is lost.
type Executor interface {
	Execute(ctx context.Context, l Launch, report func(Result))
}

type Outcome int

const (
	OutcomeSucceed Outcome = iota
	OutcomeFail
	// OutcomeLost means the worker never reports; the lease monitor recovers the job.
	OutcomeLost
)

type OutcomeSource interface {
	Outcome(l Launch) Outcome
}

// RandomOutcomes fails a launch with its job's failure rate and loses it
// entirely with crashRate.
type RandomOutcomes struct {
	mu        sync.Mutex
	rng       *rand.Rand
	crashRate float64
}

func NewRandomOutcomes(seed uint64, crashRate float64) *RandomOutcomes {
	return &RandomOutcomes{rng: newRand(seed), crashRate: crashRate}
}

func (r *RandomOutcomes) Outcome(l Launch) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.crashRate > 0 && r.rng.Float64() < r.crashRate {
		return OutcomeLost
	}
	if r.rng.Float64() < l.FailureRate {
		return OutcomeFail
	}
	return OutcomeSucceed
}

// SimulatedExecutor pretends to run work by reporting after a random latency.
type SimulatedExecutor struct {
	minLatency time.Duration
	maxLatency time.Duration
	outcomes   OutcomeSource
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedExecutor(minLatency, maxLatency time.Duration, outcomes OutcomeSource, logger *zap.Logger) *SimulatedExecutor {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &SimulatedExecutor{
		minLatency: minLatency,
		maxLatency: maxLatency,
		outcomes:   outcomes,
		logger:     logger.Named("executor"),
		rng:        newRand(uint64(time.Now().UnixNano())),
	}
}

func (e *SimulatedExecutor) Execute(ctx context.Context, l Launch, report func(Result)) {
	outcome := e.outcomes.Outcome(l)
	if outcome == OutcomeLost {
		e.logger.Debug("worker lost execution",
			zap.String("job_id", l.JobID),
			zap.String("worker_id", l.WorkerID),
		)
		return
	}

	res := Result{JobID: l.JobID, ExecutionID: l.ExecutionID}
	if outcome == OutcomeFail {
		res.Failed = true
		res.Reason = "simulated failure"
	}
	time.AfterFunc(e.latency(), func() {
		if ctx.Err() != nil {
			return
		}
		report(res)
	})
}

func (e *SimulatedExecutor) latency() time.Duration {
	span := e.maxLatency - e.minLatency
	if span <= 0 {
		return e.minLatency
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.minLatency + time.Duration(e.rng.Int64N(int64(span)))
}
