package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/backoff"
	"github.com/SirClappington/wheelsched/internal/cluster"
	"github.com/SirClappington/wheelsched/internal/config"
	"github.com/SirClappington/wheelsched/internal/shard"
)

// ConfigFrom extracts the scheduling knobs from the process configuration.
func ConfigFrom(c config.Config) Config {
	return Config{
		Tick:               c.Tick,
		WheelSize:          c.WheelSize,
		Lease:              c.Lease,
		EventLimit:         c.EventLimit,
		ExecutionLimit:     c.ExecutionLimit,
		MaxDispatchPerTick: c.MaxDispatchPerTick,
		LeaseRetryDelay:    c.LeaseRetryDelay,
		DefaultMaxAttempts: c.DefaultMaxAttempts,
		DefaultFailureRate: c.DefaultFailureRate,
	}
}

// NewFromConfig resolves the named strategies in c and builds a Scheduler
// with a simulated executor. opts are applied last and may override any of it.
func NewFromConfig(c config.Config, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	hash, err := shard.HasherByName(c.ShardHash)
	if err != nil {
		return nil, errors.Wrap(err, "shard hash")
	}
	assign, err := cluster.StrategyByName(c.Assignment)
	if err != nil {
		return nil, errors.Wrap(err, "assignment")
	}
	retry, err := backoff.FromName(c.RetryStrategy, c.RetryBackoff, c.RetryBackoffMax)
	if err != nil {
		return nil, errors.Wrap(err, "retry strategy")
	}

	seed := uint64(time.Now().UnixNano())
	exec := NewSimulatedExecutor(c.SimMinLatency, c.SimMaxLatency, NewRandomOutcomes(seed, c.SimCrashRate), logger)

	base := []Option{
		WithRouter(shard.New(c.ShardCount, hash)),
		WithAssignment(assign),
		WithBackoff(retry),
		WithExecutor(exec),
	}
	return New(ConfigFrom(c), logger, append(base, opts...)...), nil
}
