// Package app wires configuration into a running scheduler process: the tick
// loop, the optional event sinks and the demo-node heartbeater.
package app

import (
	"context"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/wheelsched/internal/config"
	"github.com/SirClappington/wheelsched/internal/events"
	"github.com/SirClappington/wheelsched/internal/scheduler"
	"github.com/SirClappington/wheelsched/internal/sim"
	"github.com/SirClappington/wheelsched/internal/storage"
)

const redisStreamMaxLen = 10000

type Runtime struct {
	Config      config.Config
	Logger      *zap.Logger
	Scheduler   *scheduler.Scheduler
	Forwarder   *events.Forwarder // nil without sinks
	Heartbeater *sim.Heartbeater  // nil without demo nodes

	closers []func() error
}

// Build connects the configured sinks and constructs the scheduler. Callers
// must Close the runtime once Run returns.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...scheduler.Option) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	sinks, err := rt.openSinks(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if len(sinks) > 0 {
		rt.Forwarder = events.NewForwarder(cfg.SinkBuffer, logger, sinks...)
		opts = append([]scheduler.Option{scheduler.WithForwarder(rt.Forwarder)}, opts...)
	}

	rt.Scheduler, err = scheduler.NewFromConfig(cfg, logger, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	if len(cfg.DemoNodes) > 0 {
		rt.Heartbeater, err = sim.New(rt.Scheduler, cfg.DemoNodes, cfg.HeartbeatSchedule, logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *Runtime) openSinks(ctx context.Context) ([]events.Sink, error) {
	var sinks []events.Sink

	if rt.Config.RedisAddr != "" {
		rdb := r.NewClient(&r.Options{Addr: rt.Config.RedisAddr, Password: rt.Config.RedisPassword})
		rt.closers = append(rt.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrapf(err, "ping redis %s", rt.Config.RedisAddr)
		}
		sinks = append(sinks, events.NewRedisSink(rdb, rt.Config.RedisStream, redisStreamMaxLen))
		rt.Logger.Info("redis event sink enabled", zap.String("stream", rt.Config.RedisStream))
	}

	if rt.Config.PostgresDSN != "" {
		pool, err := storage.Connect(ctx, rt.Config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		sinks = append(sinks, storage.NewArchive(pool))
		rt.Logger.Info("postgres event archive enabled")
	}
	return sinks, nil
}

// Run drives the tick loop, the forwarder, the heartbeater and any extra
// services until ctx is cancelled or one of them fails.
func (rt *Runtime) Run(ctx context.Context, extra ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(rt.Scheduler.Start(gctx))
	})
	if rt.Forwarder != nil {
		g.Go(func() error { return rt.Forwarder.Run(gctx) })
	}
	if rt.Heartbeater != nil {
		g.Go(func() error { return rt.Heartbeater.Run(gctx) })
	}
	for _, fn := range extra {
		g.Go(func() error { return ignoreCanceled(fn(gctx)) })
	}

	err := g.Wait()
	if rt.Forwarder != nil && rt.Forwarder.Dropped() > 0 {
		rt.Logger.Warn("events dropped by forwarder", zap.Int64("dropped", rt.Forwarder.Dropped()))
	}
	return err
}

// Close releases sink connections.
func (rt *Runtime) Close() error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	rt.closers = nil
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
