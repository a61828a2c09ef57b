// Command scheduler runs the scheduling loop without an HTTP surface: it
// heartbeats demo nodes, seeds a burst of jobs and logs queue statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/app"
	"github.com/SirClappington/wheelsched/internal/config"
	"github.com/SirClappington/wheelsched/internal/logging"
)

var defaultNodes = []string{"node-a", "node-b", "node-c"}

func main() {
	var (
		seed            int
		reportEvery     time.Duration
		killLeaderAfter time.Duration
		duration        time.Duration
	)

	cmd := &cobra.Command{
		Use:          "scheduler",
		Short:        "Run the job scheduler headless against simulated nodes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.DemoNodes) == 0 {
				cfg.DemoNodes = defaultNodes
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			rt, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if seed > 0 {
				rt.Scheduler.SeedDemoJobs(seed)
			}
			if killLeaderAfter > 0 {
				time.AfterFunc(killLeaderAfter, func() {
					leader := string(rt.Scheduler.Nodes().LeaderID)
					if leader != "" && rt.Heartbeater.Kill(leader) {
						logger.Info("stopped heartbeating leader", zap.String("node_id", leader))
					}
				})
			}

			return rt.Run(ctx, func(ctx context.Context) error {
				return report(ctx, rt, reportEvery, logger)
			})
		},
	}
	cmd.Flags().IntVar(&seed, "seed", 12, "demo jobs to submit at startup (0 for none)")
	cmd.Flags().DurationVar(&reportEvery, "report-every", 2*time.Second, "interval between queue statistics logs")
	cmd.Flags().DurationVar(&killLeaderAfter, "kill-leader-after", 0, "stop heartbeating the leader after this long (0 disables)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "exit after this long (0 runs until interrupted)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func report(ctx context.Context, rt *app.Runtime, every time.Duration, logger *zap.Logger) error {
	if every <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := rt.Scheduler.QueueStats()
			fields := []zap.Field{
				zap.String("leader_id", string(st.LeaderID)),
				zap.Bool("paused", st.Paused),
				zap.Int("wheel_pointer", st.WheelPointer),
				zap.Int("wheel_depth", st.WheelDepth),
			}
			for status, n := range st.StatusCounts {
				fields = append(fields, zap.Int(string(status), n))
			}
			logger.Info("queue stats", fields...)
		}
	}
}
