package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SirClappington/wheelsched/internal/clock"
	"github.com/SirClappington/wheelsched/internal/scheduler"
)

type countingBeater struct {
	mu    sync.Mutex
	beats map[string]int
}

func (c *countingBeater) Heartbeat(id string) scheduler.HeartbeatResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beats == nil {
		c.beats = map[string]int{}
	}
	c.beats[id]++
	return scheduler.HeartbeatResult{NodeID: id}
}

func (c *countingBeater) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beats[id]
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(&countingBeater{}, []string{"a"}, "not a schedule", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestBeat_SkipsKilledNodes(t *testing.T) {
	b := &countingBeater{}
	h, err := New(b, []string{"b", "a", ""}, "@every 1s", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, h.Alive())

	h.Beat()
	assert.True(t, h.Kill("a"))
	assert.False(t, h.Kill("zzz"))
	h.Beat()

	assert.Equal(t, 1, b.count("a"))
	assert.Equal(t, 2, b.count("b"))

	assert.True(t, h.Revive("a"))
	h.Beat()
	assert.Equal(t, 2, b.count("a"))
}

func TestRun_BeatsImmediatelyAndStops(t *testing.T) {
	b := &countingBeater{}
	h, err := New(b, []string{"a"}, "@every 1h", zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return b.count("a") == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestKillLeader_FailsOver(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := scheduler.DefaultConfig()
	sched := scheduler.New(cfg, zaptest.NewLogger(t), scheduler.WithClock(clk))

	h, err := New(sched, []string{"node-a", "node-b"}, "@every 1s", zaptest.NewLogger(t))
	require.NoError(t, err)
	h.Beat()
	require.Equal(t, scheduler.OptionalID("node-a"), sched.Nodes().LeaderID)

	h.Kill("node-a")
	for i := 0; i < 20; i++ {
		clk.Advance(cfg.Tick)
		h.Beat()
		require.NoError(t, sched.Tick(context.Background()))
	}
	assert.Equal(t, scheduler.OptionalID("node-b"), sched.Nodes().LeaderID)
}
