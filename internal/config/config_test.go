package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	c, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8130", c.APIAddr)
	assert.Equal(t, 200*time.Millisecond, c.Tick)
	assert.Equal(t, 60, c.WheelSize)
	assert.Equal(t, 3500*time.Millisecond, c.Lease)
	assert.Equal(t, 220, c.EventLimit)
	assert.Equal(t, 6, c.MaxDispatchPerTick)
	assert.Equal(t, 3, c.ShardCount)
	assert.Equal(t, 2*time.Second, c.RetryBackoff)
	assert.Equal(t, time.Second, c.LeaseRetryDelay)
	assert.Equal(t, 3, c.DefaultMaxAttempts)
	assert.InDelta(t, 0.12, c.DefaultFailureRate, 1e-9)
	assert.Equal(t, "@every 1s", c.HeartbeatSchedule)
	assert.Empty(t, c.DemoNodes)
	assert.Empty(t, c.RedisAddr)
}

func TestLoadFrom_Overrides(t *testing.T) {
	c, err := LoadFrom(map[string]string{
		"TICK_INTERVAL": "1s",
		"WHEEL_SIZE":    "120",
		"DEMO_NODES":    "node-a,node-b",
		"SHARD_HASH":    "xxhash",
		"REDIS_ADDR":    "localhost:6379",
	})
	require.NoError(t, err)

	assert.Equal(t, time.Second, c.Tick)
	assert.Equal(t, 120, c.WheelSize)
	assert.Equal(t, []string{"node-a", "node-b"}, c.DemoNodes)
	assert.Equal(t, "xxhash", c.ShardHash)
	assert.Equal(t, "localhost:6379", c.RedisAddr)
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"WHEEL_SIZE": "lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"WHEEL_SIZE":           "0",
		"DEFAULT_FAILURE_RATE": "1.5",
		"SIM_MIN_LATENCY":      "2s",
		"SIM_MAX_LATENCY":      "1s",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WHEEL_SIZE")
	assert.Contains(t, err.Error(), "DEFAULT_FAILURE_RATE")
	assert.Contains(t, err.Error(), "SIM_MAX_LATENCY")
}
