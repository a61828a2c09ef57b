package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/wheelsched/internal/domain"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const lease = 3500 * time.Millisecond

func TestHeartbeat_AutoRegistersAndRefreshes(t *testing.T) {
	r := NewRegistry(lease, nil)

	n, created := r.Heartbeat("a", t0)
	assert.True(t, created)
	assert.Equal(t, t0, n.StartedAt)
	assert.Equal(t, t0.Add(lease), n.ExpiresAt)

	n, created = r.Heartbeat("a", t0.Add(time.Second))
	assert.False(t, created)
	assert.Equal(t, t0, n.StartedAt, "start time survives refresh")
	assert.Equal(t, t0.Add(time.Second+lease), n.ExpiresAt)
}

func TestElect_SmallestLiveID(t *testing.T) {
	r := NewRegistry(lease, nil)

	r.Heartbeat("b", t0)
	leader, changed := r.Elect(t0)
	assert.Equal(t, "b", leader)
	assert.True(t, changed)

	r.Heartbeat("a", t0)
	leader, changed = r.Elect(t0)
	assert.Equal(t, "a", leader)
	assert.True(t, changed)

	_, changed = r.Elect(t0)
	assert.False(t, changed)
}

func TestElect_ExpiredNodesLoseLeadership(t *testing.T) {
	r := NewRegistry(lease, nil)
	r.Heartbeat("a", t0)
	r.Heartbeat("b", t0.Add(2*time.Second))

	leader, _ := r.Elect(t0.Add(3 * time.Second))
	assert.Equal(t, "a", leader)

	// a expires at t0+3.5s, b at t0+5.5s
	leader, changed := r.Elect(t0.Add(4 * time.Second))
	assert.Equal(t, "b", leader)
	assert.True(t, changed)

	leader, _ = r.Elect(t0.Add(10 * time.Second))
	assert.Empty(t, leader)
	assert.Empty(t, r.Leader())

	// expired nodes are filtered, not purged
	assert.Len(t, r.Nodes(), 2)
	assert.Empty(t, r.Active(t0.Add(10*time.Second)))
}

func TestElect_LeaseBoundaryIsExpired(t *testing.T) {
	r := NewRegistry(lease, nil)
	r.Heartbeat("a", t0)
	leader, _ := r.Elect(t0.Add(lease))
	assert.Empty(t, leader)
}

func TestAssignWorker_Modulo(t *testing.T) {
	r := NewRegistry(lease, Modulo)
	_, ok := r.AssignWorker(0, t0)
	assert.False(t, ok, "no active nodes")

	for _, id := range []string{"c", "a", "b"} {
		r.Heartbeat(id, t0)
	}
	for shardID, want := range []string{"a", "b", "c", "a"} {
		n, ok := r.AssignWorker(shardID, t0)
		require.True(t, ok)
		assert.Equal(t, want, n.ID, "shard %d", shardID)
	}
}

func TestAssignWorker_Rendezvous(t *testing.T) {
	r := NewRegistry(lease, Rendezvous)
	for _, id := range []string{"a", "b", "c"} {
		r.Heartbeat(id, t0)
	}

	first, ok := r.AssignWorker(2, t0)
	require.True(t, ok)
	again, _ := r.AssignWorker(2, t0)
	assert.Equal(t, first.ID, again.ID)
	assert.Contains(t, []string{"a", "b", "c"}, first.ID)
}

func TestStrategyByName(t *testing.T) {
	_, err := StrategyByName("modulo")
	require.NoError(t, err)
	_, err = StrategyByName("rendezvous")
	require.NoError(t, err)
	_, err = StrategyByName("round-robin")
	assert.Error(t, err)
}

func TestModulo_SingleNode(t *testing.T) {
	n := Modulo(7, []domain.Node{{ID: "only"}})
	assert.Equal(t, "only", n.ID)
}
