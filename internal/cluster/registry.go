// Package cluster tracks heartbeating logical nodes and derives the leader.
//
// Leadership is the lexicographically smallest node id whose lease has not
// expired. There is no term or epoch: a node flapping in and out of liveness
// flips leadership, and an old leader's in-flight dispatch is not fenced.
// This is a single-process simulation of a cluster, not a consensus protocol.
package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// Strategy picks a worker for a shard among the active nodes (sorted by id).
type Strategy func(shardID int, active []domain.Node) domain.Node

// Modulo picks active[shardID mod len(active)].
func Modulo(shardID int, active []domain.Node) domain.Node {
	idx := shardID % len(active)
	if idx < 0 {
		idx += len(active)
	}
	return active[idx]
}

// Rendezvous picks the node with the highest xxhash weight for the shard, so
// a node joining or leaving only moves the shards that node wins or owned.
func Rendezvous(shardID int, active []domain.Node) domain.Node {
	ids := make([]string, len(active))
	byID := make(map[string]domain.Node, len(active))
	for i, n := range active {
		ids[i] = n.ID
		byID[n.ID] = n
	}
	r := rendezvous.New(ids, xxhash.Sum64String)
	return byID[r.Lookup(strconv.Itoa(shardID))]
}

// StrategyByName resolves the ASSIGNMENT setting.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "modulo":
		return Modulo, nil
	case "rendezvous":
		return Rendezvous, nil
	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", name)
	}
}

// Registry is not safe for concurrent use; the scheduler serializes access.
type Registry struct {
	lease    time.Duration
	nodes    map[string]*domain.Node
	leader   string
	strategy Strategy
}

func NewRegistry(lease time.Duration, strategy Strategy) *Registry {
	if strategy == nil {
		strategy = Modulo
	}
	return &Registry{
		lease:    lease,
		nodes:    make(map[string]*domain.Node),
		strategy: strategy,
	}
}

// Heartbeat creates or refreshes the node lease to now+lease. It does not
// re-elect; callers follow up with Elect.
func (r *Registry) Heartbeat(nodeID string, now time.Time) (node domain.Node, created bool) {
	n, ok := r.nodes[nodeID]
	if !ok {
		n = &domain.Node{ID: nodeID, StartedAt: now}
		r.nodes[nodeID] = n
	}
	n.ExpiresAt = now.Add(r.lease)
	return *n, !ok
}

// Elect recomputes the leader at now and reports whether it changed.
func (r *Registry) Elect(now time.Time) (leaderID string, changed bool) {
	leader := ""
	for id, n := range r.nodes {
		if !n.Alive(now) {
			continue
		}
		if leader == "" || id < leader {
			leader = id
		}
	}
	changed = leader != r.leader
	r.leader = leader
	return leader, changed
}

// Leader returns the result of the most recent Elect; empty means no leader.
func (r *Registry) Leader() string {
	return r.leader
}

// Nodes returns every known node, expired ones included, sorted by id.
func (r *Registry) Nodes() []domain.Node {
	out := make([]domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sortByID(out)
	return out
}

// Active returns the nodes whose lease is valid at now, sorted by id.
func (r *Registry) Active(now time.Time) []domain.Node {
	var out []domain.Node
	for _, n := range r.nodes {
		if n.Alive(now) {
			out = append(out, *n)
		}
	}
	sortByID(out)
	return out
}

// AssignWorker chooses the node that runs a job of the given shard.
func (r *Registry) AssignWorker(shardID int, now time.Time) (domain.Node, bool) {
	active := r.Active(now)
	if len(active) == 0 {
		return domain.Node{}, false
	}
	return r.strategy(shardID, active), true
}

func sortByID(nodes []domain.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
