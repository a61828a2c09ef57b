// Package sim keeps a fixed set of demo nodes alive by heartbeating them on a
// cron schedule, and can take individual nodes down to show leader failover.
package sim

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/scheduler"
)

type Beater interface {
	Heartbeat(nodeID string) scheduler.HeartbeatResult
}

type Heartbeater struct {
	beater Beater
	cron   *cron.Cron
	logger *zap.Logger

	mu    sync.Mutex
	nodes map[string]bool // node id -> alive
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New heartbeats every node in nodes on schedule (cron syntax with optional
// seconds, or a descriptor such as "@every 1s").
func New(b Beater, nodes []string, schedule string, logger *zap.Logger) (*Heartbeater, error) {
	h := &Heartbeater{
		beater: b,
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger.Named("sim"),
		nodes:  make(map[string]bool, len(nodes)),
	}
	for _, id := range nodes {
		if id != "" {
			h.nodes[id] = true
		}
	}
	if _, err := h.cron.AddFunc(schedule, h.Beat); err != nil {
		return nil, errors.Wrapf(err, "heartbeat schedule %q", schedule)
	}
	return h, nil
}

// Beat sends one heartbeat for each live node, in id order.
func (h *Heartbeater) Beat() {
	for _, id := range h.Alive() {
		h.beater.Heartbeat(id)
	}
}

// Run beats once immediately, then on schedule until ctx is done.
func (h *Heartbeater) Run(ctx context.Context) error {
	h.logger.Info("heartbeating demo nodes", zap.Strings("nodes", h.Alive()))
	h.Beat()
	h.cron.Start()
	<-ctx.Done()
	<-h.cron.Stop().Done()
	return nil
}

// Kill stops heartbeating id; its lease lapses and leadership moves on.
func (h *Heartbeater) Kill(id string) bool {
	return h.set(id, false)
}

func (h *Heartbeater) Revive(id string) bool {
	return h.set(id, true)
}

func (h *Heartbeater) set(id string, alive bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[id]; !ok {
		return false
	}
	h.nodes[id] = alive
	h.logger.Info("demo node toggled", zap.String("node_id", id), zap.Bool("alive", alive))
	return true
}

// Alive lists the nodes still being heartbeated, sorted by id.
func (h *Heartbeater) Alive() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.nodes))
	for id, alive := range h.nodes {
		if alive {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
