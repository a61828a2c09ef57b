package scheduler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
)

const (
	defaultJobLimit       = 50
	defaultExecutionLimit = 40
)

// OptionalID is a node id that encodes as JSON null when empty.
type OptionalID string

func (o OptionalID) MarshalJSON() ([]byte, error) {
	if o == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(o))
}

func (o *OptionalID) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*o = ""
		return nil
	}
	*o = OptionalID(*s)
	return nil
}

type NodesView struct {
	LeaderID OptionalID    `json:"leaderId"`
	Nodes    []domain.Node `json:"nodes"`
}

type ShardLoad struct {
	ShardID  int    `json:"shardId"`
	Name     string `json:"name"`
	JobCount int    `json:"jobCount"`
}

type QueueStats struct {
	LeaderID     OptionalID            `json:"leaderId"`
	Paused       bool                  `json:"paused"`
	WheelPointer int                   `json:"wheelPointer"`
	WheelDepth   int                   `json:"wheelDepth"`
	StatusCounts map[domain.Status]int `json:"statusCounts"`
}

// ListJobs returns up to limit jobs, newest first.
func (s *Scheduler) ListJobs(limit int) []domain.Job {
	if limit <= 0 {
		limit = defaultJobLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List(limit)
}

func (s *Scheduler) GetJob(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.store.Get(id)
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

// ListExecutions returns up to limit executions, newest first.
func (s *Scheduler) ListExecutions(limit int) []domain.Execution {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Executions(limit)
}

// Nodes lists every known node, expired ones included, with the current leader.
func (s *Scheduler) Nodes() NodesView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NodesView{
		LeaderID: OptionalID(s.nodes.Leader()),
		Nodes:    s.nodes.Nodes(),
	}
}

func (s *Scheduler) ShardLoad() []ShardLoad {
	s.mu.Lock()
	defer s.mu.Unlock()
	shards := s.router.Shards()
	out := make([]ShardLoad, 0, len(shards))
	for _, sh := range shards {
		out = append(out, ShardLoad{
			ShardID:  sh.ID,
			Name:     sh.Name,
			JobCount: s.store.ShardJobCount(sh.ID),
		})
	}
	return out
}

func (s *Scheduler) QueueStats() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueStats{
		LeaderID:     OptionalID(s.nodes.Leader()),
		Paused:       s.paused,
		WheelPointer: s.wheel.Pointer(),
		WheelDepth:   s.wheel.Depth(),
		StatusCounts: s.store.CountByStatus(),
	}
}

// Events returns up to limit events, newest first. limit <= 0 returns the
// whole retained history.
func (s *Scheduler) Events(limit int) []domain.Event {
	return s.events.List(limit)
}

// Pause stops dispatch. Promotion and lease recovery keep running.
func (s *Scheduler) Pause() {
	s.setPaused(true)
}

func (s *Scheduler) Resume() {
	s.setPaused(false)
}

func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Scheduler) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == paused {
		return
	}
	s.paused = paused

	typ := domain.EventResumed
	if paused {
		typ = domain.EventPaused
	}
	s.logEvent(typ, map[string]any{"paused": paused}, s.clock.Now())
	s.logger.Info("dispatch toggled", zap.Bool("paused", paused))
}
