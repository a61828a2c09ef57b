package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// Store is the authoritative in-memory record of jobs and executions. Jobs are
// never deleted; terminal jobs stay queryable. Store is not safe for concurrent
// use; the scheduler owns it and serializes access.
type Store struct {
	jobs       map[string]*domain.Job
	order      []string // creation order
	shardIndex map[int][]string

	execs     []*domain.Execution // oldest first
	execByID  map[string]*domain.Execution
	execLimit int
}

func New(execLimit int) *Store {
	if execLimit < 1 {
		execLimit = 1
	}
	return &Store{
		jobs:       make(map[string]*domain.Job),
		shardIndex: make(map[int][]string),
		execByID:   make(map[string]*domain.Execution),
		execLimit:  execLimit,
	}
}

type InsertJobParams struct {
	TenantID    string
	Name        string
	Payload     json.RawMessage
	RunAt       time.Time
	ShardID     int
	MaxAttempts int
	FailureRate float64
	Now         time.Time
}

// InsertJob stores a new job in the scheduled state and returns a copy of it.
func (s *Store) InsertJob(p InsertJobParams) domain.Job {
	j := &domain.Job{
		ID:          uuid.NewString(),
		TenantID:    p.TenantID,
		Name:        p.Name,
		Payload:     p.Payload,
		RunAt:       p.RunAt,
		ShardID:     p.ShardID,
		Status:      domain.Scheduled,
		Attempts:    1,
		MaxAttempts: p.MaxAttempts,
		FailureRate: p.FailureRate,
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	s.shardIndex[j.ShardID] = append(s.shardIndex[j.ShardID], j.ID)
	return j.Clone()
}

func (s *Store) Get(id string) (domain.Job, bool) {
	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return j.Clone(), true
}

// Update applies fn to the stored job in place. It reports false if the job
// does not exist.
func (s *Store) Update(id string, fn func(j *domain.Job)) bool {
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(j)
	return true
}

// Transition moves the job to status to after applying fn, refusing moves the
// status table does not allow.
func (s *Store) Transition(id string, to domain.Status, fn func(j *domain.Job)) error {
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if !domain.CanTransition(j.Status, to) {
		return errors.Wrapf(domain.ErrInvalidTransition, "job %s: %s -> %s", id, j.Status, to)
	}
	if fn != nil {
		fn(j)
	}
	j.Status = to
	return nil
}

// IDsByStatus returns ids of jobs in the given status, in creation order.
func (s *Store) IDsByStatus(status domain.Status) []string {
	var ids []string
	for _, id := range s.order {
		if s.jobs[id].Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// List returns up to limit jobs, newest first. limit <= 0 means all.
func (s *Store) List(limit int) []domain.Job {
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Job, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.jobs[s.order[i]].Clone())
	}
	return out
}

func (s *Store) Len() int { return len(s.order) }

func (s *Store) CountByStatus() map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts
}

// ShardJobCount is the number of jobs ever routed to the shard.
func (s *Store) ShardJobCount(shardID int) int {
	return len(s.shardIndex[shardID])
}

// AddExecution appends to the bounded execution history, evicting the oldest.
func (s *Store) AddExecution(e domain.Execution) {
	rec := e
	s.execs = append(s.execs, &rec)
	s.execByID[rec.ID] = &rec
	if len(s.execs) > s.execLimit {
		delete(s.execByID, s.execs[0].ID)
		copy(s.execs, s.execs[1:])
		s.execs[len(s.execs)-1] = nil
		s.execs = s.execs[:len(s.execs)-1]
	}
}

// UpdateExecution applies fn to a retained execution. Evicted executions
// report false.
func (s *Store) UpdateExecution(id string, fn func(e *domain.Execution)) bool {
	e, ok := s.execByID[id]
	if !ok {
		return false
	}
	fn(e)
	return true
}

func (s *Store) Execution(id string) (domain.Execution, bool) {
	e, ok := s.execByID[id]
	if !ok {
		return domain.Execution{}, false
	}
	return *e, true
}

// Executions returns up to limit executions, newest first.
func (s *Store) Executions(limit int) []domain.Execution {
	n := len(s.execs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Execution, 0, n)
	for i := len(s.execs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.execs[i])
	}
	return out
}
