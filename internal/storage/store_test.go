package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/wheelsched/internal/domain"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func insert(s *Store, tenant string, shardID int, at time.Time) domain.Job {
	return s.InsertJob(InsertJobParams{
		TenantID:    tenant,
		Name:        "x",
		Payload:     json.RawMessage(`{}`),
		RunAt:       at.Add(time.Second),
		ShardID:     shardID,
		MaxAttempts: 3,
		FailureRate: 0.1,
		Now:         at,
	})
}

func TestInsertJob_Defaults(t *testing.T) {
	s := New(10)
	j := insert(s, "tenant-1", 0, t0)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, domain.Scheduled, j.Status)
	assert.Equal(t, 1, j.Attempts)
	assert.Equal(t, 3, j.MaxAttempts)
	assert.Equal(t, t0, j.CreatedAt)
	assert.Nil(t, j.LeaseExpiresAt)
	assert.Equal(t, 1, s.Len())
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New(10)
	j := insert(s, "tenant-1", 0, t0)

	got, ok := s.Get(j.ID)
	require.True(t, ok)
	got.Status = domain.Failed

	again, _ := s.Get(j.ID)
	assert.Equal(t, domain.Scheduled, again.Status)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestUpdate_MutatesInPlace(t *testing.T) {
	s := New(10)
	j := insert(s, "tenant-1", 0, t0)

	ok := s.Update(j.ID, func(j *domain.Job) { j.Status = domain.Queued })
	require.True(t, ok)
	got, _ := s.Get(j.ID)
	assert.Equal(t, domain.Queued, got.Status)

	assert.False(t, s.Update("missing", func(*domain.Job) {}))
}

func TestTransition(t *testing.T) {
	s := New(10)
	j := insert(s, "tenant-1", 0, t0)

	require.NoError(t, s.Transition(j.ID, domain.Queued, func(j *domain.Job) { j.UpdatedAt = t0.Add(time.Second) }))
	got, _ := s.Get(j.ID)
	assert.Equal(t, domain.Queued, got.Status)
	assert.Equal(t, t0.Add(time.Second), got.UpdatedAt)

	called := false
	err := s.Transition(j.ID, domain.Completed, func(*domain.Job) { called = true })
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.False(t, called)
	got, _ = s.Get(j.ID)
	assert.Equal(t, domain.Queued, got.Status)

	assert.ErrorIs(t, s.Transition("missing", domain.Queued, nil), domain.ErrJobNotFound)
}

func TestIDsByStatus_CreationOrder(t *testing.T) {
	s := New(10)
	a := insert(s, "t", 0, t0)
	b := insert(s, "t", 0, t0.Add(time.Second))
	c := insert(s, "t", 0, t0.Add(2*time.Second))
	s.Update(b.ID, func(j *domain.Job) { j.Status = domain.Queued })

	assert.Equal(t, []string{a.ID, c.ID}, s.IDsByStatus(domain.Scheduled))
	assert.Equal(t, []string{b.ID}, s.IDsByStatus(domain.Queued))
	assert.Empty(t, s.IDsByStatus(domain.Running))
}

func TestList_NewestFirst(t *testing.T) {
	s := New(10)
	a := insert(s, "t", 0, t0)
	b := insert(s, "t", 0, t0.Add(time.Second))
	c := insert(s, "t", 0, t0.Add(2*time.Second))

	all := s.List(0)
	require.Len(t, all, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	two := s.List(2)
	require.Len(t, two, 2)
	assert.Equal(t, c.ID, two[0].ID)
}

func TestCountsAndShardIndex(t *testing.T) {
	s := New(10)
	insert(s, "a", 0, t0)
	insert(s, "b", 1, t0)
	j := insert(s, "c", 1, t0)
	s.Update(j.ID, func(j *domain.Job) { j.Status = domain.Completed })

	counts := s.CountByStatus()
	assert.Equal(t, 2, counts[domain.Scheduled])
	assert.Equal(t, 1, counts[domain.Completed])
	assert.Equal(t, 1, s.ShardJobCount(0))
	assert.Equal(t, 2, s.ShardJobCount(1))
	assert.Equal(t, 0, s.ShardJobCount(2))
}

func TestExecutions_BoundedNewestFirst(t *testing.T) {
	s := New(3)
	for i, id := range []string{"e1", "e2", "e3", "e4"} {
		s.AddExecution(domain.Execution{ID: id, JobID: "j", Status: domain.ExecRunning, StartedAt: t0.Add(time.Duration(i) * time.Second)})
	}

	got := s.Executions(0)
	require.Len(t, got, 3)
	assert.Equal(t, "e4", got[0].ID)
	assert.Equal(t, "e2", got[2].ID)

	_, ok := s.Execution("e1")
	assert.False(t, ok, "oldest evicted")
	assert.False(t, s.UpdateExecution("e1", func(*domain.Execution) {}))

	require.True(t, s.UpdateExecution("e3", func(e *domain.Execution) { e.Status = domain.ExecCompleted }))
	e3, _ := s.Execution("e3")
	assert.Equal(t, domain.ExecCompleted, e3.Status)

	assert.Len(t, s.Executions(1), 1)
}

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestArchive_Write(t *testing.T) {
	db := &fakeExecer{}
	a := NewArchive(db)
	evt := domain.Event{
		ID:      "6f1c1f3e-8a7b-4a43-9a59-2b1f3cf40d2e",
		Type:    domain.EventJobRunning,
		Payload: map[string]any{"jobId": "0d6b1c3a-4b7e-4f58-8a8e-6f3c2d1e0b9a", "workerId": "a"},
		At:      t0,
	}

	require.NoError(t, a.Write(context.Background(), evt))
	assert.Contains(t, db.sql, "insert into job_events")
	require.Len(t, db.args, 5)
	assert.Equal(t, evt.ID, db.args[0])
	assert.Equal(t, "job.running", db.args[1])
	jobID := db.args[2].(*string)
	require.NotNil(t, jobID)
	assert.Equal(t, "0d6b1c3a-4b7e-4f58-8a8e-6f3c2d1e0b9a", *jobID)
	assert.JSONEq(t, `{"jobId":"0d6b1c3a-4b7e-4f58-8a8e-6f3c2d1e0b9a","workerId":"a"}`, db.args[3].(string))
	assert.Equal(t, t0, db.args[4])
}

func TestArchive_WriteWithoutJob(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, NewArchive(db).Write(context.Background(), domain.Event{ID: "e", Type: domain.EventPaused, Payload: map[string]any{}}))
	assert.Nil(t, db.args[2].(*string))
}

func TestArchive_WrapsErrors(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	err := NewArchive(db).Write(context.Background(), domain.Event{ID: "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive event e")
}
