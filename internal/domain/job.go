package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	Scheduled Status = "scheduled"
	Queued    Status = "queued"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// AllStatuses lists every job status in lifecycle order.
var AllStatuses = []Status{Scheduled, Queued, Running, Completed, Failed}

func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

type transition struct {
	from, to Status
}

var validTransitions = map[transition]bool{
	{Scheduled, Queued}:  true,
	{Queued, Running}:    true,
	{Running, Completed}: true,
	{Running, Failed}:    true,
	// retry after a failed attempt, or lease reclaimed
	{Running, Scheduled}: true,
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	return validTransitions[transition{from, to}]
}

type Job struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	Name           string          `json:"name"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	RunAt          time.Time       `json:"runAt"`
	ShardID        int             `json:"shardId"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	FailureRate    float64         `json:"failureRate"`
	WorkerID       string          `json:"workerId,omitempty"`
	ExecutionID    string          `json:"executionId,omitempty"`
	LeaseExpiresAt *time.Time      `json:"leaseExpiresAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// ClearLease drops the worker claim on the job.
func (j *Job) ClearLease() {
	j.WorkerID = ""
	j.LeaseExpiresAt = nil
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	c.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
