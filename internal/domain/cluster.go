package domain

import "time"

// Node is a logical scheduler node kept alive by heartbeats.
type Node struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Alive reports whether the node lease is still valid at now.
func (n Node) Alive(now time.Time) bool {
	return n.ExpiresAt.After(now)
}

type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	// ExecExpired marks an execution whose lease was reclaimed before it reported.
	ExecExpired ExecutionStatus = "expired"
)

// Execution records one dispatch attempt of a job.
type Execution struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId"`
	WorkerID  string          `json:"workerId"`
	Status    ExecutionStatus `json:"status"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
}

type EventType string

const (
	EventJobCreated      EventType = "job.created"
	EventJobQueued       EventType = "job.queued"
	EventJobRunning      EventType = "job.running"
	EventJobCompleted    EventType = "job.completed"
	EventJobFailed       EventType = "job.failed"
	EventRetryScheduled  EventType = "job.retry.scheduled"
	EventLeaseExpired    EventType = "job.lease.expired"
	EventCompletionStale EventType = "job.completion.stale"
	EventNodeHeartbeat   EventType = "node.heartbeat"
	EventLeaderChanged   EventType = "leader.changed"
	EventPaused          EventType = "controls.paused"
	EventResumed         EventType = "controls.resumed"
	EventSeedCompleted   EventType = "seed.completed"
)

// Event is an observational lifecycle record. Scheduling never reads events.
type Event struct {
	ID      string         `json:"id"`
	Type    EventType      `json:"type"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}
