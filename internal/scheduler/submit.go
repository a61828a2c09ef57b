package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
	"github.com/SirClappington/wheelsched/internal/storage"
)

type SubmitRequest struct {
	TenantID    string
	Name        string
	RunAt       time.Time
	Payload     json.RawMessage
	MaxAttempts int
	// FailureRate overrides the configured default when set.
	FailureRate *float64
}

func (r SubmitRequest) validate() error {
	v := &domain.ValidationError{}
	if strings.TrimSpace(r.TenantID) == "" {
		v.Add("tenantId", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		v.Add("name", "is required")
	}
	if r.RunAt.IsZero() {
		v.Add("runAt", "is required")
	}
	if r.MaxAttempts < 0 {
		v.Add("maxAttempts", "must be at least 1")
	}
	if r.FailureRate != nil && (*r.FailureRate < 0 || *r.FailureRate > 1) {
		v.Add("failureRate", "must be between 0 and 1")
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		v.Add("payload", "must be valid JSON")
	}
	if v.HasError() {
		return v
	}
	return nil
}

// SubmitJob validates req, stores the job as scheduled and places it on the
// wheel. A runAt in the past is due on the next tick.
func (s *Scheduler) SubmitJob(req SubmitRequest) (domain.Job, error) {
	if err := req.validate(); err != nil {
		return domain.Job{}, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}
	failureRate := s.cfg.DefaultFailureRate
	if req.FailureRate != nil {
		failureRate = *req.FailureRate
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	sh := s.router.ShardFor(req.TenantID)
	job := s.store.InsertJob(storage.InsertJobParams{
		TenantID:    req.TenantID,
		Name:        req.Name,
		Payload:     payload,
		RunAt:       req.RunAt,
		ShardID:     sh.ID,
		MaxAttempts: maxAttempts,
		FailureRate: failureRate,
		Now:         now,
	})
	s.wheel.Schedule(job.ID, job.RunAt, job.Attempts, now)

	s.logEvent(domain.EventJobCreated, map[string]any{
		"jobId": job.ID,
		"shard": job.ShardID,
		"runAt": job.RunAt.UnixMilli(),
	}, now)
	s.logger.Debug("job submitted",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("shard", sh.Name),
	)
	return job, nil
}

// HeartbeatResult reports the node that was refreshed and the leader after
// the refresh.
type HeartbeatResult struct {
	NodeID   string     `json:"nodeId"`
	LeaderID OptionalID `json:"leaderId"`
}

// Heartbeat registers or refreshes nodeID. An empty id registers a new node
// under a generated id.
func (s *Scheduler) Heartbeat(nodeID string) HeartbeatResult {
	if nodeID == "" {
		nodeID = "node-" + uuid.NewString()[:6]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if _, created := s.nodes.Heartbeat(nodeID, now); created {
		s.logger.Info("node joined", zap.String("node_id", nodeID))
	}
	s.elect(now)
	s.logEvent(domain.EventNodeHeartbeat, map[string]any{"nodeId": nodeID}, now)

	return HeartbeatResult{NodeID: nodeID, LeaderID: OptionalID(s.nodes.Leader())}
}

const (
	defaultSeedCount = 12
	seedName         = "thundering-herd"
	seedFailureRate  = 0.1
	seedMaxAttempts  = 3
)

// SeedDemoJobs submits count jobs spread over three tenants with run times
// 2 to 14 seconds out. Returns the number of jobs created.
func (s *Scheduler) SeedDemoJobs(count int) int {
	if count <= 0 {
		count = defaultSeedCount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for i := 0; i < count; i++ {
		tenant := fmt.Sprintf("tenant-%d", i%3+1)
		runAt := now.Add(2*time.Second + time.Duration(s.rng.Int64N(int64(12*time.Second))))
		payload := json.RawMessage(fmt.Sprintf(`{"index":%d}`, i))

		sh := s.router.ShardFor(tenant)
		job := s.store.InsertJob(storage.InsertJobParams{
			TenantID:    tenant,
			Name:        seedName,
			Payload:     payload,
			RunAt:       runAt,
			ShardID:     sh.ID,
			MaxAttempts: seedMaxAttempts,
			FailureRate: seedFailureRate,
			Now:         now,
		})
		s.wheel.Schedule(job.ID, job.RunAt, job.Attempts, now)
	}

	s.logEvent(domain.EventSeedCompleted, map[string]any{"jobs": count}, now)
	s.logger.Info("seeded demo jobs", zap.Int("count", count))
	return count
}
