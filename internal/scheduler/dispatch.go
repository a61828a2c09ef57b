package scheduler

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// dispatch assigns up to MaxDispatchPerTick queued jobs to workers under a
// lease and returns the executions to start.
func (s *Scheduler) dispatch(now time.Time) []Launch {
	var launches []Launch
	for _, id := range s.store.IDsByStatus(domain.Queued) {
		if len(launches) >= s.cfg.MaxDispatchPerTick {
			break
		}
		job, _ := s.store.Get(id)
		worker, ok := s.nodes.AssignWorker(job.ShardID, now)
		if !ok {
			// no live node; the job waits in queued
			continue
		}

		exec := domain.Execution{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			WorkerID:  worker.ID,
			Status:    domain.ExecRunning,
			StartedAt: now,
		}
		s.store.AddExecution(exec)

		lease := now.Add(s.cfg.Lease)
		started := now
		s.transition(job.ID, domain.Running, func(j *domain.Job) {
			j.WorkerID = worker.ID
			j.ExecutionID = exec.ID
			j.StartedAt = &started
			j.LeaseExpiresAt = &lease
			j.UpdatedAt = now
		})
		s.logEvent(domain.EventJobRunning, map[string]any{
			"jobId":       job.ID,
			"workerId":    worker.ID,
			"shard":       job.ShardID,
			"executionId": exec.ID,
			"attempt":     job.Attempts,
		}, now)
		s.logger.Debug("job dispatched",
			zap.String("job_id", job.ID),
			zap.String("worker_id", worker.ID),
			zap.Int("attempt", job.Attempts),
		)

		launches = append(launches, Launch{
			JobID:       job.ID,
			ExecutionID: exec.ID,
			WorkerID:    worker.ID,
			ShardID:     job.ShardID,
			Attempt:     job.Attempts,
			FailureRate: job.FailureRate,
		})
	}
	return launches
}

// complete applies an execution result. Results for executions that no longer
// own their job (lease reclaimed, job re-dispatched) are ignored.
func (s *Scheduler) complete(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	job, ok := s.store.Get(res.JobID)
	if !ok || job.Status != domain.Running || job.ExecutionID != res.ExecutionID {
		s.logger.Debug("ignoring stale completion",
			zap.String("job_id", res.JobID),
			zap.String("execution_id", res.ExecutionID),
		)
		s.logEvent(domain.EventCompletionStale, map[string]any{
			"jobId":       res.JobID,
			"executionId": res.ExecutionID,
		}, now)
		return
	}

	if !res.Failed {
		s.transition(job.ID, domain.Completed, func(j *domain.Job) {
			j.CompletedAt = &now
			j.UpdatedAt = now
			j.ClearLease()
		})
		s.endExecution(res.ExecutionID, domain.ExecCompleted, now)
		s.logEvent(domain.EventJobCompleted, map[string]any{
			"jobId":    job.ID,
			"workerId": job.WorkerID,
		}, now)
		return
	}

	s.endExecution(res.ExecutionID, domain.ExecFailed, now)
	s.logEvent(domain.EventJobFailed, map[string]any{
		"jobId":    job.ID,
		"workerId": job.WorkerID,
		"attempt":  job.Attempts,
		"reason":   res.Reason,
	}, now)

	if job.Attempts < job.MaxAttempts {
		s.retry(job, now.Add(s.backoff.Delay(job.Attempts)), now)
		return
	}

	s.transition(job.ID, domain.Failed, func(j *domain.Job) {
		j.CompletedAt = &now
		j.UpdatedAt = now
		j.ClearLease()
	})
	s.logger.Info("job failed permanently",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
	)
}

// retry puts a running job back on the wheel for its next attempt.
func (s *Scheduler) retry(job domain.Job, runAt, now time.Time) {
	attempts := job.Attempts + 1
	s.transition(job.ID, domain.Scheduled, func(j *domain.Job) {
		j.Attempts = attempts
		j.RunAt = runAt
		j.UpdatedAt = now
		j.ClearLease()
	})
	s.wheel.Schedule(job.ID, runAt, attempts, now)
	s.logEvent(domain.EventRetryScheduled, map[string]any{
		"jobId":   job.ID,
		"attempt": attempts,
		"runAt":   runAt.UnixMilli(),
	}, now)
}

func (s *Scheduler) endExecution(id string, status domain.ExecutionStatus, now time.Time) {
	s.store.UpdateExecution(id, func(e *domain.Execution) {
		e.Status = status
		e.EndedAt = &now
	})
}
