package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// reclaimLeases recycles running jobs whose worker lease has lapsed. This is
// what keeps a lost worker from pinning a job in running forever.
func (s *Scheduler) reclaimLeases(now time.Time) {
	for _, id := range s.store.IDsByStatus(domain.Running) {
		job, _ := s.store.Get(id)
		if job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.Before(now) {
			continue
		}

		s.logEvent(domain.EventLeaseExpired, map[string]any{
			"jobId":       job.ID,
			"workerId":    job.WorkerID,
			"executionId": job.ExecutionID,
		}, now)
		s.endExecution(job.ExecutionID, domain.ExecExpired, now)
		s.logger.Debug("lease expired",
			zap.String("job_id", job.ID),
			zap.String("worker_id", job.WorkerID),
		)

		if job.Attempts < job.MaxAttempts {
			s.retry(job, now.Add(s.cfg.LeaseRetryDelay), now)
			continue
		}

		// attempts exhausted: fail rather than exceed maxAttempts
		s.transition(job.ID, domain.Failed, func(j *domain.Job) {
			j.CompletedAt = &now
			j.UpdatedAt = now
			j.ClearLease()
		})
		s.logEvent(domain.EventJobFailed, map[string]any{
			"jobId":    job.ID,
			"workerId": job.WorkerID,
			"attempt":  job.Attempts,
			"reason":   "lease_expired",
		}, now)
	}
}
