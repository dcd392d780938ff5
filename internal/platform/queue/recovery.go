package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dontdude/coderoom/internal/domain"
	"github.com/redis/go-redis/v9"
)

// MaxDeliveries is how many times an entry is handed to a worker before it is
// abandoned.
const MaxDeliveries = 3

// Reclaim claims entries that have been pending for longer than minIdle with
// XAUTOCLAIM and returns them for reprocessing by this consumer. Entries that
// have exhausted MaxDeliveries are acknowledged and answered with an error
// result instead.
func (r *RedisQueue) Reclaim(ctx context.Context, minIdle time.Duration) ([]domain.Job, error) {
	var jobs []domain.Job
	start := "0-0"

	for {
		messages, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.stream,
			Group:    r.group,
			MinIdle:  minIdle,
			Start:    start,
			Count:    10,
			Consumer: r.consumer,
		}).Result()
		if err != nil {
			return jobs, fmt.Errorf("xautoclaim failed: %w", err)
		}

		for _, msg := range messages {
			job, ok := r.decode(ctx, msg)
			if !ok {
				continue
			}
			if r.exhausted(ctx, msg.ID) {
				r.abandon(ctx, job)
				continue
			}
			slog.Warn("Reclaimed stale job", "jobID", job.ID, "msgID", msg.ID)
			jobs = append(jobs, job)
		}

		if next == "0-0" || next == "" || len(messages) == 0 {
			return jobs, nil
		}
		start = next
	}
}

// exhausted reports whether the entry has been delivered more than MaxDeliveries times.
func (r *RedisQueue) exhausted(ctx context.Context, rawID string) bool {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Start:  rawID,
		End:    rawID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return false
	}
	return pending[0].RetryCount > MaxDeliveries
}

func (r *RedisQueue) abandon(ctx context.Context, job domain.Job) {
	slog.Error("Abandoning job after repeated failures", "jobID", job.ID, "deliveries", MaxDeliveries)
	result := domain.JobResult{
		JobID: job.ID,
		Error: fmt.Sprintf("execution abandoned after %d attempts", MaxDeliveries),
	}
	if err := r.Broadcast(ctx, result); err != nil {
		slog.Error("Failed to broadcast abandoned job", "jobID", job.ID, "error", err)
	}
	if err := r.Acknowledge(ctx, job.RawID); err != nil {
		slog.Error("Failed to acknowledge abandoned job", "jobID", job.ID, "error", err)
	}
}

// StartRecoveryRoutine reclaims stale entries every interval and hands them to
// handle. It blocks until ctx ends.
func (r *RedisQueue) StartRecoveryRoutine(ctx context.Context, interval, minIdle time.Duration, handle func(domain.Job)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Starting Redis Recovery Routine", "interval", interval, "minIdle", minIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := r.Reclaim(ctx, minIdle)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Recovery routine failed", "error", err)
			}
			if len(jobs) > 0 {
				slog.Info("Recovered stale jobs", "count", len(jobs))
			}
			for _, job := range jobs {
				handle(job)
			}
		}
	}
}
