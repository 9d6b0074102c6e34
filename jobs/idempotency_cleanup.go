package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wareline/wareline/internal/jobs"
	"github.com/wareline/wareline/internal/shared"
)

// IdempotencyCleanupJob prunes processed idempotency keys past retention.
type IdempotencyCleanupJob struct {
	Store   *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes one cleanup pass.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeHours <= 0 {
		payload.MaxAgeHours = 72
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	err := j.Store.Cleanup(ctx, time.Duration(payload.MaxAgeHours)*time.Hour)
	if err != nil {
		j.logger().Error("idempotency cleanup failed", slog.String("run_id", payload.RunID), slog.Any("error", err))
	} else {
		j.logger().Info("idempotency cleanup completed",
			slog.String("run_id", payload.RunID),
			slog.Int("max_age_hours", payload.MaxAgeHours),
		)
	}
	return tracker.End(err)
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
