package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/store"
)

// Class is the error taxonomy driving retry decisions. Classification
// happens once, centrally; handlers never implement their own retries.
type Class string

const (
	ClassNotFound   Class = "not_found"
	ClassPermission Class = "permission"
	ClassValidation Class = "validation"
	ClassOverlap    Class = "overlap"
	ClassTransient  Class = "transient"
	ClassFatal      Class = "fatal"
)

// Classify maps an error onto the taxonomy.
func Classify(err error) Class {
	var overlapErr *reconcile.OverlapError
	switch {
	case errors.As(err, &overlapErr):
		return ClassOverlap
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, reconcile.ErrPermission):
		return ClassPermission
	case errors.Is(err, store.ErrValidation):
		return ClassValidation
	case errors.Is(err, providers.ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassFatal
	}
}

// Retryable reports whether a class is worth another attempt.
func (c Class) Retryable() bool {
	return c == ClassTransient
}

// RetryPolicy controls backoff scheduling for transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  30 * time.Second,
		MaxDelay:   time.Hour,
	}
}

// Backoff returns the exponential delay before the given attempt
// (0-based retry count).
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Lifecycle is one running job's contract with the store: progress,
// completion, classified failure, cancellation sentinel.
type Lifecycle struct {
	store  *store.Store
	policy RetryPolicy
	job    *store.BackgroundJob
	logger *slog.Logger
}

// NewLifecycle binds a claimed job to its lifecycle operations.
func NewLifecycle(st *store.Store, policy RetryPolicy, job *store.BackgroundJob, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: st, policy: policy, job: job, logger: logger}
}

// UpdateProgress records progress and bumps the heartbeat. Percent is
// informative; it is not required to increase monotonically.
func (l *Lifecycle) UpdateProgress(ctx context.Context, percent int, stage, details string) error {
	return l.store.UpdateJobProgress(ctx, l.job.ID, percent, stage, details)
}

// MarkComplete sets terminal success with the handler's output.
func (l *Lifecycle) MarkComplete(ctx context.Context, output any) error {
	var data datatypes.JSON
	if output != nil {
		encoded, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("failed to encode job output: %w", err)
		}
		data = datatypes.JSON(encoded)
	}
	return l.store.CompleteJob(ctx, l.job.ID, data)
}

// MarkFailed classifies the error and either schedules a retry with
// exponential backoff or marks the job terminally failed.
func (l *Lifecycle) MarkFailed(ctx context.Context, jobErr error) error {
	class := Classify(jobErr)
	msg := fmt.Sprintf("[%s] %v", class, jobErr)

	if class.Retryable() && l.job.RetryCount < l.policy.MaxRetries {
		retryAt := time.Now().UTC().Add(l.policy.Backoff(l.job.RetryCount))
		l.logger.Warn("job failed, retry scheduled",
			"job_id", l.job.ID,
			"class", class,
			"retry_count", l.job.RetryCount+1,
			"retry_at", retryAt,
			"error", jobErr)
		return l.store.RescheduleJob(ctx, l.job.ID, msg, retryAt)
	}

	l.logger.Error("job failed terminally",
		"job_id", l.job.ID,
		"class", class,
		"retry_count", l.job.RetryCount,
		"error", jobErr)
	return l.store.FailJob(ctx, l.job.ID, msg)
}

// Cancelled reads the cancellation sentinel. Handlers poll it between
// chunks/engines when they are not already bound to the job context.
func (l *Lifecycle) Cancelled(ctx context.Context) (bool, error) {
	return l.store.JobCancelRequested(ctx, l.job.ID)
}
