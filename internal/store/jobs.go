package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateJob inserts a pending background job.
func (s *Store) CreateJob(ctx context.Context, jobType string, input datatypes.JSON) (*BackgroundJob, error) {
	if jobType == "" {
		return nil, fmt.Errorf("%w: job requires a type", ErrValidation)
	}

	job := &BackgroundJob{
		ID:        uuid.NewString(),
		JobType:   jobType,
		Status:    JobPending,
		InputData: input,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("job created", "id", job.ID, "type", jobType)
	return job, nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*BackgroundJob, error) {
	var job BackgroundJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &job, nil
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Status  JobStatus
	JobType string
	Limit   int
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*BackgroundJob, error) {
	q := s.db.WithContext(ctx).Model(&BackgroundJob{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.JobType != "" {
		q = q.Where("job_type = ?", filter.JobType)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var jobs []*BackgroundJob
	if err := q.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNextJob atomically claims the oldest runnable job: pending with
// its retry time reached, or processing with a heartbeat older than
// staleBefore (a crashed worker's leftover). Claiming is a race between
// worker processes; the conditional update resolves it, and a lost race
// returns (nil, nil) so the caller just polls again.
func (s *Store) ClaimNextJob(ctx context.Context, now time.Time, staleBefore time.Time) (*BackgroundJob, error) {
	runnable := s.db.WithContext(ctx).Model(&BackgroundJob{}).
		Where(
			"(status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)) OR (status = ? AND last_heartbeat < ?)",
			JobPending, now, JobProcessing, staleBefore,
		)

	var candidate BackgroundJob
	err := runnable.Order("created_at ASC").First(&candidate).Error
	if err != nil {
		if translateErr(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	// Conditional update: succeeds only if the job is still claimable.
	res := s.db.WithContext(ctx).Model(&BackgroundJob{}).
		Where("id = ?", candidate.ID).
		Where(
			"(status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)) OR (status = ? AND last_heartbeat < ?)",
			JobPending, now, JobProcessing, staleBefore,
		).
		Updates(map[string]any{
			"status":         JobProcessing,
			"started_at":     now,
			"last_heartbeat": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to another worker.
		return nil, nil
	}

	return s.GetJob(ctx, candidate.ID)
}

// UpdateJobProgress records progress and bumps the heartbeat. Percent
// is informative, not required to be monotonically increasing.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, percent int, stage, details string) error {
	res := s.db.WithContext(ctx).Model(&BackgroundJob{}).Where("id = ?", id).
		Updates(map[string]any{
			"progress_percent": percent,
			"progress_stage":   stage,
			"progress_details": details,
			"last_heartbeat":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteJob marks a job terminally successful.
func (s *Store) CompleteJob(ctx context.Context, id string, output datatypes.JSON) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&BackgroundJob{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":           JobCompleted,
			"output_data":      output,
			"progress_percent": 100,
			"completed_at":     now,
			"last_heartbeat":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RescheduleJob puts a failed job back in the pending pool with a
// retry time. Used for transient failures.
func (s *Store) RescheduleJob(ctx context.Context, id string, errMsg string, retryAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&BackgroundJob{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":        JobPending,
			"last_error":    errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"next_retry_at": retryAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob marks a job terminally failed.
func (s *Store) FailJob(ctx context.Context, id string, errMsg string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&BackgroundJob{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":       JobFailed,
			"last_error":   errMsg,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RequestJobCancel sets the cancellation sentinel. Handlers poll it
// between chunks/engines and delete the job when they observe it.
func (s *Store) RequestJobCancel(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&BackgroundJob{}).Where("id = ?", id).
		Update("cancel_requested", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// JobCancelRequested reads the cancellation sentinel.
func (s *Store) JobCancelRequested(ctx context.Context, id string) (bool, error) {
	var job BackgroundJob
	err := s.db.WithContext(ctx).Select("cancel_requested").First(&job, "id = ?", id).Error
	if err != nil {
		return false, translateErr(err)
	}
	return job.CancelRequested, nil
}

// DeleteJob removes a job record. Cancellation is not an error, so a
// cancelled job's record is deleted rather than marked failed.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&BackgroundJob{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
