package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stitch-works/stitch/internal/connections"
	"github.com/stitch-works/stitch/internal/ingest"
	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/store"
)

// ErrCancelled is the sentinel a handler returns when it observed the
// cancellation flag. A cancelled job is deleted, not failed.
var ErrCancelled = errors.New("job cancelled")

// Config tunes the polling worker.
type Config struct {
	// PollInterval is the sleep between empty claim attempts.
	PollInterval time.Duration

	// StaleAfter is how long a processing job may go without a
	// heartbeat before any worker may reclaim it.
	StaleAfter time.Duration

	// CancelCheckInterval is how often a running job's cancellation
	// sentinel is polled.
	CancelCheckInterval time.Duration

	Retry RetryPolicy
}

// DefaultConfig returns the standard worker tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval:        5 * time.Second,
		StaleAfter:          30 * time.Minute,
		CancelCheckInterval: 2 * time.Second,
		Retry:               DefaultRetryPolicy(),
	}
}

// Deps are the services handlers execute against.
type Deps struct {
	Store       *store.Store
	Reconciler  *reconcile.Service
	Connections *connections.Manager
	Ingester    *ingest.Service
}

// Worker claims and runs jobs one at a time. Multiple worker
// processes may run against the same job table; the store's
// conditional claim resolves races.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// NewWorker wires a polling worker.
func NewWorker(deps Deps, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	if cfg.CancelCheckInterval <= 0 {
		cfg.CancelCheckInterval = DefaultConfig().CancelCheckInterval
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run polls for work until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"poll_interval", w.cfg.PollInterval,
		"stale_after", w.cfg.StaleAfter)

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return nil
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("claim attempt failed", "error", err)
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce claims and runs at most one job. Returns whether a job was
// claimed; a lost claim race is not an error.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	job, err := w.deps.Store.ClaimNextJob(ctx, now, now.Add(-w.cfg.StaleAfter))
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.runJob(ctx, job)
	return true, nil
}

// runJob executes one claimed job through its lifecycle.
func (w *Worker) runJob(ctx context.Context, job *store.BackgroundJob) {
	logger := w.logger.With("job_id", job.ID, "job_type", job.JobType)
	lc := NewLifecycle(w.deps.Store, w.cfg.Retry, job, logger)

	kind, err := ParseKind(job.JobType)
	if err != nil {
		// Unknown kinds are terminal: retrying cannot fix them.
		if ferr := w.deps.Store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			logger.Error("failed to mark unknown-kind job failed", "error", ferr)
		}
		return
	}

	logger.Info("job started", "retry_count", job.RetryCount)

	// The cancellation watcher folds the sentinel into the job context,
	// so handlers observe cancellation at their existing ctx checks
	// between chunks/engines.
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchDone := make(chan struct{})
	go w.watchCancellation(jobCtx, cancel, job.ID, watchDone)

	output, runErr := w.dispatch(jobCtx, kind, lc, job)
	cancel()
	<-watchDone

	cancelled, cErr := w.deps.Store.JobCancelRequested(ctx, job.ID)
	if cErr != nil && !errors.Is(cErr, store.ErrNotFound) {
		logger.Error("failed to read cancellation sentinel", "error", cErr)
	}
	if cancelled || errors.Is(runErr, ErrCancelled) {
		logger.Info("job cancelled, deleting record")
		if derr := w.deps.Store.DeleteJob(ctx, job.ID); derr != nil && !errors.Is(derr, store.ErrNotFound) {
			logger.Error("failed to delete cancelled job", "error", derr)
		}
		return
	}

	if runErr != nil {
		if ferr := lc.MarkFailed(ctx, runErr); ferr != nil {
			logger.Error("failed to record job failure", "error", ferr)
		}
		return
	}

	if cerr := lc.MarkComplete(ctx, output); cerr != nil {
		logger.Error("failed to mark job complete", "error", cerr)
		return
	}
	logger.Info("job completed")
}

// dispatch is the exhaustive kind switch. Every Kind constant must
// have a case here.
func (w *Worker) dispatch(ctx context.Context, kind Kind, lc *Lifecycle, job *store.BackgroundJob) (any, error) {
	switch kind {
	case KindIngestDocument:
		return w.runIngestDocument(ctx, lc, job)
	case KindReconcileDocument:
		return w.runReconcileDocument(ctx, lc, job)
	case KindDetectConnections:
		return w.runDetectConnections(ctx, lc, job)
	default:
		return nil, fmt.Errorf("no handler for job kind %q", kind)
	}
}

// watchCancellation polls the sentinel and cancels the job context
// when it trips.
func (w *Worker) watchCancellation(ctx context.Context, cancel context.CancelFunc, jobID string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.cfg.CancelCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := w.deps.Store.JobCancelRequested(ctx, jobID)
			if err != nil {
				continue
			}
			if cancelled {
				cancel()
				return
			}
		}
	}
}
