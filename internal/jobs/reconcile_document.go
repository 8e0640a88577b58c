package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/store"
)

// ReconcileDocumentInput is the payload for KindReconcileDocument.
type ReconcileDocumentInput struct {
	DocumentID string `json:"document_id"`
	DryRun     bool   `json:"dry_run"`

	// SkipVerify drops the post-pass oracle run. The oracle is cheap
	// and is the system's correctness gate, so it defaults to on.
	SkipVerify bool `json:"skip_verify,omitempty"`
}

// ReconcileDocumentOutput is the payload recorded on completion.
type ReconcileDocumentOutput struct {
	Summary *reconcile.Summary      `json:"summary"`
	Verify  *reconcile.VerifyReport `json:"verify,omitempty"`
}

// runReconcileDocument is re-runnable: a reclaimed job recomputes all
// offsets from scratch and converges to the same result.
func (w *Worker) runReconcileDocument(ctx context.Context, lc *Lifecycle, job *store.BackgroundJob) (any, error) {
	var input ReconcileDocumentInput
	if err := json.Unmarshal(job.InputData, &input); err != nil {
		return nil, fmt.Errorf("%w: bad reconcile input: %v", store.ErrValidation, err)
	}
	if input.DocumentID == "" {
		return nil, fmt.Errorf("%w: reconcile input requires document_id", store.ErrValidation)
	}

	if err := lc.UpdateProgress(ctx, 10, "reconciling", "matching chunk offsets"); err != nil {
		return nil, err
	}

	summary, err := w.deps.Reconciler.Reconcile(ctx, input.DocumentID, input.DryRun)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	output := &ReconcileDocumentOutput{Summary: summary}
	if !input.SkipVerify && !input.DryRun {
		if err := lc.UpdateProgress(ctx, 80, "verifying", "running content-invariant check"); err != nil {
			return nil, err
		}
		report, err := w.deps.Reconciler.Verify(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, ErrCancelled
			}
			return nil, err
		}
		output.Verify = report
	}

	return output, nil
}
