package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/ingest"
	"github.com/stitch-works/stitch/internal/store"
)

// IngestDocumentInput is the payload for KindIngestDocument. Paths
// refer to files on the worker's filesystem.
type IngestDocumentInput struct {
	UserID        string `json:"user_id"`
	Title         string `json:"title,omitempty"`
	MarkdownPath  string `json:"markdown_path"`
	ChunksPath    string `json:"chunks_path"`
	SourcePDFPath string `json:"source_pdf_path,omitempty"`

	// SkipReconcile suppresses the follow-up reconcile job.
	SkipReconcile bool `json:"skip_reconcile,omitempty"`
}

// IngestDocumentOutput is the payload recorded on completion.
type IngestDocumentOutput struct {
	Result         *ingest.Result `json:"result"`
	ReconcileJobID string         `json:"reconcile_job_id,omitempty"`
}

// runIngestDocument persists one document and, unless told otherwise,
// chains a reconcile job so offsets become authoritative.
func (w *Worker) runIngestDocument(ctx context.Context, lc *Lifecycle, job *store.BackgroundJob) (any, error) {
	var input IngestDocumentInput
	if err := json.Unmarshal(job.InputData, &input); err != nil {
		return nil, fmt.Errorf("%w: bad ingest input: %v", store.ErrValidation, err)
	}
	if input.MarkdownPath == "" || input.ChunksPath == "" {
		return nil, fmt.Errorf("%w: ingest input requires markdown_path and chunks_path", store.ErrValidation)
	}

	if err := lc.UpdateProgress(ctx, 10, "ingesting", "persisting document and chunks"); err != nil {
		return nil, err
	}

	result, err := w.deps.Ingester.Ingest(ctx, ingest.Request{
		UserID:        input.UserID,
		Title:         input.Title,
		MarkdownPath:  input.MarkdownPath,
		ChunksPath:    input.ChunksPath,
		SourcePDFPath: input.SourcePDFPath,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	output := &IngestDocumentOutput{Result: result}
	if !input.SkipReconcile {
		followInput, err := json.Marshal(ReconcileDocumentInput{DocumentID: result.DocumentID})
		if err != nil {
			return nil, fmt.Errorf("failed to encode reconcile input: %w", err)
		}
		follow, err := w.deps.Store.CreateJob(ctx, string(KindReconcileDocument), datatypes.JSON(followInput))
		if err != nil {
			return nil, err
		}
		output.ReconcileJobID = follow.ID
	}

	return output, nil
}
