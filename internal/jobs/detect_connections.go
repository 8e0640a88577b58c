package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stitch-works/stitch/internal/connections"
	"github.com/stitch-works/stitch/internal/store"
)

// DetectConnectionsInput is the payload for KindDetectConnections.
type DetectConnectionsInput struct {
	DocumentID  string           `json:"document_id"`
	Mode        connections.Mode `json:"mode"`
	BackupFirst bool             `json:"backup_first"`
	ChunkIDs    []string         `json:"chunk_ids,omitempty"`
	MinStrength float64          `json:"min_strength,omitempty"`
	MaxPairs    int              `json:"max_pairs,omitempty"`
}

// runDetectConnections executes one detection pass. Engine results are
// all-or-nothing: any engine failure surfaces here and nothing was
// persisted, so a retry re-runs the pass cleanly.
func (w *Worker) runDetectConnections(ctx context.Context, lc *Lifecycle, job *store.BackgroundJob) (any, error) {
	var input DetectConnectionsInput
	if err := json.Unmarshal(job.InputData, &input); err != nil {
		return nil, fmt.Errorf("%w: bad detection input: %v", store.ErrValidation, err)
	}
	if input.DocumentID == "" {
		return nil, fmt.Errorf("%w: detection input requires document_id", store.ErrValidation)
	}

	progress := func(percent int, stage, details string) {
		// Heartbeat-bearing; a failed progress write is not fatal to the
		// pass itself.
		_ = lc.UpdateProgress(ctx, percent, stage, details)
	}

	report, err := w.deps.Connections.Detect(ctx, input.DocumentID, connections.Options{
		Mode:        input.Mode,
		BackupFirst: input.BackupFirst,
		ChunkIDs:    input.ChunkIDs,
		MinStrength: input.MinStrength,
		MaxPairs:    input.MaxPairs,
	}, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	return report, nil
}
