package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/stitch-works/stitch/internal/store"
)

// ValidatePosition records user confirmation that a chunk's offsets
// are correct as stored. No history entry is written.
func (s *Service) ValidatePosition(ctx context.Context, chunkID string) error {
	return s.store.MarkChunkValidated(ctx, chunkID)
}

// appendCorrection adds an entry to a chunk's correction log, dropping
// the oldest entries past the bound.
func appendCorrection(history []store.CorrectionEntry, entry store.CorrectionEntry) []store.CorrectionEntry {
	history = append(history, entry)
	if len(history) > store.MaxCorrectionHistory {
		history = history[len(history)-store.MaxCorrectionHistory:]
	}
	return history
}

// UpdateOffsets applies a manual offset correction to one chunk.
//
// The correction is rejected when the range is malformed (end <= start),
// identical to the stored range (no-op), or overlapping either
// immediate neighbor — overlap failures return *OverlapError so the
// caller sees the exact conflicting ranges. An accepted correction
// rewrites content to the markdown slice, sets both the validated and
// corrected flags, and appends to the bounded correction history.
func (s *Service) UpdateOffsets(ctx context.Context, chunkID, documentID string, start, end int, reason string) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: offsets [%d,%d) are malformed", store.ErrValidation, start, end)
	}

	chunk, err := s.store.GetChunk(ctx, chunkID)
	if err != nil {
		return err
	}
	if chunk.DocumentID != documentID {
		return fmt.Errorf("%w: chunk %s is not part of document %s", ErrPermission, chunkID, documentID)
	}
	if chunk.StartOffset == start && chunk.EndOffset == end {
		return fmt.Errorf("%w: offsets are unchanged", store.ErrValidation)
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	markdown, err := s.loadMarkdown(ctx, doc)
	if err != nil {
		return err
	}
	if end > len(markdown) {
		return fmt.Errorf("%w: end offset %d exceeds document length %d", store.ErrValidation, end, len(markdown))
	}

	prev, next, err := s.store.ChunkNeighbors(ctx, documentID, chunk.ChunkIndex)
	if err != nil {
		return err
	}
	if conflicts := DetectOverlaps(start, end, prev, next); len(conflicts) > 0 {
		return &OverlapError{Conflicts: conflicts}
	}

	history, err := store.DecodeCorrectionHistory(chunk)
	if err != nil {
		return err
	}
	history = appendCorrection(history, store.CorrectionEntry{
		Timestamp: time.Now().UTC(),
		OldStart:  chunk.StartOffset,
		OldEnd:    chunk.EndOffset,
		NewStart:  start,
		NewEnd:    end,
		Reason:    reason,
	})

	content := markdown[start:end]
	if err := s.store.UpdateChunkCorrection(ctx, chunkID, start, end, content, history); err != nil {
		return err
	}

	s.logger.Info("chunk offsets corrected",
		"chunk_id", chunkID,
		"document_id", documentID,
		"start", start, "end", end,
		"reason", reason)
	return nil
}
