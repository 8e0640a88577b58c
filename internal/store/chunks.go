package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stitch-works/stitch/internal/match"
)

// chunkBatchSize keeps insert batches small because Content is large.
const chunkBatchSize = 100

// CreateChunks bulk-inserts one generation of chunks for a document.
func (s *Store) CreateChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.DocumentID == "" {
			return fmt.Errorf("%w: chunk requires a document id", ErrValidation)
		}
		if c.ChunkIndex < 0 {
			return fmt.Errorf("%w: chunk index must be non-negative", ErrValidation)
		}
		if c.Content == "" {
			return fmt.Errorf("%w: chunk %d has empty content", ErrValidation, c.ChunkIndex)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.PositionConfidence == "" {
			c.PositionConfidence = match.ConfidenceFailed
		}
		if c.PositionMethod == "" {
			c.PositionMethod = match.MethodNone
		}
		c.IsCurrent = true
	}

	if err := s.db.WithContext(ctx).CreateInBatches(chunks, chunkBatchSize).Error; err != nil {
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	s.logger.Info("chunks created", "document_id", chunks[0].DocumentID, "count", len(chunks))
	return nil
}

// GetChunk returns a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	var chunk Chunk
	if err := s.db.WithContext(ctx).First(&chunk, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &chunk, nil
}

// ChunksByDocument returns a document's current chunks in index order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	var chunks []*Chunk
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND is_current = ?", documentID, true).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ChunksByIDs returns the current chunks matching the given IDs.
func (s *Store) ChunksByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	var chunks []*Chunk
	if len(ids) == 0 {
		return chunks, nil
	}
	err := s.db.WithContext(ctx).
		Where("id IN ? AND is_current = ?", ids, true).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ChunkNeighbors returns the current chunks immediately before and
// after the given index within a document. Either may be nil at the
// document edges.
func (s *Store) ChunkNeighbors(ctx context.Context, documentID string, chunkIndex int) (prev, next *Chunk, err error) {
	var p Chunk
	e := s.db.WithContext(ctx).
		Where("document_id = ? AND is_current = ? AND chunk_index < ?", documentID, true, chunkIndex).
		Order("chunk_index DESC").
		First(&p).Error
	switch {
	case e == nil:
		prev = &p
	case translateErr(e) != ErrNotFound:
		return nil, nil, e
	}

	var n Chunk
	e = s.db.WithContext(ctx).
		Where("document_id = ? AND is_current = ? AND chunk_index > ?", documentID, true, chunkIndex).
		Order("chunk_index ASC").
		First(&n).Error
	switch {
	case e == nil:
		next = &n
	case translateErr(e) != ErrNotFound:
		return nil, nil, e
	}

	return prev, next, nil
}

// ChunkPosition is the offset-bearing subset of a chunk row written by
// reconciliation.
type ChunkPosition struct {
	Content            string
	StartOffset        int
	EndOffset          int
	PositionConfidence match.Confidence
	PositionMethod     match.Method
}

// UpdateChunkPosition writes reconciled offsets (and the authoritative
// content slice) for one chunk.
func (s *Store) UpdateChunkPosition(ctx context.Context, id string, pos ChunkPosition) error {
	updates := map[string]any{
		"start_offset":        pos.StartOffset,
		"end_offset":          pos.EndOffset,
		"position_confidence": pos.PositionConfidence,
		"position_method":     pos.PositionMethod,
	}
	if pos.Content != "" {
		updates["content"] = pos.Content
	}

	res := s.db.WithContext(ctx).Model(&Chunk{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateChunkCorrection applies a user correction: new offsets, updated
// flags, and the bounded correction history, in one write.
func (s *Store) UpdateChunkCorrection(ctx context.Context, id string, start, end int, content string, history []CorrectionEntry) error {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode correction history: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&Chunk{}).Where("id = ?", id).Updates(map[string]any{
		"start_offset":       start,
		"end_offset":         end,
		"content":            content,
		"position_validated": true,
		"position_corrected": true,
		"correction_history": historyJSON,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkChunkValidated records user confirmation of a chunk's offsets
// without touching the correction history.
func (s *Store) MarkChunkValidated(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Chunk{}).Where("id = ?", id).
		Update("position_validated", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SupersedeChunks flips is_current off for a document's active chunks,
// making room for a fresh generation.
func (s *Store) SupersedeChunks(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Model(&Chunk{}).
		Where("document_id = ? AND is_current = ?", documentID, true).
		Update("is_current", false).Error
}

// MarkConnectionsDetected stamps chunks after a detection pass.
func (s *Store) MarkConnectionsDetected(ctx context.Context, chunkIDs []string, at time.Time) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Chunk{}).
		Where("id IN ?", chunkIDs).
		Updates(map[string]any{
			"connections_detected":    true,
			"connections_detected_at": at,
		}).Error
}

// DecodeCorrectionHistory parses a chunk's correction log. An empty
// column decodes to an empty slice.
func DecodeCorrectionHistory(c *Chunk) ([]CorrectionEntry, error) {
	if len(c.CorrectionHistory) == 0 {
		return nil, nil
	}
	var entries []CorrectionEntry
	if err := json.Unmarshal(c.CorrectionHistory, &entries); err != nil {
		return nil, fmt.Errorf("corrupt correction history on chunk %s: %w", c.ID, err)
	}
	return entries, nil
}
