package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateConnections bulk-inserts detection results.
func (s *Store) CreateConnections(ctx context.Context, conns []*Connection) error {
	if len(conns) == 0 {
		return nil
	}
	for _, c := range conns {
		if c.SourceChunkID == "" || c.TargetChunkID == "" {
			return fmt.Errorf("%w: connection requires source and target chunk ids", ErrValidation)
		}
		if c.SourceChunkID == c.TargetChunkID {
			return fmt.Errorf("%w: connection cannot be self-referential", ErrValidation)
		}
		if c.Strength < 0 || c.Strength > 1 {
			return fmt.Errorf("%w: connection strength %f out of [0,1]", ErrValidation, c.Strength)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.DiscoveredAt.IsZero() {
			c.DiscoveredAt = time.Now().UTC()
		}
	}

	if err := s.db.WithContext(ctx).CreateInBatches(conns, 200).Error; err != nil {
		return fmt.Errorf("failed to create connections: %w", err)
	}
	return nil
}

// documentConnectionScope filters connections whose source or target
// chunk belongs to the given document.
func (s *Store) documentConnectionScope(ctx context.Context, documentID string) (*gorm.DB, []string, error) {
	var chunkIDs []string
	err := s.db.WithContext(ctx).Model(&Chunk{}).
		Where("document_id = ?", documentID).
		Pluck("id", &chunkIDs).Error
	if err != nil {
		return nil, nil, err
	}

	scope := s.db.WithContext(ctx).
		Where("source_chunk_id IN ? OR target_chunk_id IN ?", chunkIDs, chunkIDs)
	return scope, chunkIDs, nil
}

// ConnectionsForDocument returns every connection touching the
// document's chunks.
func (s *Store) ConnectionsForDocument(ctx context.Context, documentID string) ([]*Connection, error) {
	scope, chunkIDs, err := s.documentConnectionScope(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	var conns []*Connection
	if err := scope.Order("discovered_at ASC").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

// ValidatedConnectionsForDocument returns connections the user marked
// as validated.
func (s *Store) ValidatedConnectionsForDocument(ctx context.Context, documentID string) ([]*Connection, error) {
	scope, chunkIDs, err := s.documentConnectionScope(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	var conns []*Connection
	if err := scope.Where("user_validated = ?", true).Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

// DeleteConnectionsForDocument removes connections touching the
// document's chunks. When preserveValidated is true, rows with
// user_validated = true survive the delete.
func (s *Store) DeleteConnectionsForDocument(ctx context.Context, documentID string, preserveValidated bool) (int64, error) {
	scope, chunkIDs, err := s.documentConnectionScope(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	if preserveValidated {
		// Tri-state column: NULL (no feedback) and false (rejected) both
		// fail the preservation test and get deleted.
		scope = scope.Where("user_validated IS NULL OR user_validated = ?", false)
	}

	res := scope.Delete(&Connection{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// CountConnectionsForDocument counts connections touching the document.
func (s *Store) CountConnectionsForDocument(ctx context.Context, documentID string) (int64, error) {
	scope, chunkIDs, err := s.documentConnectionScope(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	var count int64
	if err := scope.Model(&Connection{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SetConnectionFeedback records tri-state user feedback on a connection.
func (s *Store) SetConnectionFeedback(ctx context.Context, id string, validated, starred *bool) error {
	updates := map[string]any{}
	if validated != nil {
		updates["user_validated"] = *validated
	}
	if starred != nil {
		updates["user_starred"] = *starred
	}
	if len(updates) == 0 {
		return fmt.Errorf("%w: no feedback provided", ErrValidation)
	}

	res := s.db.WithContext(ctx).Model(&Connection{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistingConnectionKeys returns the (source, target, type) triples
// already present for a document. Used to de-duplicate smart-mode
// reprocessing against preserved validated connections.
func (s *Store) ExistingConnectionKeys(ctx context.Context, documentID string) (map[string]struct{}, error) {
	conns, err := s.ConnectionsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(conns))
	for _, c := range conns {
		keys[ConnectionKey(c.SourceChunkID, c.TargetChunkID, c.Type)] = struct{}{}
	}
	return keys, nil
}

// ConnectionKey builds the de-duplication key for a connection.
func ConnectionKey(source, target string, typ ConnectionType) string {
	return source + "|" + target + "|" + string(typ)
}
