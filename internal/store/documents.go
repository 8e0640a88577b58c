package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateDocument inserts a new document row.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.UserID == "" {
		return fmt.Errorf("%w: document requires a user id", ErrValidation)
	}
	if doc.StoragePath == "" {
		return fmt.Errorf("%w: document requires a storage path", ErrValidation)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = DocumentPending
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	s.logger.Info("document created", "id", doc.ID, "user_id", doc.UserID)
	return nil
}

// GetDocument returns a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &doc, nil
}

// ListDocuments returns a user's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]*Document, error) {
	var docs []*Document
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocumentStatus transitions a document's processing status.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status DocumentStatus) error {
	res := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document along with its chunks and any
// connections touching those chunks.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chunkIDs []string
		if err := tx.Model(&Chunk{}).Where("document_id = ?", id).Pluck("id", &chunkIDs).Error; err != nil {
			return err
		}
		if len(chunkIDs) > 0 {
			if err := tx.Where("source_chunk_id IN ? OR target_chunk_id IN ?", chunkIDs, chunkIDs).
				Delete(&Connection{}).Error; err != nil {
				return err
			}
			if err := tx.Where("document_id = ?", id).Delete(&Chunk{}).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&Document{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DocumentsCreatedAfter returns a user's documents created strictly
// after the given time. Used by add-only reprocessing to find newer
// candidate documents.
func (s *Store) DocumentsCreatedAfter(ctx context.Context, userID string, after time.Time) ([]*Document, error) {
	var docs []*Document
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at > ?", userID, after).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}
