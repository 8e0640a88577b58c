// Package ingest turns an extraction bundle (canonical markdown plus
// the external chunker's output) into a persisted document: blobs in
// the blob store, document and chunk rows in the database. Offset
// reconciliation runs afterwards as its own job.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/store"
)

// Service persists extraction results.
type Service struct {
	store  *store.Store
	blobs  blob.Store
	logger *slog.Logger
}

// NewService wires the ingest service.
func NewService(st *store.Store, blobs blob.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, blobs: blobs, logger: logger}
}

// Request are the inputs for one document ingest.
type Request struct {
	UserID string
	Title  string

	// MarkdownPath is the cleaned canonical markdown file.
	MarkdownPath string

	// ChunksPath is the chunker output JSON file.
	ChunksPath string

	// SourcePDFPath optionally points at the original PDF; when set it
	// is archived to the blob store and its page count recorded.
	SourcePDFPath string
}

// Result describes a completed ingest.
type Result struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	PageCount  int    `json:"page_count,omitempty"`
}

// Ingest persists one document. Offsets on the created chunks carry
// only charspan hints; nothing is trusted until reconciliation runs.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: ingest requires a user id", store.ErrValidation)
	}

	markdown, err := os.ReadFile(req.MarkdownPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}
	if len(markdown) == 0 {
		return nil, fmt.Errorf("%w: markdown file is empty", store.ErrValidation)
	}
	bundleData, err := os.ReadFile(req.ChunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk bundle: %w", err)
	}
	bundle, err := ParseBundle(bundleData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = deriveTitle(req.MarkdownPath)
	}

	pageCount := 0
	var sourcePDF []byte
	if req.SourcePDFPath != "" {
		sourcePDF, err = os.ReadFile(req.SourcePDFPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read source pdf: %w", err)
		}
		pageCount, err = api.PageCountFile(req.SourcePDFPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read pdf page count: %w", err)
		}
	}

	doc := &store.Document{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Title:     title,
		Status:    store.DocumentProcessing,
		PageCount: pageCount,
	}
	doc.StoragePath = blob.DocumentKey(req.UserID, doc.ID)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	// Blobs first: a document whose markdown is missing is unusable,
	// while orphaned blobs are harmless.
	if err := s.blobs.Put(ctx, doc.StoragePath+"/"+blob.ContentName, markdown); err != nil {
		return nil, err
	}
	if err := s.blobs.Put(ctx, doc.StoragePath+"/"+blob.ExtractionName, bundleData); err != nil {
		return nil, err
	}
	if len(sourcePDF) > 0 {
		if err := s.blobs.Put(ctx, doc.StoragePath+"/"+blob.SourceName, sourcePDF); err != nil {
			return nil, err
		}
	}

	chunks := make([]*store.Chunk, 0, len(bundle.Chunks))
	for i, rec := range bundle.Chunks {
		chunk := &store.Chunk{
			DocumentID:      doc.ID,
			ChunkIndex:      i,
			Content:         rec.Text,
			TokenCount:      rec.TokenCount,
			Summary:         rec.Summary,
			ImportanceScore: rec.ImportanceScore,
		}
		if rec.StartIndex != nil && rec.EndIndex != nil && *rec.EndIndex > *rec.StartIndex {
			chunk.CharspanStart = rec.StartIndex
			chunk.CharspanEnd = rec.EndIndex
		}
		if len(rec.Themes) > 0 {
			chunk.Themes = datatypes.JSON(rec.Themes)
		}
		if len(rec.Metadata) > 0 {
			chunk.Metadata = datatypes.JSON(rec.Metadata)
		}
		chunks = append(chunks, chunk)
	}
	if err := s.store.CreateChunks(ctx, chunks); err != nil {
		return nil, err
	}

	if err := s.store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentCompleted); err != nil {
		return nil, err
	}

	s.logger.Info("document ingested",
		"document_id", doc.ID,
		"user_id", req.UserID,
		"chunks", len(chunks),
		"pages", pageCount)
	return &Result{DocumentID: doc.ID, ChunkCount: len(chunks), PageCount: pageCount}, nil
}

// Reingest supersedes a document's current chunks with a fresh bundle,
// leaving the old generation in place as history.
func (s *Service) Reingest(ctx context.Context, documentID string, bundleData []byte) (*Result, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	bundle, err := ParseBundle(bundleData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	if err := s.blobs.Put(ctx, doc.StoragePath+"/"+blob.ExtractionName, bundleData); err != nil {
		return nil, err
	}
	if err := s.store.SupersedeChunks(ctx, documentID); err != nil {
		return nil, err
	}

	chunks := make([]*store.Chunk, 0, len(bundle.Chunks))
	for i, rec := range bundle.Chunks {
		chunk := &store.Chunk{
			DocumentID:      documentID,
			ChunkIndex:      i,
			Content:         rec.Text,
			TokenCount:      rec.TokenCount,
			Summary:         rec.Summary,
			ImportanceScore: rec.ImportanceScore,
		}
		if rec.StartIndex != nil && rec.EndIndex != nil && *rec.EndIndex > *rec.StartIndex {
			chunk.CharspanStart = rec.StartIndex
			chunk.CharspanEnd = rec.EndIndex
		}
		chunks = append(chunks, chunk)
	}
	if err := s.store.CreateChunks(ctx, chunks); err != nil {
		return nil, err
	}

	s.logger.Info("document re-ingested", "document_id", documentID, "chunks", len(chunks))
	return &Result{DocumentID: documentID, ChunkCount: len(chunks), PageCount: doc.PageCount}, nil
}

func deriveTitle(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	return strings.TrimSpace(base)
}
