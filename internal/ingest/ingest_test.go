package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/match"
	"github.com/stitch-works/stitch/internal/store"
)

func testService(t *testing.T) (*Service, *store.Store, blob.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	st, err := store.Open(store.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	blobs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	return NewService(st, blobs, logger), st, blobs
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseBundle(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "valid",
			data: `{"chunks": [{"text": "hello", "token_count": 2, "start_index": 0, "end_index": 5}]}`,
		},
		{
			name: "hints optional",
			data: `{"chunks": [{"text": "hello"}]}`,
		},
		{
			name:    "empty chunk list",
			data:    `{"chunks": []}`,
			wantErr: true,
		},
		{
			name:    "missing text",
			data:    `{"chunks": [{"token_count": 2}]}`,
			wantErr: true,
		},
		{
			name:    "empty text",
			data:    `{"chunks": [{"text": ""}]}`,
			wantErr: true,
		},
		{
			name:    "negative index",
			data:    `{"chunks": [{"text": "x", "start_index": -1}]}`,
			wantErr: true,
		},
		{
			name:    "importance out of range",
			data:    `{"chunks": [{"text": "x", "importance_score": 1.5}]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `chunks: nope`,
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bundle, err := ParseBundle([]byte(tc.data))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBundle: %v", err)
			}
			if len(bundle.Chunks) == 0 {
				t.Fatal("expected at least one chunk")
			}
		})
	}
}

func TestIngestPersistsDocumentAndChunks(t *testing.T) {
	svc, st, blobs := testService(t)
	ctx := context.Background()
	dir := t.TempDir()

	markdown := "# Title\n\nFirst paragraph.\n\nSecond paragraph."
	mdPath := writeFile(t, dir, "doc.md", markdown)
	chunksPath := writeFile(t, dir, "chunks.json", `{
		"chunks": [
			{"text": "First paragraph.", "token_count": 3, "start_index": 9, "end_index": 25, "summary": "opening", "importance_score": 0.8},
			{"text": "Second paragraph.", "token_count": 3, "themes": ["intro"], "metadata": {"page": 1}}
		]
	}`)

	result, err := svc.Ingest(ctx, Request{
		UserID:       "u1",
		Title:        "My Doc",
		MarkdownPath: mdPath,
		ChunksPath:   chunksPath,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.ChunkCount != 2 {
		t.Fatalf("ChunkCount = %d, want 2", result.ChunkCount)
	}

	doc, err := st.GetDocument(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != store.DocumentCompleted {
		t.Errorf("status = %q, want completed", doc.Status)
	}
	if doc.Title != "My Doc" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.StoragePath != blob.DocumentKey("u1", doc.ID) {
		t.Errorf("storage path = %q", doc.StoragePath)
	}

	stored, err := blobs.Get(ctx, doc.StoragePath+"/"+blob.ContentName)
	if err != nil {
		t.Fatalf("content blob: %v", err)
	}
	if string(stored) != markdown {
		t.Error("stored markdown differs from input")
	}
	if ok, _ := blobs.Exists(ctx, doc.StoragePath+"/"+blob.ExtractionName); !ok {
		t.Error("extraction bundle blob missing")
	}

	chunks, err := st.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	first := chunks[0]
	if first.Content != "First paragraph." {
		t.Errorf("chunk content = %q", first.Content)
	}
	if first.CharspanStart == nil || *first.CharspanStart != 9 {
		t.Errorf("charspan start = %v, want 9", first.CharspanStart)
	}
	if first.CharspanEnd == nil || *first.CharspanEnd != 25 {
		t.Errorf("charspan end = %v, want 25", first.CharspanEnd)
	}
	if first.PositionConfidence != match.ConfidenceFailed {
		t.Errorf("fresh chunk confidence = %q, want failed until reconciled", first.PositionConfidence)
	}
	second := chunks[1]
	if second.CharspanStart != nil {
		t.Error("chunk without hints should have nil charspan")
	}
	if len(second.Themes) == 0 || len(second.Metadata) == 0 {
		t.Error("enrichment fields not carried through")
	}
}

func TestIngestDerivesTitle(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	dir := t.TempDir()

	mdPath := writeFile(t, dir, "deep-work_notes.md", "Some content here.")
	chunksPath := writeFile(t, dir, "chunks.json", `{"chunks": [{"text": "Some content here."}]}`)

	result, err := svc.Ingest(ctx, Request{UserID: "u1", MarkdownPath: mdPath, ChunksPath: chunksPath})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	doc, err := st.GetDocument(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Title != "deep work notes" {
		t.Errorf("derived title = %q", doc.Title)
	}
}

func TestIngestValidation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	dir := t.TempDir()

	mdPath := writeFile(t, dir, "doc.md", "content")
	emptyMD := writeFile(t, dir, "empty.md", "")
	chunksPath := writeFile(t, dir, "chunks.json", `{"chunks": [{"text": "content"}]}`)
	badChunks := writeFile(t, dir, "bad.json", `{"chunks": []}`)

	cases := []struct {
		name string
		req  Request
	}{
		{"missing user", Request{MarkdownPath: mdPath, ChunksPath: chunksPath}},
		{"empty markdown", Request{UserID: "u1", MarkdownPath: emptyMD, ChunksPath: chunksPath}},
		{"invalid bundle", Request{UserID: "u1", MarkdownPath: mdPath, ChunksPath: badChunks}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Ingest(ctx, tc.req); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReingestCreatesNewGeneration(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	dir := t.TempDir()

	mdPath := writeFile(t, dir, "doc.md", "Old text. New text.")
	chunksPath := writeFile(t, dir, "chunks.json", `{"chunks": [{"text": "Old text."}]}`)

	result, err := svc.Ingest(ctx, Request{UserID: "u1", MarkdownPath: mdPath, ChunksPath: chunksPath})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	fresh := []byte(`{"chunks": [{"text": "Old text."}, {"text": "New text."}]}`)
	re, err := svc.Reingest(ctx, result.DocumentID, fresh)
	if err != nil {
		t.Fatalf("Reingest: %v", err)
	}
	if re.ChunkCount != 2 {
		t.Fatalf("ChunkCount = %d, want 2", re.ChunkCount)
	}

	current, err := st.ChunksByDocument(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if len(current) != 2 {
		t.Fatalf("got %d current chunks, want 2", len(current))
	}

	var total int64
	if err := st.DB().Model(&store.Chunk{}).Where("document_id = ?", result.DocumentID).Count(&total).Error; err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if total != 3 {
		t.Errorf("total chunk rows = %d, want 3 (old generation kept)", total)
	}
}
