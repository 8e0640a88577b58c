package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/datatypes"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "stitch-test.db")
	s, err := Open(Config{Driver: "sqlite", DSN: dsn}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func seedDocument(t *testing.T, s *Store, userID string) *Document {
	t.Helper()
	doc := &Document{UserID: userID, Title: "test doc", StoragePath: userID + "/doc"}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func seedChunks(t *testing.T, s *Store, docID string, n int) []*Chunk {
	t.Helper()
	chunks := make([]*Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, &Chunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    "chunk content",
		})
	}
	if err := s.CreateChunks(context.Background(), chunks); err != nil {
		t.Fatalf("create chunks: %v", err)
	}
	return chunks
}

func TestDocumentLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("create requires user and storage path", func(t *testing.T) {
		if err := s.CreateDocument(ctx, &Document{StoragePath: "x"}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if err := s.CreateDocument(ctx, &Document{UserID: "u1"}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("round trip and status", func(t *testing.T) {
		doc := seedDocument(t, s, "u1")
		got, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("get document: %v", err)
		}
		if got.Status != DocumentPending {
			t.Fatalf("expected pending status, got %s", got.Status)
		}

		if err := s.UpdateDocumentStatus(ctx, doc.ID, DocumentCompleted); err != nil {
			t.Fatalf("update status: %v", err)
		}
		got, _ = s.GetDocument(ctx, doc.ID)
		if got.Status != DocumentCompleted {
			t.Fatalf("expected completed status, got %s", got.Status)
		}
	})

	t.Run("get missing returns not found", func(t *testing.T) {
		if _, err := s.GetDocument(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := seedDocument(t, s, "u1")
	other := seedDocument(t, s, "u1")
	chunks := seedChunks(t, s, doc.ID, 2)
	otherChunks := seedChunks(t, s, other.ID, 1)

	err := s.CreateConnections(ctx, []*Connection{
		{SourceChunkID: chunks[0].ID, TargetChunkID: chunks[1].ID, Type: ConnectionSemantic, Strength: 0.9},
		{SourceChunkID: chunks[0].ID, TargetChunkID: otherChunks[0].ID, Type: ConnectionSemantic, Strength: 0.8},
	})
	if err != nil {
		t.Fatalf("create connections: %v", err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected document gone, got %v", err)
	}
	if _, err := s.GetChunk(ctx, chunks[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected chunk gone, got %v", err)
	}
	// Cross-document connections touching the deleted chunks go too.
	n, err := s.CountConnectionsForDocument(ctx, other.ID)
	if err != nil {
		t.Fatalf("count connections: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 surviving connections, got %d", n)
	}
}

func TestChunkGenerations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := seedDocument(t, s, "u1")
	gen1 := seedChunks(t, s, doc.ID, 3)

	if err := s.SupersedeChunks(ctx, doc.ID); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	gen2 := seedChunks(t, s, doc.ID, 2)

	current, err := s.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("chunks by document: %v", err)
	}
	if len(current) != 2 {
		t.Fatalf("expected 2 current chunks, got %d", len(current))
	}
	for i, c := range current {
		if c.ID != gen2[i].ID {
			t.Fatalf("chunk %d: expected new generation id %s, got %s", i, gen2[i].ID, c.ID)
		}
	}

	// The old generation survives the supersede, just not as current.
	old, err := s.GetChunk(ctx, gen1[0].ID)
	if err != nil {
		t.Fatalf("get superseded chunk: %v", err)
	}
	if old.IsCurrent {
		t.Fatal("superseded chunk still marked current")
	}
}

func TestChunkNeighbors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := seedDocument(t, s, "u1")
	chunks := seedChunks(t, s, doc.ID, 3)

	prev, next, err := s.ChunkNeighbors(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if prev == nil || prev.ID != chunks[0].ID {
		t.Fatalf("expected prev %s, got %+v", chunks[0].ID, prev)
	}
	if next == nil || next.ID != chunks[2].ID {
		t.Fatalf("expected next %s, got %+v", chunks[2].ID, next)
	}

	prev, next, err = s.ChunkNeighbors(ctx, doc.ID, 0)
	if err != nil {
		t.Fatalf("neighbors at edge: %v", err)
	}
	if prev != nil {
		t.Fatalf("expected nil prev at index 0, got %+v", prev)
	}
	if next == nil || next.ID != chunks[1].ID {
		t.Fatalf("expected next %s at index 0", chunks[1].ID)
	}
}

func TestCorrectionHistoryRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := seedDocument(t, s, "u1")
	chunks := seedChunks(t, s, doc.ID, 1)

	history := []CorrectionEntry{{
		Timestamp: time.Now().UTC().Truncate(time.Second),
		OldStart:  0, OldEnd: 10,
		NewStart: 5, NewEnd: 15,
		Reason: "manual adjustment",
	}}
	if err := s.UpdateChunkCorrection(ctx, chunks[0].ID, 5, 15, "new content", history); err != nil {
		t.Fatalf("update correction: %v", err)
	}

	got, err := s.GetChunk(ctx, chunks[0].ID)
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if !got.PositionCorrected || !got.PositionValidated {
		t.Fatal("correction flags not set")
	}
	if got.StartOffset != 5 || got.EndOffset != 15 {
		t.Fatalf("offsets not written: [%d,%d)", got.StartOffset, got.EndOffset)
	}
	decoded, err := DecodeCorrectionHistory(got)
	if err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Reason != "manual adjustment" {
		t.Fatalf("unexpected history: %+v", decoded)
	}
}

func TestConnectionValidationAndFeedback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := seedDocument(t, s, "u1")
	chunks := seedChunks(t, s, doc.ID, 2)

	t.Run("rejects self and bad strength", func(t *testing.T) {
		err := s.CreateConnections(ctx, []*Connection{
			{SourceChunkID: chunks[0].ID, TargetChunkID: chunks[0].ID, Type: ConnectionSemantic, Strength: 0.5},
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for self edge, got %v", err)
		}
		err = s.CreateConnections(ctx, []*Connection{
			{SourceChunkID: chunks[0].ID, TargetChunkID: chunks[1].ID, Type: ConnectionSemantic, Strength: 1.2},
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for strength, got %v", err)
		}
	})

	t.Run("feedback is tri-state", func(t *testing.T) {
		conn := &Connection{SourceChunkID: chunks[0].ID, TargetChunkID: chunks[1].ID, Type: ConnectionBridge, Strength: 0.7}
		if err := s.CreateConnections(ctx, []*Connection{conn}); err != nil {
			t.Fatalf("create connection: %v", err)
		}

		conns, _ := s.ConnectionsForDocument(ctx, doc.ID)
		if len(conns) != 1 || conns[0].UserValidated != nil {
			t.Fatalf("expected one connection with nil feedback, got %+v", conns)
		}

		yes := true
		if err := s.SetConnectionFeedback(ctx, conn.ID, &yes, nil); err != nil {
			t.Fatalf("set feedback: %v", err)
		}
		validated, err := s.ValidatedConnectionsForDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("list validated: %v", err)
		}
		if len(validated) != 1 {
			t.Fatalf("expected 1 validated connection, got %d", len(validated))
		}
	})
}

func TestDeleteConnectionsPreservesValidated(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := seedDocument(t, s, "u1")
	chunks := seedChunks(t, s, doc.ID, 3)

	yes, no := true, false
	conns := []*Connection{
		{SourceChunkID: chunks[0].ID, TargetChunkID: chunks[1].ID, Type: ConnectionSemantic, Strength: 0.9, UserValidated: &yes},
		{SourceChunkID: chunks[0].ID, TargetChunkID: chunks[2].ID, Type: ConnectionSemantic, Strength: 0.8, UserValidated: &no},
		{SourceChunkID: chunks[1].ID, TargetChunkID: chunks[2].ID, Type: ConnectionBridge, Strength: 0.7},
	}
	if err := s.CreateConnections(ctx, conns); err != nil {
		t.Fatalf("create connections: %v", err)
	}

	deleted, err := s.DeleteConnectionsForDocument(ctx, doc.ID, true)
	if err != nil {
		t.Fatalf("delete connections: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted (rejected + no-feedback), got %d", deleted)
	}

	remaining, _ := s.ConnectionsForDocument(ctx, doc.ID)
	if len(remaining) != 1 || remaining[0].ID != conns[0].ID {
		t.Fatalf("expected only the validated connection to survive, got %+v", remaining)
	}
}

func TestJobClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	stale := now.Add(-30 * time.Minute)

	t.Run("empty queue claims nothing", func(t *testing.T) {
		job, err := s.ClaimNextJob(ctx, now, stale)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if job != nil {
			t.Fatalf("expected nil job, got %+v", job)
		}
	})

	t.Run("claims oldest pending and only once", func(t *testing.T) {
		first, err := s.CreateJob(ctx, "reconcile_document", datatypes.JSON(`{"document_id":"d1"}`))
		if err != nil {
			t.Fatalf("create job: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
		if _, err := s.CreateJob(ctx, "reconcile_document", nil); err != nil {
			t.Fatalf("create job: %v", err)
		}

		claimed, err := s.ClaimNextJob(ctx, now, stale)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if claimed == nil || claimed.ID != first.ID {
			t.Fatalf("expected oldest job %s, got %+v", first.ID, claimed)
		}
		if claimed.Status != JobProcessing || claimed.StartedAt == nil {
			t.Fatalf("claim did not transition job: %+v", claimed)
		}

		second, err := s.ClaimNextJob(ctx, now, stale)
		if err != nil {
			t.Fatalf("second claim: %v", err)
		}
		if second == nil || second.ID == first.ID {
			t.Fatalf("second claim should get the other job, got %+v", second)
		}

		third, err := s.ClaimNextJob(ctx, now, stale)
		if err != nil {
			t.Fatalf("third claim: %v", err)
		}
		if third != nil {
			t.Fatalf("no jobs should remain claimable, got %+v", third)
		}
	})
}

func TestJobStaleReclaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := s.CreateJob(ctx, "detect_connections", nil)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	// First worker claims it 45 minutes ago, then dies silently.
	past := now.Add(-45 * time.Minute)
	claimed, err := s.ClaimNextJob(ctx, past, past.Add(-30*time.Minute))
	if err != nil || claimed == nil {
		t.Fatalf("initial claim failed: %v", err)
	}

	// While the heartbeat is fresh enough, nobody can steal it.
	if j, _ := s.ClaimNextJob(ctx, past.Add(time.Minute), past.Add(-29*time.Minute)); j != nil {
		t.Fatalf("fresh processing job should not be reclaimable, got %+v", j)
	}

	// Past the staleness window, a second worker reclaims.
	reclaimed, err := s.ClaimNextJob(ctx, now, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed == nil || reclaimed.ID != job.ID {
		t.Fatalf("expected stale job reclaimed, got %+v", reclaimed)
	}
}

func TestJobRetryScheduling(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	stale := now.Add(-30 * time.Minute)

	job, err := s.CreateJob(ctx, "reconcile_document", nil)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := s.ClaimNextJob(ctx, now, stale); err != nil {
		t.Fatalf("claim: %v", err)
	}

	retryAt := now.Add(10 * time.Minute)
	if err := s.RescheduleJob(ctx, job.ID, "transient failure", retryAt); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	// Not yet retry-ready.
	if j, _ := s.ClaimNextJob(ctx, now.Add(5*time.Minute), stale); j != nil {
		t.Fatalf("job claimed before its retry time: %+v", j)
	}

	// Ready after the backoff elapses, with retry count bumped.
	j, err := s.ClaimNextJob(ctx, now.Add(11*time.Minute), stale)
	if err != nil {
		t.Fatalf("claim after backoff: %v", err)
	}
	if j == nil || j.ID != job.ID {
		t.Fatalf("expected rescheduled job, got %+v", j)
	}
	if j.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", j.RetryCount)
	}
	if j.LastError != "transient failure" {
		t.Fatalf("last error not recorded: %q", j.LastError)
	}
}

func TestJobCompletionAndCancel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("complete records output", func(t *testing.T) {
		job, _ := s.CreateJob(ctx, "reconcile_document", nil)
		out, _ := json.Marshal(map[string]int{"repaired": 3})
		if err := s.CompleteJob(ctx, job.ID, out); err != nil {
			t.Fatalf("complete: %v", err)
		}
		got, _ := s.GetJob(ctx, job.ID)
		if got.Status != JobCompleted || got.ProgressPercent != 100 || got.CompletedAt == nil {
			t.Fatalf("completion not recorded: %+v", got)
		}
	})

	t.Run("cancel sentinel and delete", func(t *testing.T) {
		job, _ := s.CreateJob(ctx, "detect_connections", nil)
		if err := s.RequestJobCancel(ctx, job.ID); err != nil {
			t.Fatalf("request cancel: %v", err)
		}
		cancelled, err := s.JobCancelRequested(ctx, job.ID)
		if err != nil || !cancelled {
			t.Fatalf("sentinel not visible: %v %v", cancelled, err)
		}
		if err := s.DeleteJob(ctx, job.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetJob(ctx, job.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected job gone, got %v", err)
		}
	})
}
