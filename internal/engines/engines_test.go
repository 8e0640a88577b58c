package engines

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/store"
)

func chunk(id, content string) *store.Chunk {
	return &store.Chunk{ID: id, DocumentID: "d1", Content: content}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSemanticDetect(t *testing.T) {
	ctx := context.Background()
	embedder := providers.NewMockEmbedder("gardening", "astronomy")
	engine := NewSemantic(embedder, discard())

	chunks := []*store.Chunk{
		chunk("c1", "gardening tips for spring gardening"),
		chunk("c2", "more gardening advice on gardening soil"),
		chunk("c3", "astronomy for beginners astronomy guide"),
	}

	got, err := engine.Detect(ctx, Request{Sources: chunks, Targets: chunks, MinStrength: 0.9})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one edge, got %d: %+v", len(got), got)
	}
	edge := got[0]
	if edge.SourceChunkID != "c1" || edge.TargetChunkID != "c2" {
		t.Fatalf("expected c1-c2 edge, got %s-%s", edge.SourceChunkID, edge.TargetChunkID)
	}
	if edge.Strength < 0.9 || edge.Strength > 1 {
		t.Fatalf("strength out of range: %f", edge.Strength)
	}
	if _, ok := edge.Metadata["cosine_similarity"]; !ok {
		t.Fatalf("metadata missing similarity: %+v", edge.Metadata)
	}
}

func TestSemanticSkipsSelfAndDuplicatePairs(t *testing.T) {
	ctx := context.Background()
	embedder := providers.NewMockEmbedder("topic")
	engine := NewSemantic(embedder, discard())

	chunks := []*store.Chunk{
		chunk("c1", "topic topic topic"),
		chunk("c2", "topic topic topic"),
	}
	got, err := engine.Detect(ctx, Request{Sources: chunks, Targets: chunks, MinStrength: 0.5})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	// Identical sets: one unordered pair, no self edges.
	if len(got) != 1 {
		t.Fatalf("expected exactly one edge, got %d", len(got))
	}
}

func TestSemanticEmptyInput(t *testing.T) {
	engine := NewSemantic(providers.NewMockEmbedder(), discard())
	got, err := engine.Detect(context.Background(), Request{})
	if err != nil || got != nil {
		t.Fatalf("expected nil/nil for empty input, got %v %v", got, err)
	}
}

func TestSemanticPropagatesEmbedderFailure(t *testing.T) {
	embedder := providers.NewMockEmbedder()
	embedder.Err = errors.New("embedding backend down")
	engine := NewSemantic(embedder, discard())

	chunks := []*store.Chunk{chunk("c1", "a"), chunk("c2", "b")}
	_, err := engine.Detect(context.Background(), Request{Sources: chunks, Targets: chunks})
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
}

func TestContradictionDetect(t *testing.T) {
	ctx := context.Background()
	// Both chunks sit on the same axis so the prefilter keeps the pair.
	embedder := providers.NewMockEmbedder("coffee")
	classifier := &providers.MockClassifier{
		Scripted: map[string]providers.Verdict{
			"coffee is healthy": {Related: true, Strength: 0.8, Explanation: "opposing health claims"},
		},
	}
	engine := NewContradiction(embedder, classifier, discard())

	chunks := []*store.Chunk{
		chunk("c1", "coffee is healthy for most adults, coffee coffee"),
		chunk("c2", "coffee is harmful and should be avoided, coffee coffee"),
	}
	got, err := engine.Detect(ctx, Request{Sources: chunks, Targets: chunks, MinStrength: 0.5})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one contradiction, got %d", len(got))
	}
	if got[0].Strength != 0.8 {
		t.Fatalf("expected classifier strength, got %f", got[0].Strength)
	}
	if got[0].Metadata["explanation"] != "opposing health claims" {
		t.Fatalf("explanation not carried: %+v", got[0].Metadata)
	}
	if len(classifier.Calls) != 1 {
		t.Fatalf("expected one judgement call, got %d", len(classifier.Calls))
	}
}

func TestContradictionDropsWeakVerdicts(t *testing.T) {
	embedder := providers.NewMockEmbedder("tea")
	classifier := &providers.MockClassifier{
		Default: providers.Verdict{Related: true, Strength: 0.2},
	}
	engine := NewContradiction(embedder, classifier, discard())

	chunks := []*store.Chunk{
		chunk("c1", "tea tea tea"),
		chunk("c2", "tea tea tea tea"),
	}
	got, err := engine.Detect(context.Background(), Request{Sources: chunks, Targets: chunks, MinStrength: 0.5})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("weak verdict should be dropped, got %+v", got)
	}
}

func TestContradictionAbortsOnClassifierFailure(t *testing.T) {
	embedder := providers.NewMockEmbedder("tea")
	classifier := &providers.MockClassifier{Err: errors.New("judgement backend down")}
	engine := NewContradiction(embedder, classifier, discard())

	chunks := []*store.Chunk{
		chunk("c1", "tea tea tea"),
		chunk("c2", "tea tea tea tea"),
	}
	_, err := engine.Detect(context.Background(), Request{Sources: chunks, Targets: chunks})
	if err == nil {
		t.Fatal("expected abort on classifier failure")
	}
}

func TestBridgeDetect(t *testing.T) {
	ctx := context.Background()
	// Partial axis overlap lands the pair in the bridge band.
	embedder := providers.NewMockEmbedder("growth", "seasons")
	classifier := &providers.MockClassifier{
		Default: providers.Verdict{Related: true, Strength: 0.65, Explanation: "cycles of renewal"},
	}
	engine := NewBridge(embedder, classifier, discard())

	sources := []*store.Chunk{chunk("c1", "growth of plants through the seasons and seasons")}
	targets := []*store.Chunk{{ID: "c9", DocumentID: "d2", Content: "growth of economies and markets"}}

	got, err := engine.Detect(ctx, Request{Sources: sources, Targets: targets, MinStrength: 0.5})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one bridge, got %d", len(got))
	}
	if got[0].Metadata["theme"] != "cycles of renewal" {
		t.Fatalf("theme not carried: %+v", got[0].Metadata)
	}
	if got[0].SourceChunkID != "c1" || got[0].TargetChunkID != "c9" {
		t.Fatalf("wrong endpoints: %+v", got[0])
	}
}

func TestBridgeHonorsMaxPairs(t *testing.T) {
	embedder := providers.NewMockEmbedder("alpha")
	classifier := &providers.MockClassifier{
		Default: providers.Verdict{Related: true, Strength: 0.9, Explanation: "x"},
	}
	engine := NewBridge(embedder, classifier, discard())

	// Every source/target pair scores ~0.45, inside the bridge band, so
	// all six pairs are eligible and only the cap limits judgements.
	sources := []*store.Chunk{
		chunk("s1", "plain text"),
		chunk("s2", "more plain words"),
		chunk("s3", "another plain one"),
	}
	targets := []*store.Chunk{
		{ID: "t1", DocumentID: "d2", Content: "alpha alpha"},
		{ID: "t2", DocumentID: "d2", Content: "alpha alpha indeed"},
	}

	_, err := engine.Detect(context.Background(), Request{
		Sources: sources, Targets: targets, MinStrength: 0.5, MaxPairs: 2,
	})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(classifier.Calls) != 2 {
		t.Fatalf("classifier called %d times, cap was 2", len(classifier.Calls))
	}
}
