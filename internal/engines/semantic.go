package engines

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stitch-works/stitch/internal/match"
	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/store"
)

// defaultSemanticMinStrength is the floor for emitting a similarity
// edge when the request does not set one.
const defaultSemanticMinStrength = 0.7

// Semantic detects chunks that talk about the same thing, scored by
// embedding cosine similarity.
type Semantic struct {
	embedder providers.Embedder
	logger   *slog.Logger
}

// NewSemantic wires the semantic-similarity engine.
func NewSemantic(embedder providers.Embedder, logger *slog.Logger) *Semantic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Semantic{embedder: embedder, logger: logger}
}

func (e *Semantic) Type() store.ConnectionType {
	return store.ConnectionSemantic
}

func (e *Semantic) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	if len(req.Sources) == 0 || len(req.Targets) == 0 {
		return nil, nil
	}
	minStrength := req.MinStrength
	if minStrength <= 0 {
		minStrength = defaultSemanticMinStrength
	}

	vectors, err := embedChunkSets(ctx, e.embedder, req.Sources, req.Targets)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	eachPair(req.Sources, req.Targets, func(src, tgt *store.Chunk) {
		score := match.Cosine(vectors[src.ID], vectors[tgt.ID])
		if score < minStrength {
			return
		}
		candidates = append(candidates, Candidate{
			SourceChunkID: src.ID,
			TargetChunkID: tgt.ID,
			Strength:      score,
			Metadata: map[string]any{
				"cosine_similarity": score,
			},
		})
	})

	e.logger.Debug("semantic detection finished",
		"sources", len(req.Sources),
		"targets", len(req.Targets),
		"candidates", len(candidates))
	return candidates, nil
}

// embedChunkSets embeds the union of both chunk sets once, returning
// vectors keyed by chunk ID.
func embedChunkSets(ctx context.Context, embedder providers.Embedder, sets ...[]*store.Chunk) (map[string][]float32, error) {
	var ids []string
	var texts []string
	seen := map[string]struct{}{}
	for _, set := range sets {
		for _, c := range set {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			ids = append(ids, c.ID)
			texts = append(texts, c.Content)
		}
	}

	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(texts), err)
	}
	if len(vecs) != len(ids) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(ids))
	}

	byID := make(map[string][]float32, len(ids))
	for i, id := range ids {
		byID[id] = vecs[i]
	}
	return byID, nil
}

var _ Engine = (*Semantic)(nil)
