package engines

import (
	"context"
	"sort"

	"github.com/stitch-works/stitch/internal/match"
	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/store"
)

// rankPairs prefilters chunk pairs by embedding similarity, keeping
// those inside [lo, hi] and returning at most maxPairs, best first.
// Judgement-based engines use this to bound classifier spend.
func rankPairs(ctx context.Context, embedder providers.Embedder, req Request, lo, hi float64, maxPairs int) ([]pair, error) {
	vectors, err := embedChunkSets(ctx, embedder, req.Sources, req.Targets)
	if err != nil {
		return nil, err
	}

	var pairs []pair
	eachPair(req.Sources, req.Targets, func(src, tgt *store.Chunk) {
		score := match.Cosine(vectors[src.ID], vectors[tgt.ID])
		if score < lo || score > hi {
			return
		}
		pairs = append(pairs, pair{src: src, tgt: tgt, similarity: score})
	})

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].similarity > pairs[j].similarity
	})
	if maxPairs > 0 && len(pairs) > maxPairs {
		pairs = pairs[:maxPairs]
	}
	return pairs, nil
}
