// Package engines implements the connection-detection engines. Each
// engine is an independent read-only analysis over a chunk set that
// emits candidate edges; persistence and orchestration live in the
// connections package.
package engines

import (
	"context"

	"github.com/stitch-works/stitch/internal/store"
)

// Candidate is one detected edge, not yet persisted.
type Candidate struct {
	SourceChunkID string
	TargetChunkID string
	Strength      float64
	Metadata      map[string]any
}

// Request is the input to one engine invocation. Sources are the
// chunks under analysis; Targets are the chunks they may connect to.
// For in-document detection the two sets are the same; incremental
// reprocessing points Targets at newer documents' chunks.
type Request struct {
	Sources []*store.Chunk
	Targets []*store.Chunk

	// MinStrength drops candidates scoring below it.
	MinStrength float64

	// MaxPairs caps how many chunk pairs a judgement-based engine may
	// send to the classifier. Zero means the engine default.
	MaxPairs int
}

// Engine is one detection strategy.
type Engine interface {
	// Type identifies the engine in persisted connections.
	Type() store.ConnectionType

	// Detect analyzes the request's chunk sets and returns candidate
	// edges. A returned error aborts the whole detection pass; partial
	// results are discarded.
	Detect(ctx context.Context, req Request) ([]Candidate, error)
}

// pair is an ordered source/target combination considered by an engine.
type pair struct {
	src, tgt   *store.Chunk
	similarity float64
}

// eachPair enumerates source/target combinations, skipping self-pairs
// and duplicate unordered pairs when the two sets are identical.
func eachPair(sources, targets []*store.Chunk, fn func(src, tgt *store.Chunk)) {
	same := sameChunkSet(sources, targets)
	for i, src := range sources {
		for j, tgt := range targets {
			if src.ID == tgt.ID {
				continue
			}
			if same && j <= i {
				continue
			}
			fn(src, tgt)
		}
	}
}

func sameChunkSet(a, b []*store.Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
