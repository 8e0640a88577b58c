package engines

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/store"
)

const (
	// Bridges are interesting precisely when surface similarity is
	// middling: near-identical pairs belong to the semantic engine, and
	// fully unrelated pairs rarely share a theme worth naming.
	bridgePrefilterLo = 0.3
	bridgePrefilterHi = 0.75

	defaultBridgeMaxPairs    = 50
	defaultBridgeMinStrength = 0.5
)

// Bridge detects thematic bridges: chunk pairs connected by an
// underlying theme rather than surface similarity. The classifier
// names the theme, which is kept as edge metadata.
type Bridge struct {
	embedder   providers.Embedder
	classifier providers.Classifier
	logger     *slog.Logger
}

// NewBridge wires the thematic-bridge engine.
func NewBridge(embedder providers.Embedder, classifier providers.Classifier, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{embedder: embedder, classifier: classifier, logger: logger}
}

func (e *Bridge) Type() store.ConnectionType {
	return store.ConnectionBridge
}

func (e *Bridge) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	if len(req.Sources) == 0 || len(req.Targets) == 0 {
		return nil, nil
	}
	minStrength := req.MinStrength
	if minStrength <= 0 {
		minStrength = defaultBridgeMinStrength
	}
	maxPairs := req.MaxPairs
	if maxPairs <= 0 {
		maxPairs = defaultBridgeMaxPairs
	}

	pairs, err := rankPairs(ctx, e.embedder, req, bridgePrefilterLo, bridgePrefilterHi, maxPairs)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		verdict, err := e.classifier.Judge(ctx, bridgePrompt(p.src.Content, p.tgt.Content))
		if err != nil {
			return nil, fmt.Errorf("bridge judgement failed: %w", err)
		}
		if !verdict.Related || verdict.Strength < minStrength {
			continue
		}
		candidates = append(candidates, Candidate{
			SourceChunkID: p.src.ID,
			TargetChunkID: p.tgt.ID,
			Strength:      verdict.Strength,
			Metadata: map[string]any{
				"theme":             verdict.Explanation,
				"cosine_similarity": p.similarity,
			},
		})
	}

	e.logger.Debug("bridge detection finished",
		"pairs_judged", len(pairs),
		"candidates", len(candidates))
	return candidates, nil
}

func bridgePrompt(a, b string) string {
	return fmt.Sprintf(`Is there a meaningful underlying theme connecting these two passages, beyond surface word overlap? If so, name it briefly in the explanation.

Passage A:
%s

Passage B:
%s`, a, b)
}

var _ Engine = (*Bridge)(nil)
