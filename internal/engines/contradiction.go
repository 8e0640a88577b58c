package engines

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/store"
)

const (
	// Contradictions live among topically-similar pairs: two passages
	// must be about the same thing to disagree about it.
	contradictionPrefilterLo = 0.55
	contradictionPrefilterHi = 1.0

	defaultContradictionMaxPairs    = 50
	defaultContradictionMinStrength = 0.5
)

// Contradiction detects chunk pairs that make opposing claims. An
// embedding prefilter narrows to topically-similar pairs, then the
// classifier judges each one.
type Contradiction struct {
	embedder   providers.Embedder
	classifier providers.Classifier
	logger     *slog.Logger
}

// NewContradiction wires the contradiction-detection engine.
func NewContradiction(embedder providers.Embedder, classifier providers.Classifier, logger *slog.Logger) *Contradiction {
	if logger == nil {
		logger = slog.Default()
	}
	return &Contradiction{embedder: embedder, classifier: classifier, logger: logger}
}

func (e *Contradiction) Type() store.ConnectionType {
	return store.ConnectionContradiction
}

func (e *Contradiction) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	if len(req.Sources) == 0 || len(req.Targets) == 0 {
		return nil, nil
	}
	minStrength := req.MinStrength
	if minStrength <= 0 {
		minStrength = defaultContradictionMinStrength
	}
	maxPairs := req.MaxPairs
	if maxPairs <= 0 {
		maxPairs = defaultContradictionMaxPairs
	}

	pairs, err := rankPairs(ctx, e.embedder, req, contradictionPrefilterLo, contradictionPrefilterHi, maxPairs)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		verdict, err := e.classifier.Judge(ctx, contradictionPrompt(p.src.Content, p.tgt.Content))
		if err != nil {
			return nil, fmt.Errorf("contradiction judgement failed: %w", err)
		}
		if !verdict.Related || verdict.Strength < minStrength {
			continue
		}
		candidates = append(candidates, Candidate{
			SourceChunkID: p.src.ID,
			TargetChunkID: p.tgt.ID,
			Strength:      verdict.Strength,
			Metadata: map[string]any{
				"explanation":       verdict.Explanation,
				"cosine_similarity": p.similarity,
			},
		})
	}

	e.logger.Debug("contradiction detection finished",
		"pairs_judged", len(pairs),
		"candidates", len(candidates))
	return candidates, nil
}

func contradictionPrompt(a, b string) string {
	return fmt.Sprintf(`Do these two passages make opposing or contradictory claims about the same subject?

Passage A:
%s

Passage B:
%s`, a, b)
}

var _ Engine = (*Contradiction)(nil)
