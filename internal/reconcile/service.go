// Package reconcile computes authoritative chunk offsets against a
// document's canonical markdown, repairs drift, verifies the content
// invariant, and applies user corrections with overlap protection.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/match"
	"github.com/stitch-works/stitch/internal/store"
)

// ErrPermission is returned when a chunk is addressed through a
// document it does not belong to.
var ErrPermission = errors.New("chunk does not belong to document")

// Service orchestrates the matcher over a document's chunk set.
type Service struct {
	store   *store.Store
	blobs   blob.Store
	matcher *match.Matcher
	logger  *slog.Logger
}

// NewService wires the reconciliation service.
func NewService(st *store.Store, blobs blob.Store, matcher *match.Matcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, blobs: blobs, matcher: matcher, logger: logger}
}

// ChunkFailure is the diagnostic record for a chunk the matcher could
// not place.
type ChunkFailure struct {
	ChunkID        string `json:"chunk_id"`
	ChunkIndex     int    `json:"chunk_index"`
	ContentPreview string `json:"content_preview"`
	Detail         string `json:"detail"`
}

// Summary aggregates one reconciliation pass.
type Summary struct {
	DocumentID  string         `json:"document_id"`
	DryRun      bool           `json:"dry_run"`
	Total       int            `json:"total"`
	Repaired    int            `json:"repaired"`
	Exact       int            `json:"exact"`
	Fuzzy       int            `json:"fuzzy"`
	Synthetic   int            `json:"synthetic"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"success_rate"`
	Failures    []ChunkFailure `json:"failures,omitempty"`
}

// loadMarkdown fetches a document's canonical markdown from the blob
// store. The markdown is read-only for the whole pass.
func (s *Service) loadMarkdown(ctx context.Context, doc *store.Document) (string, error) {
	key := doc.StoragePath + "/" + blob.ContentName
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to load markdown for document %s: %w", doc.ID, err)
	}
	return string(data), nil
}

// Reconcile processes every current chunk of a document in index order,
// carrying a monotonic search hint so repeated text resolves to
// successive locations. With dryRun set, all matching runs but nothing
// is written.
func (s *Service) Reconcile(ctx context.Context, documentID string, dryRun bool) (*Summary, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	markdown, err := s.loadMarkdown(ctx, doc)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.ChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{DocumentID: documentID, DryRun: dryRun, Total: len(chunks)}
	hint := 0
	// prevAccepted carries the range accepted for the previous chunk in
	// this pass, which may differ from its stored offsets mid-repair.
	var prevAccepted *store.Chunk

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := match.Request{
			Content:    chunk.Content,
			SearchHint: hint,
			ChunkIndex: chunk.ChunkIndex,
			ChunkCount: len(chunks),
		}
		if chunk.CharspanStart != nil && chunk.CharspanEnd != nil {
			req.Charspan = &match.Span{Start: *chunk.CharspanStart, End: *chunk.CharspanEnd}
		}

		res := s.matcher.Match(ctx, markdown, req)

		switch {
		case !res.Found():
			summary.Failed++
			detail := "no strategy produced a match"
			if res.Diagnostics != nil {
				detail = fmt.Sprintf("windows=%d best_similarity=%.3f",
					res.Diagnostics.WindowsSearched, res.Diagnostics.BestSimilarity)
			}
			summary.Failures = append(summary.Failures, ChunkFailure{
				ChunkID:        chunk.ID,
				ChunkIndex:     chunk.ChunkIndex,
				ContentPreview: preview(chunk.Content),
				Detail:         detail,
			})
			// Prior offsets stay untouched; a failed match is data, not
			// an abort.
			continue

		case res.Confidence == match.ConfidenceSynthetic:
			summary.Synthetic++

		case res.Confidence == match.ConfidenceExact:
			summary.Exact++

		default:
			summary.Fuzzy++
		}

		content := chunk.Content
		if res.Confidence != match.ConfidenceSynthetic {
			// The markdown slice is authoritative: accepting a fuzzy match
			// rewrites content so the invariant holds.
			content = markdown[res.Start:res.End]

			if conflicts := DetectOverlaps(res.Start, res.End, prevAccepted); len(conflicts) > 0 {
				// Advisory during bulk repair: surfaced in logs, the
				// monotonic hint keeps later chunks from regressing.
				s.logger.Warn("reconciled range overlaps predecessor",
					"document_id", documentID,
					"chunk_index", chunk.ChunkIndex,
					"start", res.Start, "end", res.End,
					"prev_start", prevAccepted.StartOffset,
					"prev_end", prevAccepted.EndOffset)
			}
			if res.End > hint {
				hint = res.End
			}
			accepted := *chunk
			accepted.StartOffset, accepted.EndOffset = res.Start, res.End
			prevAccepted = &accepted
		}

		// Same offsets and content mean no repair. A confidence-tier
		// difference alone is not drift: a rewritten fuzzy chunk matches
		// exactly on the next pass, and chasing that upgrade would break
		// run-twice-writes-nothing. Only failed/synthetic tiers get
		// promoted in place.
		sameTier := chunk.PositionConfidence == res.Confidence
		realTier := chunk.PositionConfidence != match.ConfidenceFailed &&
			chunk.PositionConfidence != match.ConfidenceSynthetic
		unchanged := chunk.StartOffset == res.Start &&
			chunk.EndOffset == res.End &&
			chunk.Content == content &&
			(sameTier || realTier)
		if unchanged {
			continue
		}

		summary.Repaired++
		if dryRun {
			continue
		}

		pos := store.ChunkPosition{
			StartOffset:        res.Start,
			EndOffset:          res.End,
			PositionConfidence: res.Confidence,
			PositionMethod:     res.Method,
		}
		if content != chunk.Content {
			pos.Content = content
		}
		if err := s.store.UpdateChunkPosition(ctx, chunk.ID, pos); err != nil {
			return nil, fmt.Errorf("failed to write offsets for chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Total-summary.Failed) / float64(summary.Total)
	} else {
		summary.SuccessRate = 1
	}

	s.logger.Info("reconciliation pass finished",
		"document_id", documentID,
		"dry_run", dryRun,
		"total", summary.Total,
		"repaired", summary.Repaired,
		"failed", summary.Failed)
	return summary, nil
}

// ChunkVerification is one chunk's result from the content-invariant
// oracle.
type ChunkVerification struct {
	ChunkID        string           `json:"chunk_id"`
	ChunkIndex     int              `json:"chunk_index"`
	Passed         bool             `json:"passed"`
	Confidence     match.Confidence `json:"confidence"`
	ContentPreview string           `json:"content_preview,omitempty"`
	SlicePreview   string           `json:"slice_preview,omitempty"`
}

// VerifyReport aggregates the oracle over a document.
type VerifyReport struct {
	DocumentID  string              `json:"document_id"`
	Total       int                 `json:"total"`
	Passed      int                 `json:"passed"`
	Failed      int                 `json:"failed"`
	Skipped     int                 `json:"skipped"`
	SuccessRate float64             `json:"success_rate"`
	ByTier      map[string]int      `json:"by_tier"`
	Mismatches  []ChunkVerification `json:"mismatches,omitempty"`
}

// Verify runs the read-only content-invariant oracle: for every chunk
// whose confidence claims a real textual match, the markdown slice at
// its offsets must equal its content byte for byte. Synthetic and
// failed chunks are reported but exempt from the equality check.
func (s *Service) Verify(ctx context.Context, documentID string) (*VerifyReport, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	markdown, err := s.loadMarkdown(ctx, doc)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.ChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		DocumentID: documentID,
		Total:      len(chunks),
		ByTier:     map[string]int{},
	}
	for _, chunk := range chunks {
		report.ByTier[string(chunk.PositionConfidence)]++

		switch chunk.PositionConfidence {
		case match.ConfidenceSynthetic, match.ConfidenceFailed:
			report.Skipped++
			continue
		}

		ok := chunk.StartOffset >= 0 &&
			chunk.EndOffset <= len(markdown) &&
			chunk.EndOffset > chunk.StartOffset &&
			markdown[chunk.StartOffset:chunk.EndOffset] == chunk.Content
		if ok {
			report.Passed++
			continue
		}

		report.Failed++
		v := ChunkVerification{
			ChunkID:        chunk.ID,
			ChunkIndex:     chunk.ChunkIndex,
			Confidence:     chunk.PositionConfidence,
			ContentPreview: preview(chunk.Content),
		}
		if chunk.StartOffset >= 0 && chunk.EndOffset <= len(markdown) && chunk.EndOffset > chunk.StartOffset {
			v.SlicePreview = preview(markdown[chunk.StartOffset:chunk.EndOffset])
		}
		report.Mismatches = append(report.Mismatches, v)
	}

	checked := report.Total - report.Skipped
	if checked > 0 {
		report.SuccessRate = float64(report.Passed) / float64(checked)
	} else {
		report.SuccessRate = 1
	}
	return report, nil
}

func preview(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
