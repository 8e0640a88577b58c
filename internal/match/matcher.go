package match

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Confidence ranks how trustworthy a computed offset range is.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceSynthetic Confidence = "synthetic"
	ConfidenceFailed    Confidence = "failed"
)

// Method identifies which strategy located a chunk.
type Method string

const (
	MethodExact           Method = "exact_match"
	MethodCaseInsensitive Method = "case_insensitive"
	MethodNormalized      Method = "normalized"
	MethodAggressive      Method = "aggressive_normalized"
	MethodAnchorWindow    Method = "anchor_window"
	MethodSlidingWindow   Method = "sliding_window"
	MethodEmbedding       Method = "embedding"
	MethodInterpolation   Method = "interpolation"
	MethodNone            Method = "none"
)

// Span is a half-open byte range [Start, End) into a document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Request describes one chunk to locate in a document.
type Request struct {
	// Content is the chunk text as produced by the external chunker.
	Content string

	// SearchHint is the monotonic cursor: no strategy except
	// interpolation will match before this offset. It both speeds up
	// searches and keeps repeated text from matching an already-claimed
	// location.
	SearchHint int

	// Charspan is an optional approximate range from upstream extraction
	// metadata. When set, an expanded window around it is searched before
	// any full-document scan.
	Charspan *Span

	// ChunkIndex and ChunkCount position this chunk among its siblings.
	// Only used by the interpolation fallback.
	ChunkIndex int
	ChunkCount int
}

// Diagnostics carries failure context so a human can decide what to do.
type Diagnostics struct {
	WindowsSearched int     `json:"windows_searched"`
	BestSimilarity  float64 `json:"best_similarity"`
	ContentPreview  string  `json:"content_preview"`
	DocumentPreview string  `json:"document_preview"`
}

// Result is a located range with its confidence tier and method.
type Result struct {
	Start       int          `json:"start"`
	End         int          `json:"end"`
	Confidence  Confidence   `json:"confidence"`
	Method      Method       `json:"method"`
	Score       float64      `json:"score"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Found reports whether the matcher located the chunk at all.
// Synthetic results count as found but are not trustworthy.
func (r Result) Found() bool {
	return r.Confidence != ConfidenceFailed
}

// Embedder is the black-box embedding function used by the
// embeddings-assisted fallback layer.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds matcher tuning parameters.
type Config struct {
	// MinSimilarity is the floor for accepting a sliding-window match.
	MinSimilarity float64

	// ShortTextMinSimilarity replaces MinSimilarity for content shorter
	// than ShortTextLen bytes, where small edits weigh heavier.
	ShortTextMinSimilarity float64
	ShortTextLen           int

	// EarlyExitSimilarity stops the sliding-window scan once a window
	// scores above it.
	EarlyExitSimilarity float64

	// AnchorLength is how many bytes of the chunk head and tail the
	// anchor-window strategy uses.
	AnchorLength int

	// CharspanPadding and CharspanMaxPadding bound the expansion of the
	// upstream coordinate hint window.
	CharspanPadding    int
	CharspanMaxPadding int

	// MaxSlidingWindows caps the O(n*k) scan on large documents.
	MaxSlidingWindows int

	// EmbeddingMinScore is the cosine floor for the embeddings-assisted
	// layer; EmbeddingMaxCandidates caps how many windows get embedded.
	EmbeddingMinScore      float64
	EmbeddingMaxCandidates int
}

// DefaultConfig returns the standard matcher tuning.
func DefaultConfig() Config {
	return Config{
		MinSimilarity:          0.75,
		ShortTextMinSimilarity: 0.90,
		ShortTextLen:           50,
		EarlyExitSimilarity:    0.95,
		AnchorLength:           100,
		CharspanPadding:        100,
		CharspanMaxPadding:     1000,
		MaxSlidingWindows:      20000,
		EmbeddingMinScore:      0.86,
		EmbeddingMaxCandidates: 64,
	}
}

// Matcher locates chunk content inside a canonical markdown document
// using a layered strategy cascade. Cheap strategies run first; each
// successive layer trades cost for fault tolerance.
type Matcher struct {
	cfg      Config
	embedder Embedder
	logger   *slog.Logger
}

// NewMatcher creates a matcher with the given config.
func NewMatcher(cfg Config, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{cfg: cfg, logger: logger}
}

// SetEmbedder enables the embeddings-assisted fallback layer.
func (m *Matcher) SetEmbedder(e Embedder) {
	m.embedder = e
}

// Match runs the strategy cascade and returns the first success.
// Failures are returned as data (ConfidenceFailed), never as an error.
func (m *Matcher) Match(ctx context.Context, doc string, req Request) Result {
	diag := &Diagnostics{
		ContentPreview: preview(req.Content, 120),
	}

	content := req.Content
	if strings.TrimSpace(content) == "" {
		return Result{Confidence: ConfidenceFailed, Method: MethodNone, Diagnostics: diag}
	}

	hint := req.SearchHint
	if hint < 0 {
		hint = 0
	}
	if hint > len(doc) {
		hint = len(doc)
	}
	diag.DocumentPreview = preview(doc[hint:], 120)

	// Charspan hint: search an expanded window around the upstream
	// coordinate estimate before touching the whole document. This both
	// disambiguates repeated text and avoids O(len(doc)) scans.
	if req.Charspan != nil {
		for _, pad := range []int{m.cfg.CharspanPadding, m.cfg.CharspanMaxPadding} {
			ws := req.Charspan.Start - pad
			if ws < hint {
				ws = hint
			}
			we := req.Charspan.End + pad
			if we > len(doc) {
				we = len(doc)
			}
			if ws >= we {
				continue
			}
			if res, ok := m.textCascade(doc[ws:we], content, diag); ok {
				res.Start += ws
				res.End += ws
				return res
			}
		}
	}

	if res, ok := m.textCascade(doc[hint:], content, diag); ok {
		res.Start += hint
		res.End += hint
		return res
	}

	if m.embedder != nil {
		if res, ok := m.embeddingSearch(ctx, doc, hint, content, diag); ok {
			return res
		}
	}

	// Interpolation is the last resort: assign a range proportional to
	// the chunk's position among its siblings. The content invariant is
	// NOT guaranteed to hold; callers must flag the result for mandatory
	// user validation.
	if req.ChunkCount > 0 && req.ChunkIndex >= 0 && req.ChunkIndex < req.ChunkCount {
		start := len(doc) * req.ChunkIndex / req.ChunkCount
		end := len(doc) * (req.ChunkIndex + 1) / req.ChunkCount
		if end <= start {
			end = start + 1
		}
		if end > len(doc) {
			end = len(doc)
		}
		if start < end {
			m.logger.Warn("matcher fell back to interpolation",
				"chunk_index", req.ChunkIndex,
				"best_similarity", diag.BestSimilarity,
			)
			return Result{
				Start:      start,
				End:        end,
				Confidence: ConfidenceSynthetic,
				Method:     MethodInterpolation,
			}
		}
	}

	return Result{Confidence: ConfidenceFailed, Method: MethodNone, Diagnostics: diag}
}

// textCascade runs the textual strategies (exact through sliding window)
// against a document slice. Returned offsets are relative to the slice.
func (m *Matcher) textCascade(doc, content string, diag *Diagnostics) (Result, bool) {
	// 1. Exact substring.
	if idx := strings.Index(doc, content); idx >= 0 {
		return Result{
			Start:      idx,
			End:        idx + len(content),
			Confidence: ConfidenceExact,
			Method:     MethodExact,
			Score:      1.0,
		}, true
	}

	// 2. Case-insensitive exact. Slightly discounted from exact because
	// casing differences imply the cleanup pass touched this text.
	if res, ok := m.mappedSearch(doc, content, normOpts{lower: true}, MethodCaseInsensitive, 0.95); ok {
		return res, true
	}

	// 3. Whitespace-normalized fuzzy.
	if res, ok := m.mappedSearch(doc, content, normOpts{lower: true, collapseWS: true}, MethodNormalized, 0.9); ok {
		return res, true
	}

	// 4. Aggressive normalization (quotes, dashes, soft hyphens).
	if res, ok := m.mappedSearch(doc, content, normOpts{lower: true, collapseWS: true, aggressive: true}, MethodAggressive, 0.9); ok {
		return res, true
	}

	// 5. Anchor window: locate the chunk's head and tail independently.
	if res, ok := m.anchorSearch(doc, content); ok {
		return res, true
	}

	// 6. Sliding-window Levenshtein.
	if res, ok := m.slidingSearch(doc, content, diag); ok {
		return res, true
	}

	return Result{}, false
}

// mappedSearch normalizes both the document and the chunk content with
// the given transform, finds the normalized needle by substring search,
// then maps the normalized hit back to original byte offsets. The
// returned span length reflects the original document text, including
// any whitespace runs that collapsed during normalization.
func (m *Matcher) mappedSearch(doc, content string, opts normOpts, method Method, score float64) (Result, bool) {
	normDoc, starts, ends := normalizeWithMap(doc, opts)
	needle, _, _ := normalizeWithMap(content, opts)
	if needle == "" {
		return Result{}, false
	}

	idx := strings.Index(normDoc, needle)
	if idx < 0 {
		return Result{}, false
	}

	start := starts[idx]
	end := ends[idx+len(needle)-1]
	return Result{
		Start:      start,
		End:        end,
		Confidence: ConfidenceHigh,
		Method:     method,
		Score:      score,
	}, true
}

// anchorSearch locates the first and last AnchorLength bytes of the
// chunk independently and spans between them. Useful when the middle of
// a long chunk was reworded but its edges survived.
func (m *Matcher) anchorSearch(doc, content string) (Result, bool) {
	trimmed := strings.TrimSpace(content)
	anchorLen := m.cfg.AnchorLength
	if len(trimmed) < anchorLen*2 {
		// Short chunks gain nothing over the sliding window.
		return Result{}, false
	}

	first := trimmed[:anchorLen]
	last := trimmed[len(trimmed)-anchorLen:]

	firstIdx := strings.Index(doc, first)
	if firstIdx < 0 {
		return Result{}, false
	}

	searchFrom := firstIdx + len(first)
	lastIdx := strings.Index(doc[searchFrom:], last)
	if lastIdx < 0 {
		return Result{}, false
	}

	start := firstIdx
	end := searchFrom + lastIdx + len(last)

	// Reject spans wildly out of proportion to the chunk; the tail
	// anchor probably matched a repeat much later in the document.
	span := end - start
	if span < len(content)/2 || span > len(content)*3 {
		return Result{}, false
	}

	return Result{
		Start:      start,
		End:        end,
		Confidence: ConfidenceMedium,
		Method:     MethodAnchorWindow,
		Score:      0.8,
	}, true
}

// slidingSearch scans candidate windows sized to the chunk and scores
// each with edit-distance similarity. O(n*k) and reserved for degraded
// input (OCR noise, extraction drift).
func (m *Matcher) slidingSearch(doc, content string, diag *Diagnostics) (Result, bool) {
	wlen := len(content)
	if wlen == 0 || wlen > len(doc) {
		return Result{}, false
	}

	threshold := m.cfg.MinSimilarity
	if wlen < m.cfg.ShortTextLen {
		threshold = m.cfg.ShortTextMinSimilarity
	}

	// Adaptive stride: finer for short text, coarser for long.
	step := wlen / 20
	if step < 5 {
		step = 5
	}
	if step > 10 {
		step = 10
	}

	normContent := NormalizeAggressive(content)

	bestScore := -1.0
	bestIdx := -1
	windows := 0

	for i := 0; i+wlen <= len(doc); i += step {
		if windows >= m.cfg.MaxSlidingWindows {
			break
		}
		windows++

		score := Similarity(normContent, NormalizeAggressive(doc[i:i+wlen]))
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
		if score > m.cfg.EarlyExitSimilarity {
			break
		}
	}

	diag.WindowsSearched += windows
	if bestScore > diag.BestSimilarity {
		diag.BestSimilarity = bestScore
	}

	if bestIdx < 0 || bestScore < threshold {
		return Result{}, false
	}

	return Result{
		Start:      bestIdx,
		End:        bestIdx + wlen,
		Confidence: ConfidenceMedium,
		Method:     MethodSlidingWindow,
		Score:      bestScore,
	}, true
}

// embeddingSearch embeds the chunk and a bounded set of candidate
// windows past the hint, then picks the best cosine match. The winner
// is refined with a local sliding-window pass so offsets line up with
// text rather than embedding geometry.
func (m *Matcher) embeddingSearch(ctx context.Context, doc string, hint int, content string, diag *Diagnostics) (Result, bool) {
	wlen := len(content)
	if wlen == 0 || hint+wlen > len(doc) {
		return Result{}, false
	}

	stride := wlen / 2
	if stride < 1 {
		stride = 1
	}

	type candidate struct{ start, end int }
	var cands []candidate
	for i := hint; i+wlen <= len(doc) && len(cands) < m.cfg.EmbeddingMaxCandidates; i += stride {
		cands = append(cands, candidate{i, i + wlen})
	}
	if len(cands) == 0 {
		return Result{}, false
	}

	texts := make([]string, 0, len(cands)+1)
	texts = append(texts, content)
	for _, c := range cands {
		texts = append(texts, doc[c.start:c.end])
	}

	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		m.logger.Warn("embedding search unavailable", "error", err)
		return Result{}, false
	}

	target := vecs[0]
	bestScore := -1.0
	bestIdx := -1
	for i := range cands {
		score := Cosine(target, vecs[i+1])
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestScore > diag.BestSimilarity {
		diag.BestSimilarity = bestScore
	}
	if bestIdx < 0 || bestScore < m.cfg.EmbeddingMinScore {
		return Result{}, false
	}

	// Refine within the winning window plus a stride of slack on each side.
	ws := cands[bestIdx].start - stride
	if ws < hint {
		ws = hint
	}
	we := cands[bestIdx].end + stride
	if we > len(doc) {
		we = len(doc)
	}
	if res, ok := m.slidingSearch(doc[ws:we], content, diag); ok {
		res.Start += ws
		res.End += ws
		res.Method = MethodEmbedding
		return res, true
	}

	return Result{
		Start:      cands[bestIdx].start,
		End:        cands[bestIdx].end,
		Confidence: ConfidenceMedium,
		Method:     MethodEmbedding,
		Score:      bestScore,
	}, true
}

// Cosine computes cosine similarity between two vectors.
// Returns 0 for mismatched or zero-length vectors.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
