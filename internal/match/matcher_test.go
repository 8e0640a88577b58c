package match

import (
	"context"
	"strings"
	"testing"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	return NewMatcher(DefaultConfig(), nil)
}

func TestMatch_ExactTwoChunks(t *testing.T) {
	m := newTestMatcher(t)
	doc := "Hello world. Goodbye world."

	first := m.Match(context.Background(), doc, Request{Content: "Hello world."})
	if first.Confidence != ConfidenceExact {
		t.Fatalf("first chunk confidence = %s, want exact", first.Confidence)
	}
	if first.Start != 0 || first.End != 12 {
		t.Errorf("first chunk span = [%d, %d), want [0, 12)", first.Start, first.End)
	}

	second := m.Match(context.Background(), doc, Request{Content: "Goodbye world.", SearchHint: 12})
	if second.Confidence != ConfidenceExact {
		t.Fatalf("second chunk confidence = %s, want exact", second.Confidence)
	}
	if second.Start != 13 || second.End != 27 {
		t.Errorf("second chunk span = [%d, %d), want [13, 27)", second.Start, second.End)
	}
	if doc[second.Start:second.End] != "Goodbye world." {
		t.Errorf("span content = %q", doc[second.Start:second.End])
	}
}

func TestMatch_SearchHintDisambiguatesRepeats(t *testing.T) {
	m := newTestMatcher(t)
	doc := "abc abc"

	res := m.Match(context.Background(), doc, Request{Content: "abc", SearchHint: 3})
	if res.Confidence != ConfidenceExact {
		t.Fatalf("confidence = %s, want exact", res.Confidence)
	}
	if res.Start != 4 {
		t.Errorf("start = %d, want 4 (must not re-match claimed text)", res.Start)
	}
}

func TestMatch_CaseInsensitive(t *testing.T) {
	m := newTestMatcher(t)
	doc := "Some prose. HELLO WORLD. More prose."

	res := m.Match(context.Background(), doc, Request{Content: "hello world."})
	if res.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %s, want high", res.Confidence)
	}
	if res.Method != MethodCaseInsensitive {
		t.Errorf("method = %s, want %s", res.Method, MethodCaseInsensitive)
	}
	if doc[res.Start:res.End] != "HELLO WORLD." {
		t.Errorf("span content = %q", doc[res.Start:res.End])
	}
}

func TestMatch_NormalizedWhitespaceRun(t *testing.T) {
	m := newTestMatcher(t)
	doc := "prefix text. Hello   world. suffix text."

	res := m.Match(context.Background(), doc, Request{Content: "Hello world"})
	if res.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %s, want high", res.Confidence)
	}
	if res.Method != MethodNormalized {
		t.Errorf("method = %s, want %s", res.Method, MethodNormalized)
	}

	// The returned span must reflect the original three-space substring,
	// not the chunk's single-space length.
	want := "Hello   world"
	if got := doc[res.Start:res.End]; got != want {
		t.Errorf("span content = %q, want %q", got, want)
	}
	if res.End-res.Start != len(want) {
		t.Errorf("span length = %d, want %d", res.End-res.Start, len(want))
	}
}

func TestMatch_AggressiveNormalization(t *testing.T) {
	m := newTestMatcher(t)
	doc := "He said “stop” — then left."

	res := m.Match(context.Background(), doc, Request{Content: `He said "stop" - then left.`})
	if res.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %s, want high (got method %s)", res.Confidence, res.Method)
	}
	if res.Method != MethodAggressive {
		t.Errorf("method = %s, want %s", res.Method, MethodAggressive)
	}
}

func TestMatch_AnchorWindow(t *testing.T) {
	m := newTestMatcher(t)

	head := "In the opening chapter the author lays out a careful methodology, describing sources, sampling, and the reasoning behind every analytic choice made. "
	tail := "By the closing chapter those threads converge into a single argument, one the remaining sections test against further evidence as it accumulates."
	content := head + "the middle was reworded by cleanup " + tail
	doc := "intro. " + head + "a completely different middle section entirely " + tail + " outro."

	res := m.Match(context.Background(), doc, Request{Content: content})
	if res.Confidence != ConfidenceMedium {
		t.Fatalf("confidence = %s (method %s), want medium", res.Confidence, res.Method)
	}
	if res.Method != MethodAnchorWindow {
		t.Fatalf("method = %s, want %s", res.Method, MethodAnchorWindow)
	}
	wantStart := strings.Index(doc, head)
	wantEnd := strings.Index(doc, tail) + len(tail)
	if res.Start != wantStart {
		t.Errorf("start = %d, want %d", res.Start, wantStart)
	}
	if res.End != wantEnd {
		t.Errorf("end = %d, want %d", res.End, wantEnd)
	}
}

func TestMatch_SlidingWindow(t *testing.T) {
	m := newTestMatcher(t)

	original := "The quick brown fox jumps over the lazy dog near the river bank."
	// A few OCR-style corruptions keep every textual strategy from firing.
	corrupted := "The quikc brown fox jumps ovre the lazy dog near the rivre bank."

	doc := strings.Repeat("x", 50) + original + strings.Repeat("y", 50)

	res := m.Match(context.Background(), doc, Request{Content: corrupted})
	if res.Confidence != ConfidenceMedium {
		t.Fatalf("confidence = %s (method %s), want medium", res.Confidence, res.Method)
	}
	if res.Method != MethodSlidingWindow {
		t.Fatalf("method = %s, want %s", res.Method, MethodSlidingWindow)
	}
	if res.Score < 0.75 {
		t.Errorf("score = %v, want >= 0.75", res.Score)
	}
	// Window should land on (or very near) the original sentence.
	if res.Start < 45 || res.Start > 55 {
		t.Errorf("start = %d, want near 50", res.Start)
	}
}

func TestMatch_CharspanHint(t *testing.T) {
	m := newTestMatcher(t)

	filler := strings.Repeat("lorem ipsum dolor sit amet. ", 100)
	needle := "a distinctive sentence to find"
	doc := filler + needle + filler

	pos := len(filler)
	res := m.Match(context.Background(), doc, Request{
		Content:  needle,
		Charspan: &Span{Start: pos - 20, End: pos + len(needle) + 20},
	})
	if res.Confidence != ConfidenceExact {
		t.Fatalf("confidence = %s, want exact", res.Confidence)
	}
	if res.Start != pos {
		t.Errorf("start = %d, want %d", res.Start, pos)
	}
}

func TestMatch_CharspanRespectsSearchHint(t *testing.T) {
	m := newTestMatcher(t)
	doc := "abc filler filler abc"

	// Charspan points at the first occurrence, but the hint has already
	// claimed it; the match must land on the second.
	res := m.Match(context.Background(), doc, Request{
		Content:    "abc",
		SearchHint: 3,
		Charspan:   &Span{Start: 0, End: 3},
	})
	if res.Confidence != ConfidenceExact {
		t.Fatalf("confidence = %s, want exact", res.Confidence)
	}
	if res.Start != 18 {
		t.Errorf("start = %d, want 18", res.Start)
	}
}

func TestMatch_Interpolation(t *testing.T) {
	m := newTestMatcher(t)
	doc := strings.Repeat("a", 100)

	res := m.Match(context.Background(), doc, Request{
		Content:    "completely absent text zzzz",
		ChunkIndex: 2,
		ChunkCount: 4,
	})
	if res.Confidence != ConfidenceSynthetic {
		t.Fatalf("confidence = %s, want synthetic", res.Confidence)
	}
	if res.Method != MethodInterpolation {
		t.Errorf("method = %s, want %s", res.Method, MethodInterpolation)
	}
	if res.Start != 50 || res.End != 75 {
		t.Errorf("span = [%d, %d), want [50, 75)", res.Start, res.End)
	}
}

func TestMatch_FailedWithDiagnostics(t *testing.T) {
	m := newTestMatcher(t)
	doc := "short document text"

	res := m.Match(context.Background(), doc, Request{Content: "nothing like the document at all"})
	if res.Confidence != ConfidenceFailed {
		t.Fatalf("confidence = %s, want failed", res.Confidence)
	}
	if res.Found() {
		t.Error("Found() = true for failed result")
	}
	if res.Diagnostics == nil {
		t.Fatal("failed result must carry diagnostics")
	}
	if res.Diagnostics.ContentPreview == "" {
		t.Error("diagnostics missing content preview")
	}
}

func TestMatch_EmptyContent(t *testing.T) {
	m := newTestMatcher(t)
	res := m.Match(context.Background(), "some doc", Request{Content: "   "})
	if res.Confidence != ConfidenceFailed {
		t.Errorf("confidence = %s, want failed", res.Confidence)
	}
}

// stubEmbedder routes any text containing the keyword to one axis and
// everything else to another, giving the embedding layer a clean signal.
type stubEmbedder struct {
	keyword string
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		if strings.Contains(txt, s.keyword) {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestMatch_EmbeddingFallback(t *testing.T) {
	m := newTestMatcher(t)
	m.SetEmbedder(&stubEmbedder{keyword: "zebra"})

	// Content shares no literal text with the document, so every textual
	// strategy fails; only the embedding signal can place it.
	content := "zebra herds migrate across the plains each season"
	doc := strings.Repeat("q", 200) + "zebra " + strings.Repeat("w", len(content)) + strings.Repeat("r", 200)

	res := m.Match(context.Background(), doc, Request{Content: content})
	if res.Confidence != ConfidenceMedium {
		t.Fatalf("confidence = %s (method %s), want medium", res.Confidence, res.Method)
	}
	if res.Method != MethodEmbedding {
		t.Errorf("method = %s, want %s", res.Method, MethodEmbedding)
	}
	// The winning window must cover the keyword.
	if res.Start > 200 || res.End < 206 {
		t.Errorf("span = [%d, %d) does not cover keyword at [200, 206)", res.Start, res.End)
	}
}
