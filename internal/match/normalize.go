package match

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, collapses all whitespace runs to a single
// space, and trims. The result is only ever used for comparison and is
// never persisted as chunk content.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	norm, _, _ := normalizeWithMap(s, normOpts{lower: true, collapseWS: true})
	return norm
}

// NormalizeAggressive applies Normalize plus typographic folding: curly
// quotes become straight quotes, en/em dashes become hyphens, and soft
// hyphens are dropped. This absorbs the differences an AI cleanup pass
// tends to introduce around punctuation.
func NormalizeAggressive(s string) string {
	norm, _, _ := normalizeWithMap(s, normOpts{lower: true, collapseWS: true, aggressive: true})
	return norm
}

// normOpts selects which transforms normalizeWithMap applies.
type normOpts struct {
	lower      bool
	collapseWS bool
	aggressive bool
}

// foldRune applies aggressive typographic folding to a single rune.
// Returns -1 when the rune should be dropped entirely.
func foldRune(r rune) rune {
	switch r {
	case '‘', '’', '‚', '‹', '›':
		return '\''
	case '“', '”', '„', '«', '»':
		return '"'
	case '–', '—', '―', '−':
		return '-'
	case '­': // soft hyphen
		return -1
	case '…':
		// Ellipsis folds to a period; the two dropped dots are absorbed
		// by whitespace-insensitive comparison downstream.
		return '.'
	}
	return r
}

// normalizeWithMap produces the normalized form of s along with byte-offset
// maps back into the original string. starts[i] is the original byte offset
// where normalized byte i begins; ends[i] is the offset just past the
// original bytes it consumed. A collapsed whitespace run maps the single
// normalized space to the full run, which is what lets a fuzzy match report
// a span whose length reflects the original text rather than the
// normalized chunk.
func normalizeWithMap(s string, opts normOpts) (string, []int, []int) {
	var b strings.Builder
	b.Grow(len(s))
	starts := make([]int, 0, len(s))
	ends := make([]int, 0, len(s))

	inSpace := false
	spaceStart := 0
	pendingSpace := false
	emitted := false

	flushSpace := func(end int) {
		if !pendingSpace || !emitted {
			pendingSpace = false
			return
		}
		b.WriteByte(' ')
		starts = append(starts, spaceStart)
		ends = append(ends, end)
		pendingSpace = false
	}

	for i, r := range s {
		size := len(string(r))

		if opts.collapseWS && unicode.IsSpace(r) {
			if !inSpace {
				inSpace = true
				spaceStart = i
				pendingSpace = true
			}
			continue
		}
		inSpace = false

		if opts.aggressive {
			r = foldRune(r)
			if r == -1 {
				continue
			}
		}
		if opts.lower {
			r = unicode.ToLower(r)
		}

		// Leading whitespace trims away; interior runs collapse to one space.
		flushSpace(i)

		for _, bb := range []byte(string(r)) {
			b.WriteByte(bb)
			starts = append(starts, i)
			ends = append(ends, i+size)
		}
		emitted = true
	}

	// Trailing whitespace is dropped (pendingSpace never flushed).
	return b.String(), starts, ends
}
