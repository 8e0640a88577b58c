package match

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"collapses runs", "a  b\t\nc", "a b c"},
		{"trims", "  padded  ", "padded"},
		{"empty", "", ""},
		{"only whitespace", " \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Hello   World",
		"  MIXED case\t\ttext  ",
		"already normalized",
		"",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeAggressive(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"curly quotes", "it’s “quoted”", `it's "quoted"`},
		{"em dash", "one—two", "one-two"},
		{"en dash", "1–2", "1-2"},
		{"soft hyphen dropped", "hy­phen", "hyphen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAggressive(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeAggressive(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeWithMap_OffsetMapping(t *testing.T) {
	// "Hello   world": the three-space run must map the single
	// normalized space back to the full run.
	in := "Hello   world"
	norm, starts, ends := normalizeWithMap(in, normOpts{lower: true, collapseWS: true})

	if norm != "hello world" {
		t.Fatalf("normalized = %q, want %q", norm, "hello world")
	}
	if len(starts) != len(norm) || len(ends) != len(norm) {
		t.Fatalf("map lengths %d/%d, want %d", len(starts), len(ends), len(norm))
	}

	// First char maps to offset 0.
	if starts[0] != 0 {
		t.Errorf("starts[0] = %d, want 0", starts[0])
	}
	// The collapsed space (normalized index 5) spans original [5, 8).
	if starts[5] != 5 || ends[5] != 8 {
		t.Errorf("space maps to [%d, %d), want [5, 8)", starts[5], ends[5])
	}
	// Final char maps past the end of the original string.
	if ends[len(ends)-1] != len(in) {
		t.Errorf("ends[last] = %d, want %d", ends[len(ends)-1], len(in))
	}
}

func TestNormalizeWithMap_LeadingTrailingWhitespace(t *testing.T) {
	norm, starts, _ := normalizeWithMap("  ab  ", normOpts{collapseWS: true})
	if norm != "ab" {
		t.Fatalf("normalized = %q, want %q", norm, "ab")
	}
	if starts[0] != 2 {
		t.Errorf("starts[0] = %d, want 2", starts[0])
	}
}
