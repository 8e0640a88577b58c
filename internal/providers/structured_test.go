package providers

import (
	"strings"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		v, err := ParseVerdict(`{"related": true, "strength": 0.82, "explanation": "shared theme"}`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !v.Related || v.Strength != 0.82 || v.Explanation != "shared theme" {
			t.Fatalf("unexpected verdict: %+v", v)
		}
	})

	t.Run("code fenced", func(t *testing.T) {
		raw := "```json\n{\"related\": false, \"strength\": 0}\n```"
		v, err := ParseVerdict(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if v.Related || v.Strength != 0 {
			t.Fatalf("unexpected verdict: %+v", v)
		}
	})

	t.Run("surrounding prose", func(t *testing.T) {
		raw := `Here is my answer: {"related": true, "strength": 0.5} hope that helps`
		v, err := ParseVerdict(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !v.Related {
			t.Fatalf("unexpected verdict: %+v", v)
		}
	})

	t.Run("rejects out-of-range strength", func(t *testing.T) {
		_, err := ParseVerdict(`{"related": true, "strength": 1.5}`)
		if err == nil || !strings.Contains(err.Error(), "schema") {
			t.Fatalf("expected schema rejection, got %v", err)
		}
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		if _, err := ParseVerdict(`{"related": true}`); err == nil {
			t.Fatal("expected rejection for missing strength")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := ParseVerdict("no json here"); err == nil {
			t.Fatal("expected rejection for non-JSON output")
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		if _, err := ParseVerdict(`{"related": true, "strength": 0.3, "extra": 1}`); err == nil {
			t.Fatal("expected rejection for additional properties")
		}
	})
}
