package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stitch-works/stitch/internal/store"
)

func testSettings(t *testing.T) *DBStore {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")},
		slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewStore(st)
}

func TestValidateKey(t *testing.T) {
	valid := []string{"detection.min_strength", "users.u-1.weights.semantic", "a_b-c.d"}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{"", ".leading", "trailing.", "has space", "has/slash"}
	for _, key := range invalid {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := testSettings(t)
	ctx := context.Background()

	if err := s.Set(ctx, "detection.min_strength", 0.4, "threshold"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entry, err := s.Get(ctx, "detection.min_strength")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || entry.Value != 0.4 {
		t.Fatalf("entry = %+v, want value 0.4", entry)
	}
	if entry.Description != "threshold" {
		t.Errorf("description = %q", entry.Description)
	}

	// Overwrite
	if err := s.Set(ctx, "detection.min_strength", 0.6, "raised"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	entry, err = s.Get(ctx, "detection.min_strength")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if entry.Value != 0.6 || entry.Description != "raised" {
		t.Fatalf("entry after overwrite = %+v", entry)
	}
}

func TestStoreNumericValuesSurviveReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	st, err := store.Open(store.Config{Driver: "sqlite", DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s := NewStore(st)

	// Bare numbers are the hard case: their serialized form looks
	// numeric to sqlite, so the column must keep them as text.
	values := map[string]any{
		"matcher.min_similarity":     0.42,
		"detection.weights.semantic": 1.0,
		"detection.max_pairs":        50,
	}
	for k, v := range values {
		if err := s.Set(ctx, k, v, ""); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	reopened, err := store.Open(store.Config{Driver: "sqlite", DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	s2 := NewStore(reopened)

	entry, err := s2.Get(ctx, "matcher.min_similarity")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if entry == nil || entry.Value != 0.42 {
		t.Fatalf("entry = %+v, want value 0.42", entry)
	}
	if got := Float(ctx, s2, "detection.weights.semantic", 0); got != 1.0 {
		t.Errorf("weight = %v, want 1.0", got)
	}
	if got := Float(ctx, s2, "detection.max_pairs", 0); got != 50 {
		t.Errorf("max pairs = %v, want 50", got)
	}

	// Seeding against an existing database is the restart path and
	// must read every stored row without error.
	if err := SeedDefaults(ctx, s2, logger); err != nil {
		t.Fatalf("SeedDefaults on existing database: %v", err)
	}
}

func TestStoreMissingKeyIsNil(t *testing.T) {
	s := testSettings(t)
	entry, err := s.Get(context.Background(), "never.set")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil for missing key, got %+v", entry)
	}
}

func TestStoreGetByPrefix(t *testing.T) {
	s := testSettings(t)
	ctx := context.Background()

	keys := map[string]any{
		"detection.weights.semantic": 1.0,
		"detection.weights.bridge":   0.5,
		"worker.max_retries":         5,
	}
	for k, v := range keys {
		if err := s.Set(ctx, k, v, ""); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	weights, err := s.GetByPrefix(ctx, "detection.weights.")
	if err != nil {
		t.Fatalf("GetByPrefix: %v", err)
	}
	if len(weights) != 2 {
		t.Fatalf("got %d entries, want 2", len(weights))
	}
	if _, ok := weights["worker.max_retries"]; ok {
		t.Error("prefix filter leaked an unrelated key")
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	s := testSettings(t)
	if err := s.Set(context.Background(), "bad key!", 1, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Set = %v, want ErrInvalidKey", err)
	}
}

func TestSeedDefaultsIdempotent(t *testing.T) {
	s := testSettings(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	if err := SeedDefaults(ctx, s, logger); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	// A user tweak survives reseeding.
	if err := s.Set(ctx, "detection.weights.bridge", 0.25, "tuned down"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := SeedDefaults(ctx, s, logger); err != nil {
		t.Fatalf("second SeedDefaults: %v", err)
	}

	entry, err := s.Get(ctx, "detection.weights.bridge")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Value != 0.25 {
		t.Fatalf("seeding overwrote user value: %+v", entry)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != len(DefaultEntries()) {
		t.Errorf("got %d entries, want %d", len(all), len(DefaultEntries()))
	}
}

func TestResetToDefault(t *testing.T) {
	s := testSettings(t)
	ctx := context.Background()

	if err := s.Set(ctx, "detection.min_strength", 0.9, "custom"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := ResetToDefault(ctx, s, "detection.min_strength"); err != nil {
		t.Fatalf("ResetToDefault: %v", err)
	}
	entry, err := s.Get(ctx, "detection.min_strength")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Value != 0.3 {
		t.Fatalf("value = %v, want default 0.3", entry.Value)
	}

	if err := ResetToDefault(ctx, s, "no.such.key"); !errors.Is(err, ErrNoDefault) {
		t.Fatalf("ResetToDefault unknown = %v, want ErrNoDefault", err)
	}
}

func TestTypedHelpers(t *testing.T) {
	s := testSettings(t)
	ctx := context.Background()

	if got := Float(ctx, s, "missing", 0.7); got != 0.7 {
		t.Errorf("Float fallback = %v", got)
	}
	if err := s.Set(ctx, "some.number", 0.42, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := Float(ctx, s, "some.number", 0); got != 0.42 {
		t.Errorf("Float = %v, want 0.42", got)
	}

	t.Setenv("STITCH_TEST_SECRET", "sk-test")
	if err := s.Set(ctx, "some.key", "${STITCH_TEST_SECRET}", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := String(ctx, s, "some.key", ""); got != "sk-test" {
		t.Errorf("String = %q, want env-resolved value", got)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("STITCH_TEST_A", "alpha")
	cases := map[string]string{
		"":                      "",
		"plain":                 "plain",
		"${STITCH_TEST_A}":      "alpha",
		"pre-${STITCH_TEST_A}":  "pre-alpha",
		"${STITCH_TEST_UNSET1}": "",
	}
	for in, want := range cases {
		if got := ResolveEnvVars(in); got != want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", in, got, want)
		}
	}
}
