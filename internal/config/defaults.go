package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default settings entries. These are seeded
// into the settings table on first run.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// Detection engine weights
		// ===================
		{
			Key:         "detection.weights.semantic",
			Value:       1.0,
			Description: "Global strength multiplier for the semantic similarity engine",
		},
		{
			Key:         "detection.weights.contradiction",
			Value:       1.0,
			Description: "Global strength multiplier for the contradiction detection engine",
		},
		{
			Key:         "detection.weights.bridge",
			Value:       1.0,
			Description: "Global strength multiplier for the thematic bridge engine",
		},
		{
			Key:         "detection.min_strength",
			Value:       0.3,
			Description: "Connections weaker than this are discarded",
		},
		{
			Key:         "detection.max_pairs",
			Value:       50,
			Description: "Classifier pair budget per LLM-backed engine pass",
		},

		// ===================
		// Matcher thresholds
		// ===================
		{
			Key:         "matcher.min_similarity",
			Value:       0.75,
			Description: "Minimum similarity for accepting a fuzzy window match",
		},
		{
			Key:         "matcher.embedding_threshold",
			Value:       0.86,
			Description: "Minimum cosine similarity for the embedding fallback",
		},

		// ===================
		// Provider
		// ===================
		{
			Key:         "openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "openai.embedding_model",
			Value:       "text-embedding-3-small",
			Description: "Model used for chunk embeddings",
		},
		{
			Key:         "openai.chat_model",
			Value:       "gpt-4o-mini",
			Description: "Model used for pair classification verdicts",
		},
		{
			Key:         "openai.rate_limit",
			Value:       8.0,
			Description: "Rate limit in requests per second for OpenAI",
		},

		// ===================
		// Worker
		// ===================
		{
			Key:         "worker.poll_interval_seconds",
			Value:       5,
			Description: "Sleep between empty job claim attempts",
		},
		{
			Key:         "worker.stale_after_minutes",
			Value:       30,
			Description: "Heartbeat age after which a processing job is reclaimable",
		},
		{
			Key:         "worker.max_retries",
			Value:       5,
			Description: "Maximum retry attempts for transient job failures",
		},
	}
}

// SeedDefaults seeds default settings entries into the store.
// This is idempotent - existing entries are not overwritten.
func SeedDefaults(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultEntries()
	seeded := 0
	skipped := 0

	for _, entry := range defaults {
		existing, err := store.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}

		if existing != nil {
			skipped++
			continue
		}

		if err := store.Set(ctx, entry.Key, entry.Value, entry.Description); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default settings", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(ctx, key, def.Value, def.Description)
}
