package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/store"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
// This protects against typos and malformed keys.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	// Don't allow keys starting or ending with dots
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Store provides access to runtime settings persisted in the database.
// No caching - reads fresh each time.
type Store interface {
	// Get returns a single entry by key, or nil when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set creates or updates an entry.
	Set(ctx context.Context, key string, value any, description string) error

	// GetAll returns all entries.
	GetAll(ctx context.Context) (map[string]Entry, error)

	// GetByPrefix returns entries matching the prefix.
	GetByPrefix(ctx context.Context, prefix string) (map[string]Entry, error)

	// Delete removes an entry.
	Delete(ctx context.Context, key string) error
}

// Entry represents a single settings entry.
type Entry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
}

// DBStore implements Store on the relational settings table.
type DBStore struct {
	st *store.Store
}

// NewStore creates a database-backed settings store.
func NewStore(st *store.Store) *DBStore {
	return &DBStore{st: st}
}

// Get returns a single entry by key.
func (s *DBStore) Get(ctx context.Context, key string) (*Entry, error) {
	row, err := s.st.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rowToEntry(row)
}

// Set creates or updates an entry.
func (s *DBStore) Set(ctx context.Context, key string, value any, description string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting value: %w", err)
	}
	return s.st.SetSetting(ctx, key, datatypes.JSON(encoded), description)
}

// GetAll returns all entries.
func (s *DBStore) GetAll(ctx context.Context) (map[string]Entry, error) {
	return s.GetByPrefix(ctx, "")
}

// GetByPrefix returns entries matching the prefix.
func (s *DBStore) GetByPrefix(ctx context.Context, prefix string) (map[string]Entry, error) {
	rows, err := s.st.ListSettings(ctx, prefix)
	if err != nil {
		return nil, err
	}
	result := make(map[string]Entry, len(rows))
	for _, row := range rows {
		entry, err := rowToEntry(row)
		if err != nil {
			return nil, err
		}
		result[row.Key] = *entry
	}
	return result, nil
}

// Delete removes an entry by key. Deleting a missing key is not an error.
func (s *DBStore) Delete(ctx context.Context, key string) error {
	return s.st.DeleteSetting(ctx, key)
}

func rowToEntry(row *store.Setting) (*Entry, error) {
	entry := &Entry{Key: row.Key, Description: row.Description}
	if len(row.Value) > 0 {
		if err := json.Unmarshal(row.Value, &entry.Value); err != nil {
			return nil, fmt.Errorf("corrupt setting value for %q: %w", row.Key, err)
		}
	}
	return entry, nil
}

// Float reads a numeric setting, falling back when the key is absent
// or holds something that is not a number.
func Float(ctx context.Context, s Store, key string, fallback float64) float64 {
	entry, err := s.Get(ctx, key)
	if err != nil || entry == nil {
		return fallback
	}
	if v, ok := entry.Value.(float64); ok {
		return v
	}
	return fallback
}

// String reads a string setting with a fallback, resolving ${ENV_VAR}
// references.
func String(ctx context.Context, s Store, key, fallback string) string {
	entry, err := s.Get(ctx, key)
	if err != nil || entry == nil {
		return fallback
	}
	if v, ok := entry.Value.(string); ok {
		return ResolveEnvVars(v)
	}
	return fallback
}

// UserWeightKey builds the per-user override key for an engine weight.
// Global weights live under "detection.weights.<engine>"; user
// overrides under "users.<id>.weights.<engine>".
func UserWeightKey(userID, engine string) string {
	return "users." + sanitizeKeyPart(userID) + ".weights." + engine
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return '-'
	}, s)
}
