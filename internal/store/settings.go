package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// Setting is one key/value row of runtime configuration. Values are
// JSON so a key can hold a number, string, bool, or structure.
//
// The column must be TEXT: under sqlite a JSON-typed column has
// numeric affinity, which coerces bare numbers like "0.42" to native
// values the JSON scanner then rejects on read-back. Settings are the
// one table storing scalar JSON, so only this column needs the pin.
type Setting struct {
	Key         string         `gorm:"primaryKey" json:"key"`
	Value       datatypes.JSON `gorm:"type:text" json:"value"`
	Description string         `json:"description"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// GetSetting returns a setting by key.
func (s *Store) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var setting Setting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		return nil, translateErr(err)
	}
	return &setting, nil
}

// SetSetting creates or replaces a setting.
func (s *Store) SetSetting(ctx context.Context, key string, value datatypes.JSON, description string) error {
	if key == "" {
		return fmt.Errorf("%w: setting requires a key", ErrValidation)
	}
	setting := Setting{Key: key, Value: value, Description: description}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
		}).
		Create(&setting).Error
}

// ListSettings returns settings whose key starts with prefix, ordered
// by key. An empty prefix returns everything.
func (s *Store) ListSettings(ctx context.Context, prefix string) ([]*Setting, error) {
	q := s.db.WithContext(ctx).Model(&Setting{})
	if prefix != "" {
		q = q.Where("key LIKE ?", prefix+"%")
	}
	var settings []*Setting
	if err := q.Order("key ASC").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// DeleteSetting removes a setting. Deleting a missing key is not an
// error.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&Setting{}, "key = ?", key).Error
}
