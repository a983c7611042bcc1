package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

// GetConfig returns the stored value for key, or nil if it was never set.
func (db *DB) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	var entry models.ConfigEntry
	if err := db.WithContext(ctx).First(&entry, "config_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return entry.Value, nil
}

func (db *DB) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	entry := &models.ConfigEntry{Key: key, Value: value}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}
