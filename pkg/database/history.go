package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

func (db *DB) CreateHistoryEntry(ctx context.Context, entry *models.HistoryEntry) error {
	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}
	return nil
}

func (db *DB) GetHistoryEntry(ctx context.Context, id string) (*models.HistoryEntry, error) {
	var entry models.HistoryEntry
	if err := db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", errs.ErrHistoryEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return &entry, nil
}

// ListHistory returns the most recent plays first.
func (db *DB) ListHistory(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	var entries []*models.HistoryEntry
	if err := db.WithContext(ctx).
		Order("played_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

// SaveStats writes the final tally of a play: the counts on the history entry
// and one feedback row per user who voted or favorited.
func (db *DB) SaveStats(ctx context.Context, historyID string, stats models.VoteStats) error {
	feedback := make(map[string]*models.Feedback)
	get := func(userID string) *models.Feedback {
		f, ok := feedback[userID]
		if !ok {
			f = &models.Feedback{HistoryEntryID: historyID, UserID: userID}
			feedback[userID] = f
		}
		return f
	}
	for _, id := range stats.Upvotes {
		get(id).Vote = 1
	}
	for _, id := range stats.Downvotes {
		get(id).Vote = -1
	}
	for _, id := range stats.Favorites {
		get(id).Favorite = true
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.HistoryEntry{}).
			Where("id = ?", historyID).
			Updates(map[string]interface{}{
				"upvotes":   len(stats.Upvotes),
				"downvotes": len(stats.Downvotes),
				"favorites": len(stats.Favorites),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update history entry: %w", res.Error)
		}

		if len(feedback) == 0 {
			return nil
		}
		rows := make([]*models.Feedback, 0, len(feedback))
		for _, f := range feedback {
			rows = append(rows, f)
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "history_entry_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote", "favorite", "updated_at"}),
		}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to store feedback: %w", err)
		}
		return nil
	})
}

// MarkFavorite records a favorite right away, without waiting for the play to
// end.
func (db *DB) MarkFavorite(ctx context.Context, historyID, userID string) error {
	row := &models.Feedback{
		HistoryEntryID: historyID,
		UserID:         userID,
		Favorite:       true,
		UpdatedAt:      time.Now(),
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "history_entry_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"favorite", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to store favorite: %w", err)
	}
	return nil
}

func (db *DB) GetFeedback(ctx context.Context, historyID string) ([]*models.Feedback, error) {
	var rows []*models.Feedback
	if err := db.WithContext(ctx).Where("history_entry_id = ?", historyID).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return rows, nil
}
