package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

func (db *DB) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	if playlist.ID == "" {
		playlist.ID = uuid.NewString()
	}
	if playlist.ItemOrder == nil {
		playlist.ItemOrder = []string{}
	}
	if err := db.WithContext(ctx).Create(playlist).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

func (db *DB) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	return getPlaylist(db.WithContext(ctx), id)
}

func getPlaylist(tx *gorm.DB, id string) (*models.Playlist, error) {
	var playlist models.Playlist
	if err := tx.First(&playlist, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", errs.ErrPlaylistNotFound, id)
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return &playlist, nil
}

func (db *DB) GetPlaylistItem(ctx context.Context, id string) (*models.PlaylistItem, error) {
	var item models.PlaylistItem
	if err := db.WithContext(ctx).Preload("Media").First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get playlist item %s: %w", id, err)
	}
	return &item, nil
}

// FirstItem returns the item at the head of the playlist.
func (db *DB) FirstItem(ctx context.Context, playlistID string) (*models.PlaylistItem, error) {
	playlist, err := db.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if len(playlist.ItemOrder) == 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrEmptyPlaylist, playlistID)
	}
	return db.GetPlaylistItem(ctx, playlist.ItemOrder[0])
}

// CycleFirstItem moves the head of the playlist to its end.
func (db *DB) CycleFirstItem(ctx context.Context, playlistID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := getPlaylist(tx, playlistID)
		if err != nil {
			return err
		}
		if len(playlist.ItemOrder) < 2 {
			return nil
		}
		order := make([]string, 0, len(playlist.ItemOrder))
		order = append(order, playlist.ItemOrder[1:]...)
		playlist.ItemOrder = append(order, playlist.ItemOrder[0])
		if err := tx.Save(playlist).Error; err != nil {
			return fmt.Errorf("failed to cycle playlist: %w", err)
		}
		return nil
	})
}

// findOrCreateMedia returns the media row for the snapshot's source, creating
// it on first sight.
func findOrCreateMedia(tx *gorm.DB, snap models.MediaSnapshot) (*models.Media, error) {
	var media models.Media
	err := tx.Where("source_type = ? AND source_id = ?", snap.SourceType, snap.SourceID).First(&media).Error
	if err == nil {
		return &media, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find media: %w", err)
	}

	media = models.Media{
		ID:         uuid.NewString(),
		SourceType: snap.SourceType,
		SourceID:   snap.SourceID,
		SourceData: snap.SourceData,
		Artist:     snap.Artist,
		Title:      snap.Title,
		Duration:   snap.End,
	}
	if err := tx.Create(&media).Error; err != nil {
		return nil, fmt.Errorf("failed to create media: %w", err)
	}
	return &media, nil
}

// AppendItem adds a new item built from snap to the end of the playlist.
func (db *DB) AppendItem(ctx context.Context, playlistID string, snap models.MediaSnapshot) (*models.PlaylistItem, error) {
	var item *models.PlaylistItem
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := getPlaylist(tx, playlistID)
		if err != nil {
			return err
		}

		media, err := findOrCreateMedia(tx, snap)
		if err != nil {
			return err
		}

		item = &models.PlaylistItem{
			ID:         uuid.NewString(),
			PlaylistID: playlist.ID,
			MediaID:    media.ID,
			Artist:     snap.Artist,
			Title:      snap.Title,
			Start:      snap.Start,
			End:        snap.End,
		}
		if err := tx.Omit("Media").Create(item).Error; err != nil {
			return fmt.Errorf("failed to create playlist item: %w", err)
		}
		item.Media = *media

		playlist.ItemOrder = append(playlist.ItemOrder, item.ID)
		if err := tx.Save(playlist).Error; err != nil {
			return fmt.Errorf("failed to update playlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
