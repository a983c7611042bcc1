package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	Username         string    `json:"username" gorm:"unique;size:64"`
	Roles            []string  `json:"roles" gorm:"serializer:json"`
	ActivePlaylistID *string   `json:"activePlaylistID" gorm:"size:36"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Media struct {
	ID         string          `json:"id" gorm:"primaryKey;size:36"`
	SourceType string          `json:"sourceType" gorm:"uniqueIndex:idx_media_source;size:32"`
	SourceID   string          `json:"sourceID" gorm:"uniqueIndex:idx_media_source;size:128"`
	SourceData json.RawMessage `json:"sourceData,omitempty" gorm:"type:text"`
	Artist     string          `json:"artist"`
	Title      string          `json:"title"`
	Duration   int             `json:"duration"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Playlist keeps its item order as a list of item IDs so cycling a track is a
// single row update.
type Playlist struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userID" gorm:"index;size:36"`
	Name      string    `json:"name"`
	ItemOrder []string  `json:"items" gorm:"serializer:json"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PlaylistItem struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	PlaylistID string    `json:"playlistID" gorm:"index;size:36"`
	MediaID    string    `json:"mediaID" gorm:"size:36"`
	Media      Media     `json:"media"`
	Artist     string    `json:"artist"`
	Title      string    `json:"title"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Snapshot copies the item into a value that stays stable if the item is
// edited or deleted while it plays.
func (i *PlaylistItem) Snapshot() MediaSnapshot {
	return MediaSnapshot{
		Artist:     i.Artist,
		Title:      i.Title,
		Start:      i.Start,
		End:        i.End,
		SourceType: i.Media.SourceType,
		SourceID:   i.Media.SourceID,
		SourceData: i.Media.SourceData,
	}
}

type HistoryEntry struct {
	ID         string          `json:"id" gorm:"primaryKey;size:36"`
	UserID     string          `json:"userID" gorm:"index;size:36"`
	PlaylistID string          `json:"playlistID" gorm:"size:36"`
	ItemID     string          `json:"itemID" gorm:"size:36"`
	Artist     string          `json:"artist"`
	Title      string          `json:"title"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
	SourceType string          `json:"sourceType"`
	SourceID   string          `json:"sourceID"`
	SourceData json.RawMessage `json:"sourceData,omitempty" gorm:"type:text"`
	PlayedAt   time.Time       `json:"playedAt" gorm:"index"`
	Upvotes    int             `json:"upvotes"`
	Downvotes  int             `json:"downvotes"`
	Favorites  int             `json:"favorites"`
}

func (h *HistoryEntry) Snapshot() MediaSnapshot {
	return MediaSnapshot{
		Artist:     h.Artist,
		Title:      h.Title,
		Start:      h.Start,
		End:        h.End,
		SourceType: h.SourceType,
		SourceID:   h.SourceID,
		SourceData: h.SourceData,
	}
}

// Feedback is the permanent vote record of one user for one play.
type Feedback struct {
	HistoryEntryID string    `json:"historyID" gorm:"primaryKey;size:36"`
	UserID         string    `json:"userID" gorm:"primaryKey;size:36"`
	Vote           int       `json:"vote"` // 1 for upvote, -1 for downvote, 0 for none
	Favorite       bool      `json:"favorite"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type ConfigEntry struct {
	Key       string          `gorm:"primaryKey;column:config_key;size:64"`
	Value     json.RawMessage `gorm:"type:text"`
	UpdatedAt time.Time
}
