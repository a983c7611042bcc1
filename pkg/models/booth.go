package models

import (
	"encoding/json"
	"time"
)

type MediaSnapshot struct {
	Artist     string          `json:"artist"`
	Title      string          `json:"title"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
	SourceType string          `json:"sourceType"`
	SourceID   string          `json:"sourceID"`
	SourceData json.RawMessage `json:"sourceData,omitempty"`
}

// Duration is the playback length of the snapshot.
func (m MediaSnapshot) Duration() time.Duration {
	return time.Duration(m.End-m.Start) * time.Second
}

// CurrentPlay is the ephemeral record of what the booth is playing now.
type CurrentPlay struct {
	HistoryID  string        `json:"historyID"`
	UserID     string        `json:"userID"`
	PlaylistID string        `json:"playlistID"`
	ItemID     string        `json:"itemID"`
	Media      MediaSnapshot `json:"media"`
	StartedAt  time.Time     `json:"playedAt"`
}

// Remaining returns how much of the play is left at now. It is negative once
// the play should have ended.
func (p *CurrentPlay) Remaining(now time.Time) time.Duration {
	return p.Media.Duration() - now.Sub(p.StartedAt)
}

func (p *CurrentPlay) HistoryEntry() *HistoryEntry {
	return &HistoryEntry{
		ID:         p.HistoryID,
		UserID:     p.UserID,
		PlaylistID: p.PlaylistID,
		ItemID:     p.ItemID,
		Artist:     p.Media.Artist,
		Title:      p.Media.Title,
		Start:      p.Media.Start,
		End:        p.Media.End,
		SourceType: p.Media.SourceType,
		SourceID:   p.Media.SourceID,
		SourceData: p.Media.SourceData,
		PlayedAt:   p.StartedAt,
	}
}

type VoteStats struct {
	Upvotes   []string `json:"upvotes"`
	Downvotes []string `json:"downvotes"`
	Favorites []string `json:"favorites"`
}

type WaitlistSettings struct {
	Locked bool `json:"locked"`
	Cycle  bool `json:"cycle"`
}

func DefaultWaitlistSettings() WaitlistSettings {
	return WaitlistSettings{Locked: false, Cycle: true}
}
