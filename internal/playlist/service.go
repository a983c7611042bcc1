package playlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

// Store is the relational storage the playlist service needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SetActivePlaylist(ctx context.Context, userID, playlistID string) error
	CreatePlaylist(ctx context.Context, playlist *models.Playlist) error
	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)
	FirstItem(ctx context.Context, playlistID string) (*models.PlaylistItem, error)
	CycleFirstItem(ctx context.Context, playlistID string) error
	AppendItem(ctx context.Context, playlistID string, snap models.MediaSnapshot) (*models.PlaylistItem, error)
}

// Track is the next item a user would play, with the playlist it came from.
type Track struct {
	Playlist *models.Playlist
	Item     *models.PlaylistItem
}

type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("ns", "uwave:playlists").Logger(),
	}
}

// FirstTrack returns the head of the user's active playlist. A user without
// an active playlist is treated like one with an empty playlist.
func (s *Service) FirstTrack(ctx context.Context, userID string) (*Track, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ActivePlaylistID == nil || *user.ActivePlaylistID == "" {
		return nil, fmt.Errorf("%w: user %s has no active playlist", errs.ErrEmptyPlaylist, userID)
	}

	playlist, err := s.store.GetPlaylist(ctx, *user.ActivePlaylistID)
	if err != nil {
		if errors.Is(err, errs.ErrPlaylistNotFound) {
			return nil, fmt.Errorf("%w: active playlist of %s is gone", errs.ErrEmptyPlaylist, userID)
		}
		return nil, err
	}

	item, err := s.store.FirstItem(ctx, playlist.ID)
	if err != nil {
		return nil, err
	}
	return &Track{Playlist: playlist, Item: item}, nil
}

// HasPlayableTrack reports whether the user could start playing right now.
func (s *Service) HasPlayableTrack(ctx context.Context, userID string) (bool, error) {
	_, err := s.FirstTrack(ctx, userID)
	if errors.Is(err, errs.ErrEmptyPlaylist) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) CycleFirstTrack(ctx context.Context, playlistID string) error {
	return s.store.CycleFirstItem(ctx, playlistID)
}

// AppendTrack adds snap to a playlist owned by userID.
func (s *Service) AppendTrack(ctx context.Context, userID, playlistID string, snap models.MediaSnapshot) (*models.PlaylistItem, error) {
	if _, err := s.Owned(ctx, userID, playlistID); err != nil {
		return nil, err
	}
	item, err := s.store.AppendItem(ctx, playlistID, snap)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("playlist", playlistID).Str("item", item.ID).Msg("appended item")
	return item, nil
}

// Owned returns the playlist if it belongs to userID. Other users' playlists
// are reported as missing.
func (s *Service) Owned(ctx context.Context, userID, playlistID string) (*models.Playlist, error) {
	playlist, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist.UserID != userID {
		return nil, fmt.Errorf("%w: %s", errs.ErrPlaylistNotFound, playlistID)
	}
	return playlist, nil
}

func (s *Service) Create(ctx context.Context, userID, name string) (*models.Playlist, error) {
	playlist := &models.Playlist{UserID: userID, Name: name}
	if err := s.store.CreatePlaylist(ctx, playlist); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// First playlist becomes active.
	if user.ActivePlaylistID == nil {
		if err := s.store.SetActivePlaylist(ctx, userID, playlist.ID); err != nil {
			return nil, err
		}
	}
	return playlist, nil
}

func (s *Service) Activate(ctx context.Context, userID, playlistID string) error {
	if _, err := s.Owned(ctx, userID, playlistID); err != nil {
		return err
	}
	return s.store.SetActivePlaylist(ctx, userID, playlistID)
}
