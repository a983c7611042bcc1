package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

const (
	historyCacheKey = "history:recent"
	historyCacheTTL = 5 * time.Minute
	MaxHistory      = 25
)

type Booth interface {
	CurrentEntry(ctx context.Context) (*models.CurrentPlay, error)
	CurrentVoteStats(ctx context.Context) (models.VoteStats, error)
}

type Waitlist interface {
	UserIDs(ctx context.Context) ([]string, error)
}

type Settings interface {
	WaitlistSettings(ctx context.Context) (models.WaitlistSettings, error)
}

type History interface {
	ListHistory(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
}

// Now is everything a client needs to render the room after connecting.
type Now struct {
	Booth    *models.CurrentPlay     `json:"booth"`
	Stats    *models.VoteStats       `json:"stats,omitempty"`
	Waitlist []string                `json:"waitlist"`
	Settings models.WaitlistSettings `json:"waitlistSettings"`
	History  []*models.HistoryEntry  `json:"history"`
	Time     time.Time               `json:"time"`
}

type Deps struct {
	Booth    Booth
	Waitlist Waitlist
	Settings Settings
	History  History
	Cache    redis.UniversalClient
}

type Service struct {
	booth    Booth
	waitlist Waitlist
	settings Settings
	history  History
	cache    redis.UniversalClient
	logger   zerolog.Logger
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		booth:    deps.Booth,
		waitlist: deps.Waitlist,
		settings: deps.Settings,
		history:  deps.History,
		cache:    deps.Cache,
		logger:   logger.With().Str("ns", "uwave:room").Logger(),
	}
}

func (s *Service) Now(ctx context.Context) (*Now, error) {
	play, err := s.booth.CurrentEntry(ctx)
	if err != nil {
		return nil, err
	}
	now := &Now{Booth: play, Time: time.Now().UTC()}
	if play != nil {
		stats, err := s.booth.CurrentVoteStats(ctx)
		if err != nil {
			return nil, err
		}
		now.Stats = &stats
	}

	if now.Waitlist, err = s.waitlist.UserIDs(ctx); err != nil {
		return nil, err
	}
	if now.Settings, err = s.settings.WaitlistSettings(ctx); err != nil {
		return nil, err
	}
	if now.History, err = s.History(ctx, MaxHistory); err != nil {
		return nil, err
	}
	return now, nil
}

// History returns up to limit recent plays, newest first. The newest page is
// cached in Redis until the next advance.
func (s *Service) History(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}

	cached, err := s.cache.Get(ctx, historyCacheKey).Bytes()
	if err == nil {
		var entries []*models.HistoryEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			return page(entries, limit), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("failed to read history cache")
	}

	entries, err := s.history.ListHistory(ctx, MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := s.cache.Set(ctx, historyCacheKey, entriesJSON, historyCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache history")
	}

	return page(entries, limit), nil
}

func (s *Service) InvalidateHistory(ctx context.Context) error {
	if err := s.cache.Del(ctx, historyCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate history cache: %w", err)
	}
	return nil
}

// OnEvent drops the history cache whenever any process finishes an advance.
func (s *Service) OnEvent(d events.Delivery) error {
	if _, ok := d.Event.(events.AdvanceComplete); !ok {
		return nil
	}
	if err := s.InvalidateHistory(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("stale history cache")
	}
	return nil
}

func page(entries []*models.HistoryEntry, limit int) []*models.HistoryEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
