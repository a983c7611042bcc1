package waitlist

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/u-wave/u-wave-core-sub000/internal/acl"
	"github.com/u-wave/u-wave-core-sub000/internal/booth"
	"github.com/u-wave/u-wave-core-sub000/internal/config"
	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

type State interface {
	CurrentPlay(ctx context.Context) (*models.CurrentPlay, error)
	WaitlistIDs(ctx context.Context) ([]string, error)
	AddToWaitlist(ctx context.Context, userID string, position int) ([]string, error)
	MoveInWaitlist(ctx context.Context, userID string, position int) ([]string, error)
	RemoveFromWaitlist(ctx context.Context, userID string) ([]string, error)
	ClearWaitlist(ctx context.Context) (int64, error)
}

type Advancer interface {
	Advance(ctx context.Context, opts booth.AdvanceOptions) (*models.CurrentPlay, error)
}

type Playlists interface {
	HasPlayableTrack(ctx context.Context, userID string) (bool, error)
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type Authorizer interface {
	IsAllowed(user *models.User, permission string) bool
}

type Settings interface {
	WaitlistSettings(ctx context.Context) (models.WaitlistSettings, error)
	SetWaitlistSettings(ctx context.Context, userID string, patch config.WaitlistPatch) (models.WaitlistSettings, error)
	OnWaitlistChange(fn func(context.Context, config.WaitlistChange))
}

type Deps struct {
	State     State
	Booth     Advancer
	Playlists Playlists
	Users     Users
	ACL       Authorizer
	Settings  Settings
	Publisher events.Publisher
}

type Service struct {
	state     State
	booth     Advancer
	playlists Playlists
	users     Users
	acl       Authorizer
	settings  Settings
	publisher events.Publisher
	logger    zerolog.Logger
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	s := &Service{
		state:     deps.State,
		booth:     deps.Booth,
		playlists: deps.Playlists,
		users:     deps.Users,
		acl:       deps.ACL,
		settings:  deps.Settings,
		publisher: deps.Publisher,
		logger:    logger.With().Str("ns", "uwave:waitlist").Logger(),
	}
	s.settings.OnWaitlistChange(s.onSettingsChange)
	return s
}

// AddOptions describes who is adding a user and where. A nil Position
// appends.
type AddOptions struct {
	ModeratorID string
	Position    *int
}

func (s *Service) UserIDs(ctx context.Context) ([]string, error) {
	return s.state.WaitlistIDs(ctx)
}

// AddUser puts userID in the waitlist. Users join by themselves; moderators
// can add others at any position, even while the waitlist is locked. If the
// booth is empty the new user starts playing right away.
func (s *Service) AddUser(ctx context.Context, userID string, opts AddOptions) error {
	moderated := opts.ModeratorID != "" && opts.ModeratorID != userID

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if moderated {
		if err := s.authorize(ctx, opts.ModeratorID, acl.PermWaitlistAdd); err != nil {
			return err
		}
	} else {
		if !s.acl.IsAllowed(user, acl.PermWaitlistJoin) {
			return errs.ErrPermissionDenied
		}
		locked, err := s.IsLocked(ctx)
		if err != nil {
			return err
		}
		if locked && !s.acl.IsAllowed(user, acl.PermWaitlistJoinLocked) {
			return errs.ErrWaitlistLocked
		}
	}

	playable, err := s.playlists.HasPlayableTrack(ctx, userID)
	if err != nil {
		return err
	}
	if !playable {
		return errs.ErrEmptyPlaylist
	}

	position := -1
	if opts.Position != nil {
		position = *opts.Position
	}
	ids, err := s.state.AddToWaitlist(ctx, userID, position)
	if err != nil {
		return err
	}

	if moderated {
		s.publish(ctx, events.WaitlistAdd{
			UserID:      userID,
			ModeratorID: opts.ModeratorID,
			Position:    lo.IndexOf(ids, userID),
			Waitlist:    ids,
		})
	} else {
		s.publish(ctx, events.WaitlistJoin{UserID: userID, Waitlist: ids})
	}

	return s.fillEmptyBooth(ctx)
}

func (s *Service) fillEmptyBooth(ctx context.Context) error {
	play, err := s.state.CurrentPlay(ctx)
	if err != nil {
		return err
	}
	if play != nil {
		return nil
	}
	if _, err := s.booth.Advance(ctx, booth.AdvanceOptions{}); err != nil {
		if errors.Is(err, errs.ErrAdvanceInProgress) {
			s.logger.Debug().Msg("booth is already advancing")
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) MoveUser(ctx context.Context, userID string, position int, moderatorID string) error {
	if err := s.authorize(ctx, moderatorID, acl.PermWaitlistMove); err != nil {
		return err
	}
	ids, err := s.state.MoveInWaitlist(ctx, userID, position)
	if err != nil {
		return err
	}
	s.publish(ctx, events.WaitlistMove{
		UserID:      userID,
		ModeratorID: moderatorID,
		Position:    lo.IndexOf(ids, userID),
		Waitlist:    ids,
	})
	return nil
}

// RemoveUser takes userID out of the waitlist. Removing someone else needs
// moderator rights.
func (s *Service) RemoveUser(ctx context.Context, userID, moderatorID string) error {
	moderated := moderatorID != "" && moderatorID != userID
	if moderated {
		if err := s.authorize(ctx, moderatorID, acl.PermWaitlistRemove); err != nil {
			return err
		}
	}

	ids, err := s.state.RemoveFromWaitlist(ctx, userID)
	if err != nil {
		return err
	}

	if moderated {
		s.publish(ctx, events.WaitlistRemove{UserID: userID, ModeratorID: moderatorID, Waitlist: ids})
	} else {
		s.publish(ctx, events.WaitlistLeave{UserID: userID, Waitlist: ids})
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, moderatorID string) error {
	if err := s.authorize(ctx, moderatorID, acl.PermWaitlistClear); err != nil {
		return err
	}
	remaining, err := s.state.ClearWaitlist(ctx)
	if err != nil {
		return err
	}
	if remaining != 0 {
		return errs.ErrWaitlistNotCleared
	}
	s.publish(ctx, events.WaitlistClear{ModeratorID: moderatorID})
	return nil
}

func (s *Service) Lock(ctx context.Context, moderatorID string) error {
	return s.setLocked(ctx, moderatorID, true)
}

func (s *Service) Unlock(ctx context.Context, moderatorID string) error {
	return s.setLocked(ctx, moderatorID, false)
}

func (s *Service) setLocked(ctx context.Context, moderatorID string, locked bool) error {
	if err := s.authorize(ctx, moderatorID, acl.PermWaitlistLock); err != nil {
		return err
	}
	_, err := s.settings.SetWaitlistSettings(ctx, moderatorID, config.WaitlistPatch{Locked: &locked})
	return err
}

// SetCycle turns requeueing of the departing DJ on or off.
func (s *Service) SetCycle(ctx context.Context, moderatorID string, enabled bool) error {
	if err := s.authorize(ctx, moderatorID, acl.PermWaitlistLock); err != nil {
		return err
	}
	_, err := s.settings.SetWaitlistSettings(ctx, moderatorID, config.WaitlistPatch{Cycle: &enabled})
	return err
}

func (s *Service) IsLocked(ctx context.Context) (bool, error) {
	settings, err := s.settings.WaitlistSettings(ctx)
	if err != nil {
		return false, err
	}
	return settings.Locked, nil
}

func (s *Service) IsCycleEnabled(ctx context.Context) (bool, error) {
	settings, err := s.settings.WaitlistSettings(ctx)
	if err != nil {
		return false, err
	}
	return settings.Cycle, nil
}

// onSettingsChange announces lock and cycle changes made by a moderator.
func (s *Service) onSettingsChange(ctx context.Context, change config.WaitlistChange) {
	if change.UserID == "" {
		return
	}
	if change.Patch.Locked != nil {
		s.publish(ctx, events.WaitlistLock{Locked: change.Current.Locked, ModeratorID: change.UserID})
	}
	if change.Patch.Cycle != nil {
		s.publish(ctx, events.WaitlistCycle{Cycle: change.Current.Cycle, ModeratorID: change.UserID})
	}
}

func (s *Service) authorize(ctx context.Context, userID, permission string) error {
	if userID == "" {
		return errs.ErrPermissionDenied
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.acl.IsAllowed(user, permission) {
		return errs.ErrPermissionDenied
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", string(ev.Name())).Msg("failed to publish")
	}
}
