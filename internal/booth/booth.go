package booth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/internal/playlist"
	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/lock"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

// State is the shared booth and waitlist state.
type State interface {
	CurrentPlay(ctx context.Context) (*models.CurrentPlay, error)
	StartPlay(ctx context.Context, play *models.CurrentPlay) error
	ClearPlay(ctx context.Context) error
	WaitlistIDs(ctx context.Context) ([]string, error)
	CycleWaitlist(ctx context.Context, consumed, requeue string) ([]string, error)
	AddToWaitlist(ctx context.Context, userID string, position int) ([]string, error)
	MoveInWaitlist(ctx context.Context, userID string, position int) ([]string, error)
	Vote(ctx context.Context, userID string, direction int) (bool, error)
	AddFavorite(ctx context.Context, userID string) (bool, error)
	VoteStats(ctx context.Context) (models.VoteStats, error)
	SetRemoveAfterCurrentPlay(ctx context.Context, userID string, remove bool) (bool, error)
	RemoveAfterCurrentPlay(ctx context.Context) (bool, error)
}

// Locker hands out the cluster-wide advance lock.
type Locker interface {
	Lock(ctx context.Context, name string, lease time.Duration) (*lock.Lock, error)
}

// Playlists finds and cycles the track a DJ plays next.
type Playlists interface {
	FirstTrack(ctx context.Context, userID string) (*playlist.Track, error)
	CycleFirstTrack(ctx context.Context, playlistID string) error
	AppendTrack(ctx context.Context, userID, playlistID string, snap models.MediaSnapshot) (*models.PlaylistItem, error)
}

// History is the permanent record of plays and their votes.
type History interface {
	CreateHistoryEntry(ctx context.Context, entry *models.HistoryEntry) error
	GetHistoryEntry(ctx context.Context, id string) (*models.HistoryEntry, error)
	SaveStats(ctx context.Context, historyID string, stats models.VoteStats) error
	MarkFavorite(ctx context.Context, historyID, userID string) error
}

// Users looks up the acting user for permission checks.
type Users interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Authorizer answers role-based permission checks.
type Authorizer interface {
	IsAllowed(user *models.User, permission string) bool
}

// Settings reads the room's waitlist settings.
type Settings interface {
	WaitlistSettings(ctx context.Context) (models.WaitlistSettings, error)
}

// Timer is a pending auto-advance.
type Timer interface {
	Stop() bool
}

// Clock is the time source for play start times and the auto-advance timer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Deps are the collaborators a Booth needs. All but Clock are required.
type Deps struct {
	State     State
	Locker    Locker
	Playlists Playlists
	History   History
	Users     Users
	ACL       Authorizer
	Settings  Settings
	Publisher events.Publisher
	// Clock defaults to the wall clock.
	Clock Clock
}

// Booth runs the turn-over of the room: who plays, for how long, and who is
// next.
type Booth struct {
	state     State
	locker    Locker
	playlists Playlists
	history   History
	users     Users
	acl       Authorizer
	settings  Settings
	publisher events.Publisher
	clock     Clock
	logger    zerolog.Logger

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

// New creates an idle Booth. Call Start to resume a play left over from a
// previous run.
func New(deps Deps, logger zerolog.Logger) *Booth {
	clock := deps.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Booth{
		state:     deps.State,
		locker:    deps.Locker,
		playlists: deps.Playlists,
		history:   deps.History,
		users:     deps.Users,
		acl:       deps.ACL,
		settings:  deps.Settings,
		publisher: deps.Publisher,
		clock:     clock,
		logger:    logger.With().Str("ns", "uwave:booth").Logger(),
	}
}

// Start resumes a play that was in progress when the process went down. A play
// that should already have ended is advanced right away.
func (b *Booth) Start(ctx context.Context) error {
	b.mu.Lock()
	b.stopped = false
	b.mu.Unlock()

	play, err := b.state.CurrentPlay(ctx)
	if err != nil {
		return err
	}
	if play == nil {
		b.logger.Info().Msg("booth is empty")
		return nil
	}

	remaining := play.Remaining(b.clock.Now())
	if remaining > 0 {
		b.logger.Info().Str("historyID", play.HistoryID).Dur("remaining", remaining).Msg("resuming play")
		b.schedule(play.HistoryID, remaining)
		return nil
	}

	b.logger.Info().Str("historyID", play.HistoryID).Msg("play ended while offline, advancing")
	_, err = b.Advance(ctx, AdvanceOptions{})
	return err
}

// Stop cancels the pending auto-advance. It does not advance.
func (b *Booth) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.stopTimerLocked()
}

func (b *Booth) schedule(historyID string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	if b.stopped {
		return
	}
	b.timer = b.clock.AfterFunc(d, func() { b.onTimer(historyID) })
}

func (b *Booth) cancelTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
}

func (b *Booth) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// onTimer advances only if the play the timer was set for is still on.
func (b *Booth) onTimer(historyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	play, err := b.state.CurrentPlay(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to read current play for auto-advance")
		return
	}
	if play == nil || play.HistoryID != historyID {
		b.logger.Debug().Str("historyID", historyID).Msg("ignoring stale auto-advance")
		return
	}

	if _, err := b.Advance(ctx, AdvanceOptions{}); err != nil {
		if errors.Is(err, errs.ErrAdvanceInProgress) {
			b.logger.Debug().Err(err).Msg("auto-advance skipped")
			return
		}
		b.logger.Error().Err(err).Msg("auto-advance failed")
	}
}

func (b *Booth) CurrentEntry(ctx context.Context) (*models.CurrentPlay, error) {
	return b.state.CurrentPlay(ctx)
}

func (b *Booth) CurrentVoteStats(ctx context.Context) (models.VoteStats, error) {
	return b.state.VoteStats(ctx)
}

func (b *Booth) authorize(ctx context.Context, userID, permission string) error {
	user, err := b.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !b.acl.IsAllowed(user, permission) {
		return errs.ErrPermissionDenied
	}
	return nil
}

func (b *Booth) publish(ctx context.Context, ev events.Event) {
	if err := b.publisher.Publish(ctx, ev); err != nil {
		b.logger.Error().Err(err).Str("event", string(ev.Name())).Msg("failed to publish")
	}
}
