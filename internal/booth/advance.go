package booth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/u-wave/u-wave-core-sub000/internal/acl"
	"github.com/u-wave/u-wave-core-sub000/internal/playlist"
	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/lock"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

const (
	advanceLockName  = "booth:advancing"
	advanceLockLease = 2 * time.Second
	// advanceRetryDelay is how long a failed advance waits before the timer
	// tries again.
	advanceRetryDelay = 5 * time.Second
)

type AdvanceOptions struct {
	// Remove keeps the departing DJ out of the waitlist.
	Remove bool
	// NoPublish suppresses the advance:complete and waitlist:update events.
	NoPublish bool
}

// candidate is a user who can play, with the track they will play.
type candidate struct {
	userID string
	track  *playlist.Track
}

// Advance ends the current play and starts the next one. It returns the new
// play, or nil when nobody is left to play.
func (b *Booth) Advance(ctx context.Context, opts AdvanceOptions) (play *models.CurrentPlay, err error) {
	held, err := b.locker.Lock(ctx, advanceLockName, advanceLockLease)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %v", errs.ErrAdvanceInProgress, err)
		}
		return nil, err
	}
	defer func() {
		if err := held.Unlock(context.WithoutCancel(ctx)); err != nil {
			b.logger.Warn().Err(err).Msg("failed to release advance lock")
		}
	}()

	var previous *models.CurrentPlay
	b.cancelTimer()
	defer func() {
		if err != nil {
			b.rearm(context.WithoutCancel(ctx), previous, err)
		}
	}()

	previous, err = b.state.CurrentPlay(ctx)
	if err != nil {
		return nil, err
	}
	previousDJ := ""
	if previous != nil {
		previousDJ = previous.UserID
	}

	remove, err := b.shouldRemove(ctx, opts.Remove, previous)
	if err != nil {
		return nil, err
	}

	next, remove, err := b.findNext(ctx, &held, previousDJ, remove)
	if err != nil {
		return nil, err
	}

	if previous != nil {
		stats, err := b.state.VoteStats(ctx)
		if err != nil {
			return nil, err
		}
		if err := b.history.SaveStats(ctx, previous.HistoryID, stats); err != nil {
			return nil, err
		}
	}

	consumed := ""
	if next != nil {
		play, err = b.startPlay(ctx, next)
		if err != nil {
			return nil, err
		}
		consumed = next.userID
	} else {
		if err := b.state.ClearPlay(ctx); err != nil {
			return nil, err
		}
		b.cancelTimer()
	}

	requeue := ""
	if !remove && previousDJ != consumed {
		requeue = previousDJ
	}
	waitlist, err := b.state.CycleWaitlist(ctx, consumed, requeue)
	if err != nil {
		return nil, err
	}

	entry := b.logger.Info().Bool("remove", remove).Strs("waitlist", waitlist)
	if play != nil {
		entry.Str("dj", play.UserID).Str("historyID", play.HistoryID).Msg("advanced")
	} else {
		entry.Msg("booth is now empty")
	}

	if !opts.NoPublish {
		if play != nil {
			b.publish(ctx, events.PlaylistCycle{UserID: play.UserID, PlaylistID: play.PlaylistID})
		}
		b.publish(ctx, events.AdvanceComplete{Play: play})
		b.publish(ctx, events.WaitlistUpdate{UserIDs: waitlist})
	}

	return play, nil
}

// rearm schedules another attempt for whatever is playing after a failed
// advance, so the room does not sit on a finished play with no timer.
func (b *Booth) rearm(ctx context.Context, previous *models.CurrentPlay, cause error) {
	play, err := b.state.CurrentPlay(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to read current play after failed advance")
		play = previous
	}
	if play == nil {
		return
	}

	d := play.Remaining(b.clock.Now())
	if d < advanceRetryDelay {
		d = advanceRetryDelay
	}
	b.logger.Warn().Err(cause).Str("historyID", play.HistoryID).Dur("retryIn", d).Msg("advance failed")
	b.schedule(play.HistoryID, d)
}

// shouldRemove folds the room and DJ preferences into the caller's choice.
func (b *Booth) shouldRemove(ctx context.Context, requested bool, previous *models.CurrentPlay) (bool, error) {
	if requested || previous == nil {
		return requested, nil
	}
	settings, err := b.settings.WaitlistSettings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.Cycle {
		return true, nil
	}
	return b.state.RemoveAfterCurrentPlay(ctx)
}

// findNext walks the waitlist until it finds a user with a playable track.
// Users whose playlist is empty are dropped from the waitlist on the way. The
// lease is extended before each retry so the whole walk stays under one lock.
func (b *Booth) findNext(ctx context.Context, held **lock.Lock, previousDJ string, remove bool) (*candidate, bool, error) {
	budget := 0
	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			extended, err := (*held).Extend(ctx, advanceLockLease)
			if err != nil {
				return nil, remove, fmt.Errorf("%w: %v", errs.ErrAdvanceInProgress, err)
			}
			*held = extended
		}

		waitlist, err := b.state.WaitlistIDs(ctx)
		if err != nil {
			return nil, remove, err
		}
		// Each retry consumes one waitlist entry, plus one for a repeating
		// DJ. Users joining during the walk raise the budget.
		budget = max(budget, attempt+len(waitlist)+1)

		head := ""
		if len(waitlist) > 0 {
			head = waitlist[0]
		}
		userID := head
		if userID == "" && !remove {
			userID = previousDJ
		}
		if userID == "" {
			return nil, remove, nil
		}

		track, err := b.playlists.FirstTrack(ctx, userID)
		if err == nil {
			return &candidate{userID: userID, track: track}, remove, nil
		}
		if !errors.Is(err, errs.ErrEmptyPlaylist) && !errors.Is(err, errs.ErrUserNotFound) {
			return nil, remove, err
		}

		b.logger.Info().Str("user", userID).Msg("skipping user without a playable track")
		if head != "" {
			requeue := ""
			if !remove {
				requeue = previousDJ
			}
			if _, err := b.state.CycleWaitlist(ctx, head, requeue); err != nil {
				return nil, remove, err
			}
		}
		remove = true
	}
	return nil, remove, nil
}

func (b *Booth) startPlay(ctx context.Context, next *candidate) (*models.CurrentPlay, error) {
	play := &models.CurrentPlay{
		HistoryID:  uuid.NewString(),
		UserID:     next.userID,
		PlaylistID: next.track.Playlist.ID,
		ItemID:     next.track.Item.ID,
		Media:      next.track.Item.Snapshot(),
		StartedAt:  b.clock.Now(),
	}

	if err := b.history.CreateHistoryEntry(ctx, play.HistoryEntry()); err != nil {
		return nil, err
	}
	if err := b.state.StartPlay(ctx, play); err != nil {
		return nil, err
	}
	if err := b.playlists.CycleFirstTrack(ctx, play.PlaylistID); err != nil {
		return nil, err
	}

	b.schedule(play.HistoryID, play.Media.Duration())
	return play, nil
}

// Skip ends the play of userID early. Users may skip themselves; skipping
// someone else needs moderator rights.
func (b *Booth) Skip(ctx context.Context, actorID, userID, reason string, remove bool) error {
	permission := acl.PermBoothSkipSelf
	if actorID != userID {
		permission = acl.PermBoothSkipOther
	}
	if err := b.authorize(ctx, actorID, permission); err != nil {
		return err
	}

	play, err := b.state.CurrentPlay(ctx)
	if err != nil {
		return err
	}
	if play == nil {
		return errs.ErrNothingPlaying
	}
	if play.UserID != userID {
		return errs.ErrNotCurrentDJ
	}

	ev := events.BoothSkip{UserID: userID, Reason: reason}
	if actorID != userID {
		ev.ModeratorID = actorID
	}
	b.publish(ctx, ev)

	_, err = b.Advance(ctx, AdvanceOptions{Remove: remove})
	return err
}

// Replace puts userID at the front of the waitlist and advances to them. The
// current DJ goes back into rotation.
func (b *Booth) Replace(ctx context.Context, moderatorID, userID string) error {
	if err := b.authorize(ctx, moderatorID, acl.PermBoothReplace); err != nil {
		return err
	}

	_, err := b.state.MoveInWaitlist(ctx, userID, 0)
	if errors.Is(err, errs.ErrUserNotInWaitlist) {
		_, err = b.state.AddToWaitlist(ctx, userID, 0)
	}
	if err != nil {
		return err
	}

	b.publish(ctx, events.BoothReplace{UserID: userID, ModeratorID: moderatorID})

	_, err = b.Advance(ctx, AdvanceOptions{})
	return err
}
