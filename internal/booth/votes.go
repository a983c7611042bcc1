package booth

import (
	"context"

	"github.com/u-wave/u-wave-core-sub000/internal/acl"
	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

// Vote records an upvote (direction > 0) or downvote for the current play.
// When historyID is set it must match the current play. A repeated vote in
// the same direction changes nothing and is not broadcast.
func (b *Booth) Vote(ctx context.Context, userID, historyID string, direction int) error {
	if err := b.authorize(ctx, userID, acl.PermBoothVote); err != nil {
		return err
	}

	play, err := b.state.CurrentPlay(ctx)
	if err != nil {
		return err
	}
	if play == nil {
		return errs.ErrNothingPlaying
	}
	if historyID != "" && historyID != play.HistoryID {
		return errs.ErrHistoryEntryNotFound
	}
	if play.UserID == userID {
		return errs.ErrCannotSelfVote
	}

	if direction > 0 {
		direction = 1
	} else {
		direction = -1
	}

	changed, err := b.state.Vote(ctx, userID, direction)
	if err != nil {
		return err
	}
	if changed {
		b.publish(ctx, events.BoothVote{UserID: userID, Direction: direction})
	}
	return nil
}

// Favorite copies the media of a play into one of the user's playlists and
// records the favorite on the play.
func (b *Booth) Favorite(ctx context.Context, userID, historyID, playlistID string) (*models.PlaylistItem, error) {
	entry, err := b.history.GetHistoryEntry(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if entry.UserID == userID {
		return nil, errs.ErrCannotSelfFavorite
	}

	item, err := b.playlists.AppendTrack(ctx, userID, playlistID, entry.Snapshot())
	if err != nil {
		return nil, err
	}

	if err := b.history.MarkFavorite(ctx, historyID, userID); err != nil {
		return nil, err
	}

	play, err := b.state.CurrentPlay(ctx)
	if err != nil {
		return nil, err
	}
	if play != nil && play.HistoryID == historyID {
		if _, err := b.state.AddFavorite(ctx, userID); err != nil {
			return nil, err
		}
	}

	b.publish(ctx, events.BoothFavorite{UserID: userID, PlaylistID: playlistID})
	return item, nil
}

// SetRemoveAfterCurrentPlay asks for userID to leave the rotation once their
// current play ends. Moderators may set it for the DJ.
func (b *Booth) SetRemoveAfterCurrentPlay(ctx context.Context, actorID, userID string, remove bool) (bool, error) {
	if actorID != userID {
		if err := b.authorize(ctx, actorID, acl.PermBoothSkipOther); err != nil {
			return false, err
		}
	}
	return b.state.SetRemoveAfterCurrentPlay(ctx, userID, remove)
}

func (b *Booth) RemoveAfterCurrentPlay(ctx context.Context) (bool, error) {
	return b.state.RemoveAfterCurrentPlay(ctx)
}
