package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

const (
	keyCurrentPlay            = "booth:current"
	keyHistoryID              = "booth:historyID"
	keyCurrentDJ              = "booth:currentDJ"
	keyUpvotes                = "booth:upvotes"
	keyDownvotes              = "booth:downvotes"
	keyFavorites              = "booth:favorites"
	keyRemoveAfterCurrentPlay = "booth:removeAfterCurrentPlay"
	keyWaitlist               = "waitlist"
)

// RoomState is the shared booth and waitlist state of the room. Every server
// process reads and writes the same keys.
type RoomState struct {
	client redis.UniversalClient
}

func NewRoomState(client redis.UniversalClient) *RoomState {
	return &RoomState{client: client}
}

func (s *RoomState) CurrentPlay(ctx context.Context) (*models.CurrentPlay, error) {
	raw, err := s.client.Get(ctx, keyCurrentPlay).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current play: %w", err)
	}

	var play models.CurrentPlay
	if err := json.Unmarshal(raw, &play); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current play: %w", err)
	}
	return &play, nil
}

// CurrentDJ returns the ID of the user playing, or "" when the booth is empty.
func (s *RoomState) CurrentDJ(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, keyCurrentDJ).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current dj: %w", err)
	}
	return id, nil
}

// StartPlay makes play the current one and resets the vote tally.
func (s *RoomState) StartPlay(ctx context.Context, play *models.CurrentPlay) error {
	raw, err := json.Marshal(play)
	if err != nil {
		return fmt.Errorf("failed to marshal current play: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyUpvotes, keyDownvotes, keyFavorites, keyRemoveAfterCurrentPlay)
		pipe.Set(ctx, keyCurrentPlay, raw, 0)
		pipe.Set(ctx, keyHistoryID, play.HistoryID, 0)
		pipe.Set(ctx, keyCurrentDJ, play.UserID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store current play: %w", err)
	}
	return nil
}

func (s *RoomState) ClearPlay(ctx context.Context) error {
	err := s.client.Del(ctx,
		keyCurrentPlay, keyHistoryID, keyCurrentDJ,
		keyUpvotes, keyDownvotes, keyFavorites, keyRemoveAfterCurrentPlay,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to clear current play: %w", err)
	}
	return nil
}

func (s *RoomState) WaitlistIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.LRange(ctx, keyWaitlist, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist: %w", err)
	}
	return ids, nil
}

// CycleWaitlist takes consumed out of the waitlist and appends requeue.
// Either may be empty. Users who joined concurrently keep their place.
func (s *RoomState) CycleWaitlist(ctx context.Context, consumed, requeue string) ([]string, error) {
	res, err := cycleWaitlistScript.Run(ctx, s.client, []string{keyWaitlist}, consumed, requeue).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to cycle waitlist: %w", err)
	}
	return res, nil
}

// AddToWaitlist inserts userID before the user at position, or appends when
// position is negative or past the end.
func (s *RoomState) AddToWaitlist(ctx context.Context, userID string, position int) ([]string, error) {
	res, err := addToWaitlistScript.Run(ctx, s.client, []string{keyWaitlist, keyCurrentDJ}, userID, position).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to add to waitlist: %w", err)
	}
	return waitlistReply(res)
}

// MoveInWaitlist moves userID in front of the user currently at position.
func (s *RoomState) MoveInWaitlist(ctx context.Context, userID string, position int) ([]string, error) {
	res, err := moveInWaitlistScript.Run(ctx, s.client, []string{keyWaitlist, keyCurrentDJ}, userID, position).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to move in waitlist: %w", err)
	}
	return waitlistReply(res)
}

func waitlistReply(res []string) ([]string, error) {
	if len(res) == 0 {
		return nil, errors.New("empty script reply")
	}
	switch res[0] {
	case replyOK:
		return res[1:], nil
	case replyAlreadyPlaying, replyAlreadyInWaitlist:
		return nil, errs.ErrAlreadyInWaitlist
	case replyNotInWaitlist:
		return nil, errs.ErrUserNotInWaitlist
	case replyUserIsPlaying:
		return nil, errs.ErrUserIsPlaying
	default:
		return nil, fmt.Errorf("unexpected script reply %q", res[0])
	}
}

// RemoveFromWaitlist removes userID and returns the resulting order.
func (s *RoomState) RemoveFromWaitlist(ctx context.Context, userID string) ([]string, error) {
	var (
		removed *redis.IntCmd
		list    *redis.StringSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.LRem(ctx, keyWaitlist, 0, userID)
		list = pipe.LRange(ctx, keyWaitlist, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove from waitlist: %w", err)
	}
	if removed.Val() == 0 {
		return nil, errs.ErrUserNotInWaitlist
	}
	return list.Val(), nil
}

// ClearWaitlist empties the waitlist and returns how many entries remain
// afterwards, which should be zero.
func (s *RoomState) ClearWaitlist(ctx context.Context) (int64, error) {
	if err := s.client.Del(ctx, keyWaitlist).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear waitlist: %w", err)
	}
	n, err := s.client.LLen(ctx, keyWaitlist).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check waitlist length: %w", err)
	}
	return n, nil
}

// Vote records a vote for the current play and reports whether the tally
// changed. A vote in the other direction replaces the previous one.
func (s *RoomState) Vote(ctx context.Context, userID string, direction int) (bool, error) {
	keys := []string{keyUpvotes, keyDownvotes}
	if direction < 0 {
		keys = []string{keyDownvotes, keyUpvotes}
	}
	n, err := voteScript.Run(ctx, s.client, keys, userID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to store vote: %w", err)
	}
	return n == 1, nil
}

// AddFavorite reports whether userID was newly added to the favorites.
func (s *RoomState) AddFavorite(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.SAdd(ctx, keyFavorites, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store favorite: %w", err)
	}
	return n == 1, nil
}

func (s *RoomState) VoteStats(ctx context.Context) (models.VoteStats, error) {
	var up, down, fav *redis.StringSliceCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		up = pipe.SMembers(ctx, keyUpvotes)
		down = pipe.SMembers(ctx, keyDownvotes)
		fav = pipe.SMembers(ctx, keyFavorites)
		return nil
	})
	if err != nil {
		return models.VoteStats{}, fmt.Errorf("failed to get vote stats: %w", err)
	}
	return models.VoteStats{
		Upvotes:   up.Val(),
		Downvotes: down.Val(),
		Favorites: fav.Val(),
	}, nil
}

// SetRemoveAfterCurrentPlay sets the flag only while userID is the current DJ.
func (s *RoomState) SetRemoveAfterCurrentPlay(ctx context.Context, userID string, remove bool) (bool, error) {
	flag := "0"
	if remove {
		flag = "1"
	}
	n, err := removeAfterCurrentPlayScript.Run(ctx, s.client, []string{keyCurrentDJ, keyRemoveAfterCurrentPlay}, userID, flag).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set remove after current play: %w", err)
	}
	if n < 0 {
		return false, errs.ErrNotCurrentDJ
	}
	return n == 1, nil
}

func (s *RoomState) RemoveAfterCurrentPlay(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, keyRemoveAfterCurrentPlay).Result()
	if err != nil {
		return false, fmt.Errorf("failed to get remove after current play: %w", err)
	}
	return n == 1, nil
}
