package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

type Name string

const (
	NameAdvanceComplete Name = "advance:complete"
	NameWaitlistUpdate  Name = "waitlist:update"
	NameWaitlistJoin    Name = "waitlist:join"
	NameWaitlistAdd     Name = "waitlist:add"
	NameWaitlistLeave   Name = "waitlist:leave"
	NameWaitlistRemove  Name = "waitlist:remove"
	NameWaitlistMove    Name = "waitlist:move"
	NameWaitlistClear   Name = "waitlist:clear"
	NameWaitlistLock    Name = "waitlist:lock"
	NameWaitlistCycle   Name = "waitlist:cycle"
	NameBoothVote       Name = "booth:vote"
	NameBoothFavorite   Name = "booth:favorite"
	NameBoothSkip       Name = "booth:skip"
	NameBoothReplace    Name = "booth:replace"
	NamePlaylistCycle   Name = "playlist:cycle"
)

// Event is implemented only by the payload types in this package, so the set
// of events that can cross the bus is closed.
type Event interface {
	Name() Name
	event()
}

// AdvanceComplete carries the new play, or nil when the booth went idle.
type AdvanceComplete struct {
	Play *models.CurrentPlay
}

func (e AdvanceComplete) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Play)
}

func (e *AdvanceComplete) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &e.Play)
}

// WaitlistUpdate carries the full waitlist order after an advance.
type WaitlistUpdate struct {
	UserIDs []string
}

func (e WaitlistUpdate) MarshalJSON() ([]byte, error) {
	if e.UserIDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.UserIDs)
}

func (e *WaitlistUpdate) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &e.UserIDs)
}

type WaitlistJoin struct {
	UserID   string   `json:"userID"`
	Waitlist []string `json:"waitlist"`
}

type WaitlistAdd struct {
	UserID      string   `json:"userID"`
	ModeratorID string   `json:"moderatorID"`
	Position    int      `json:"position"`
	Waitlist    []string `json:"waitlist"`
}

type WaitlistLeave struct {
	UserID   string   `json:"userID"`
	Waitlist []string `json:"waitlist"`
}

type WaitlistRemove struct {
	UserID      string   `json:"userID"`
	ModeratorID string   `json:"moderatorID"`
	Waitlist    []string `json:"waitlist"`
}

type WaitlistMove struct {
	UserID      string   `json:"userID"`
	ModeratorID string   `json:"moderatorID"`
	Position    int      `json:"position"`
	Waitlist    []string `json:"waitlist"`
}

type WaitlistClear struct {
	ModeratorID string `json:"moderatorID"`
}

type WaitlistLock struct {
	Locked      bool   `json:"locked"`
	ModeratorID string `json:"moderatorID"`
}

type WaitlistCycle struct {
	Cycle       bool   `json:"cycle"`
	ModeratorID string `json:"moderatorID"`
}

type BoothVote struct {
	UserID    string `json:"userID"`
	Direction int    `json:"direction"`
}

type BoothFavorite struct {
	UserID     string `json:"userID"`
	PlaylistID string `json:"playlistID"`
}

type BoothSkip struct {
	UserID      string `json:"userID"`
	ModeratorID string `json:"moderatorID,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type BoothReplace struct {
	UserID      string `json:"userID"`
	ModeratorID string `json:"moderatorID"`
}

type PlaylistCycle struct {
	UserID     string `json:"userID"`
	PlaylistID string `json:"playlistID"`
}

func (AdvanceComplete) Name() Name { return NameAdvanceComplete }
func (WaitlistUpdate) Name() Name  { return NameWaitlistUpdate }
func (WaitlistJoin) Name() Name    { return NameWaitlistJoin }
func (WaitlistAdd) Name() Name     { return NameWaitlistAdd }
func (WaitlistLeave) Name() Name   { return NameWaitlistLeave }
func (WaitlistRemove) Name() Name  { return NameWaitlistRemove }
func (WaitlistMove) Name() Name    { return NameWaitlistMove }
func (WaitlistClear) Name() Name   { return NameWaitlistClear }
func (WaitlistLock) Name() Name    { return NameWaitlistLock }
func (WaitlistCycle) Name() Name   { return NameWaitlistCycle }
func (BoothVote) Name() Name       { return NameBoothVote }
func (BoothFavorite) Name() Name   { return NameBoothFavorite }
func (BoothSkip) Name() Name       { return NameBoothSkip }
func (BoothReplace) Name() Name    { return NameBoothReplace }
func (PlaylistCycle) Name() Name   { return NamePlaylistCycle }

func (AdvanceComplete) event() {}
func (WaitlistUpdate) event()  {}
func (WaitlistJoin) event()    {}
func (WaitlistAdd) event()     {}
func (WaitlistLeave) event()   {}
func (WaitlistRemove) event()  {}
func (WaitlistMove) event()    {}
func (WaitlistClear) event()   {}
func (WaitlistLock) event()    {}
func (WaitlistCycle) event()   {}
func (BoothVote) event()       {}
func (BoothFavorite) event()   {}
func (BoothSkip) event()       {}
func (BoothReplace) event()    {}
func (PlaylistCycle) event()   {}

// Message is the envelope events travel in between processes and out to
// websocket clients.
type Message struct {
	Command   Name            `json:"command"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode wraps ev in a Message and marshals it.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.Name(), err)
	}
	msg := Message{
		Command:   ev.Name(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return json.Marshal(msg)
}

var decoders = map[Name]func([]byte) (Event, error){
	NameAdvanceComplete: decodeInto[AdvanceComplete],
	NameWaitlistUpdate:  decodeInto[WaitlistUpdate],
	NameWaitlistJoin:    decodeInto[WaitlistJoin],
	NameWaitlistAdd:     decodeInto[WaitlistAdd],
	NameWaitlistLeave:   decodeInto[WaitlistLeave],
	NameWaitlistRemove:  decodeInto[WaitlistRemove],
	NameWaitlistMove:    decodeInto[WaitlistMove],
	NameWaitlistClear:   decodeInto[WaitlistClear],
	NameWaitlistLock:    decodeInto[WaitlistLock],
	NameWaitlistCycle:   decodeInto[WaitlistCycle],
	NameBoothVote:       decodeInto[BoothVote],
	NameBoothFavorite:   decodeInto[BoothFavorite],
	NameBoothSkip:       decodeInto[BoothSkip],
	NameBoothReplace:    decodeInto[BoothReplace],
	NamePlaylistCycle:   decodeInto[PlaylistCycle],
}

func decodeInto[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses an encoded Message back into its typed event.
func Decode(b []byte) (Event, time.Time, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	decode, ok := decoders[msg.Command]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("unknown event %q", msg.Command)
	}
	ev, err := decode(msg.Data)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to unmarshal %s payload: %w", msg.Command, err)
	}
	return ev, msg.Timestamp, nil
}
