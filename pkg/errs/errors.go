package errs

import (
	"errors"
	"net/http"
)

// Error is a domain error with a stable code and the HTTP status the API
// layer reports it as.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(status int, code, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

var (
	ErrAlreadyInWaitlist    = newError(http.StatusConflict, "already-in-waitlist", "user is already in the waitlist")
	ErrUserNotInWaitlist    = newError(http.StatusNotFound, "not-in-waitlist", "user is not in the waitlist")
	ErrUserIsPlaying        = newError(http.StatusBadRequest, "user-is-playing", "user is currently playing")
	ErrEmptyPlaylist        = newError(http.StatusForbidden, "empty-playlist", "active playlist is empty")
	ErrWaitlistLocked       = newError(http.StatusForbidden, "waitlist-locked", "the waitlist is locked")
	ErrPermissionDenied     = newError(http.StatusForbidden, "forbidden", "permission denied")
	ErrHistoryEntryNotFound = newError(http.StatusNotFound, "history-entry-not-found", "history entry not found")
	ErrPlaylistNotFound     = newError(http.StatusNotFound, "playlist-not-found", "playlist not found")
	ErrCannotSelfFavorite   = newError(http.StatusForbidden, "no-self-favorite", "you cannot favorite your own play")
	ErrCannotSelfVote       = newError(http.StatusForbidden, "no-self-vote", "you cannot vote for your own play")
	ErrUserNotFound         = newError(http.StatusNotFound, "user-not-found", "user not found")
	ErrNothingPlaying       = newError(http.StatusPreconditionFailed, "nothing-playing", "nobody is playing")
	ErrNotCurrentDJ         = newError(http.StatusPreconditionFailed, "not-current-dj", "user is not currently playing")
	ErrAdvanceInProgress    = newError(http.StatusConflict, "advance-in-progress", "another advance is still in progress")
	ErrWaitlistNotCleared   = newError(http.StatusInternalServerError, "waitlist-not-cleared", "could not clear the waitlist, please try again")
)

// Status returns the HTTP status for err, defaulting to 500 for errors that
// are not part of the taxonomy.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
