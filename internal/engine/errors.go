package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("not connected to room")
	ErrRoomUnavailable = errors.New("room unavailable")
	ErrResolveFailed   = errors.New("failed to resolve video")
	ErrInvalidVideo    = errors.New("invalid video")
	ErrTimeout         = errors.New("timeout")
	ErrInvalidRole     = errors.New("invalid role")
	ErrStopped         = errors.New("engine stopped")
)

type SessionError struct {
	Op      string
	Room    string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Room != "" && e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Room, e.Err, e.Details)
	}
	if e.Room != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func NewRoomError(op, room string, err error) *SessionError {
	return &SessionError{Op: op, Room: room, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
