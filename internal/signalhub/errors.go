package signalhub

import "errors"

// Admission errors, reported to the requesting client as queue-error.
var (
	ErrAlreadyQueued      = errors.New("already queued for this session type")
	ErrInvalidSessionType = errors.New("invalid session type")
	ErrUserMismatch       = errors.New("user does not match the authenticated connection")
	ErrAlreadyInRoom      = errors.New("connection is already in a room")
)

// Transport errors. They never reach a client; the hub degrades to
// rollback or notify paths instead.
var (
	ErrTransportNotFound = errors.New("transport not registered")
	ErrTransportBusy     = errors.New("transport send buffer full")
)

// Room errors.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotParticipant    = errors.New("transport is not a participant of the room")
	ErrInvalidTransition = errors.New("invalid room state transition")
	ErrParticipantGone   = errors.New("participant left before the room was confirmed")
	ErrRelayRejected     = errors.New("signaling message rejected")
)
