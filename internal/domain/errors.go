package domain

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code sent to clients.
type Code string

const (
	CodeRoomNotFound    Code = "ROOM_NOT_FOUND"
	CodeRoomFull        Code = "ROOM_FULL"
	CodeRoomClosed      Code = "ROOM_CLOSED"
	CodeInvalidPayload  Code = "INVALID_PAYLOAD"
	CodePeerNotFound    Code = "PEER_NOT_FOUND"
	CodeNotInRoom       Code = "NOT_IN_ROOM"
	CodeNotInitiator    Code = "NOT_INITIATOR"
	CodeInvalidSDP      Code = "INVALID_SDP"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeMediaRejected   Code = "MEDIA_REJECTED"
	CodeAIUnavailable   Code = "AI_UNAVAILABLE"
	CodeAISessionFailed Code = "AI_SESSION_FAILED"
	CodeJoinTimeout     Code = "JOIN_TIMEOUT"
)

var (
	ErrRoomNotFound = &JoinError{Code: CodeRoomNotFound, Reason: "room not found"}
	ErrRoomFull     = &JoinError{Code: CodeRoomFull, Reason: "room is full"}
	ErrRoomClosed   = &JoinError{Code: CodeRoomClosed, Reason: "room is closed"}

	ErrInvalidCapacity = errors.New("invalid room capacity")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrRoomExists      = errors.New("room already exists")
)

// JoinError is a rejected join: a reason for humans plus a code for clients.
type JoinError struct {
	Code   Code
	Reason string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *JoinError) Is(target error) bool {
	t, ok := target.(*JoinError)
	return ok && t.Code == e.Code
}

// CodeOf extracts the client code carried by err, falling back to fallback.
func CodeOf(err error, fallback Code) Code {
	var je *JoinError
	if errors.As(err, &je) {
		return je.Code
	}
	return fallback
}

// Reject builds a coded rejection for any client request.
func Reject(code Code, reason string) *JoinError {
	return &JoinError{Code: code, Reason: reason}
}

// ReasonOf returns the human part of a coded error, or the whole message otherwise.
func ReasonOf(err error) string {
	var je *JoinError
	if errors.As(err, &je) {
		return je.Reason
	}
	return err.Error()
}
