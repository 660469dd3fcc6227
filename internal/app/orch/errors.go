package orch

import (
	"errors"

	"github.com/dkeye/voxroom/internal/domain"
)

var (
	ErrNotInRoom    = domain.Reject(domain.CodeNotInRoom, "join a room first")
	ErrPeerNotFound = domain.Reject(domain.CodePeerNotFound, "target peer is not in this room")
	ErrNotInitiator = domain.Reject(domain.CodeNotInitiator, "the other peer sends the offer")
	ErrSelfTarget   = domain.Reject(domain.CodeInvalidPayload, "cannot signal yourself")
	ErrAINotActive  = domain.Reject(domain.CodeAIUnavailable, "no AI session in this room")
	ErrAIStarting   = domain.Reject(domain.CodeAIUnavailable, "AI session is already starting")

	ErrNotOwner = errors.New("only the room owner can close it")
)

func invalid(reason string) error {
	return domain.Reject(domain.CodeInvalidPayload, reason)
}
