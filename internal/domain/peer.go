package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type PeerID string

type Role string

const (
	RoleOwner       Role = "owner"
	RoleParticipant Role = "participant"
)

// ConnState mirrors the RTCPeerConnectionState names reported by browsers.
type ConnState string

const (
	ConnNew          ConnState = "new"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnFailed       ConnState = "failed"
	ConnClosed       ConnState = "closed"
)

func (s ConnState) Valid() bool {
	switch s {
	case ConnNew, ConnConnecting, ConnConnected, ConnDisconnected, ConnFailed, ConnClosed:
		return true
	}
	return false
}

// PeerInfo is what a peer presents when asking for a seat.
type PeerInfo struct {
	ID          PeerID
	DisplayName string
}

type Peer struct {
	ID          PeerID    `json:"id"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	Muted       bool      `json:"muted"`
	Speaking    bool      `json:"speaking"`
	ConnState   ConnState `json:"connectionState"`
	RoomID      RoomID    `json:"roomId"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (p Peer) Summary() PeerSummary {
	return PeerSummary{ID: p.ID, DisplayName: p.DisplayName, Role: p.Role}
}

// PeerSummary is the slice of a peer that travels with a room snapshot.
type PeerSummary struct {
	ID          PeerID `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// PeerPatch carries optional presence changes.
type PeerPatch struct {
	Muted       *bool
	Speaking    *bool
	ConnState   *ConnState
	DisplayName *string
}

func (p PeerPatch) Empty() bool {
	return p.Muted == nil && p.Speaking == nil && p.ConnState == nil && p.DisplayName == nil
}

// NormalizeDisplayName trims the name and enforces length bounds.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
