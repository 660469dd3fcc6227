package core

import (
	"context"
	"errors"

	"github.com/dkeye/voxroom/internal/domain"
)

var ErrRoomNotStored = errors.New("room not stored")

// RoomLookup is the key-based view of rooms used to validate joins and render exports.
type RoomLookup interface {
	Exists(ctx context.Context, id domain.RoomID) (bool, error)
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
}

// RoomStore persists room records. Peers are not part of the stored record.
type RoomStore interface {
	RoomLookup
	Save(ctx context.Context, room domain.Room) error
	Delete(ctx context.Context, id domain.RoomID) error
}

type RoomInfo struct {
	ID        domain.RoomID     `json:"id"`
	Name      string            `json:"name"`
	Status    domain.RoomStatus `json:"status"`
	PeerCount int               `json:"peerCount"`
	Capacity  int               `json:"capacity"`
}
