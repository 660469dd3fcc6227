// Package domain contains entities without logic, just meta-data
package domain

import "time"

type RoomID string

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomFull    RoomStatus = "full"
	RoomClosed  RoomStatus = "closed"
)

const (
	MaxRoomNameLen  = 64
	DefaultCapacity = 8
)

// RoomSpec is what a caller asks for when creating a room.
type RoomSpec struct {
	ID       RoomID `json:"id,omitempty"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type Room struct {
	ID           RoomID        `json:"id"`
	Name         string        `json:"name"`
	Status       RoomStatus    `json:"status"`
	OwnerID      PeerID        `json:"ownerId,omitempty"`
	Capacity     int           `json:"capacity"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
	Peers        []PeerSummary `json:"peers"`
}

func (r Room) PeerCount() int { return len(r.Peers) }

// StatusFor derives the status of an open room from its occupancy.
func StatusFor(count, capacity int) RoomStatus {
	switch {
	case count == 0:
		return RoomWaiting
	case count >= capacity:
		return RoomFull
	default:
		return RoomActive
	}
}
