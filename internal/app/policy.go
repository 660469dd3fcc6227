package app

import "github.com/dkeye/voxroom/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy decides what to do with a peer whose send queue is full.
type Policy interface {
	OnBackPressure(roomID domain.RoomID, peerID domain.PeerID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.PeerID) BackpressureAction {
	return KickPeer
}

// TolerantPolicy drops frames for slow peers instead of disconnecting them.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(domain.RoomID, domain.PeerID) BackpressureAction {
	return DropFrame
}
