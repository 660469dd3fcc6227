package app

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

// room is a threadsafe in-memory room.
// It never touches transport resources.
type room struct {
	mu            sync.Mutex
	meta          domain.Room
	peers         map[domain.PeerID]*domain.Peer
	order         []domain.PeerID
	ownerAssigned bool
}

func newRoom(meta domain.Room) *room {
	meta.Peers = nil
	return &room{
		meta:  meta,
		peers: make(map[domain.PeerID]*domain.Peer),
	}
}

// seat must be called with r.mu held.
func (r *room) seat(info domain.PeerInfo, now time.Time) (domain.Peer, bool, error) {
	if r.meta.Status == domain.RoomClosed {
		return domain.Peer{}, false, domain.ErrRoomClosed
	}
	if p, ok := r.peers[info.ID]; ok {
		if info.DisplayName != "" {
			p.DisplayName = info.DisplayName
		}
		r.meta.LastActivity = now
		return *p, true, nil
	}
	if len(r.peers) >= r.meta.Capacity {
		return domain.Peer{}, false, domain.ErrRoomFull
	}

	role := domain.RoleParticipant
	if !r.ownerAssigned {
		role = domain.RoleOwner
		r.ownerAssigned = true
		r.meta.OwnerID = info.ID
	}
	p := &domain.Peer{
		ID:          info.ID,
		DisplayName: info.DisplayName,
		Role:        role,
		ConnState:   domain.ConnNew,
		RoomID:      r.meta.ID,
		JoinedAt:    now,
	}
	r.peers[p.ID] = p
	r.order = append(r.order, p.ID)
	r.touch(now)
	return *p, false, nil
}

// unseat must be called with r.mu held.
func (r *room) unseat(id domain.PeerID, now time.Time) (domain.Peer, bool) {
	p, ok := r.peers[id]
	if !ok {
		return domain.Peer{}, false
	}
	delete(r.peers, id)
	r.order = slices.DeleteFunc(r.order, func(x domain.PeerID) bool { return x == id })
	r.touch(now)
	return *p, true
}

func (r *room) touch(now time.Time) {
	r.meta.LastActivity = now
	if r.meta.Status != domain.RoomClosed {
		r.meta.Status = domain.StatusFor(len(r.peers), r.meta.Capacity)
	}
}

// peerList must be called with r.mu held.
func (r *room) peerList() []domain.Peer {
	out := make([]domain.Peer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.peers[id])
	}
	return out
}

// snapshot must be called with r.mu held.
func (r *room) snapshot() domain.Room {
	s := r.meta
	s.Peers = make([]domain.PeerSummary, 0, len(r.order))
	for _, id := range r.order {
		s.Peers = append(s.Peers, r.peers[id].Summary())
	}
	return s
}
