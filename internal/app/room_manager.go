package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

type JoinResult struct {
	Room     domain.Room
	Peer     domain.Peer
	Existing []domain.Peer
	Rejoined bool
}

type LeaveResult struct {
	Peer      domain.Peer
	Remaining int
}

// RoomManager owns rooms and their peers. Every mutation of a room runs under that room's lock.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*room

	defaultCapacity int
	maxCapacity     int
	now             func() time.Time
}

var _ core.RoomLookup = (*RoomManager)(nil)

func NewRoomManager(defaultCapacity, maxCapacity int) *RoomManager {
	if defaultCapacity <= 0 {
		defaultCapacity = domain.DefaultCapacity
	}
	if maxCapacity < defaultCapacity {
		maxCapacity = defaultCapacity
	}
	return &RoomManager{
		rooms:           make(map[domain.RoomID]*room),
		defaultCapacity: defaultCapacity,
		maxCapacity:     maxCapacity,
		now:             time.Now,
	}
}

func (m *RoomManager) get(id domain.RoomID) (*room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// CreateRoom registers a new room. A non-empty owner takes the first seat as owner.
// A taken id is rejected with domain.ErrRoomExists.
func (m *RoomManager) CreateRoom(spec domain.RoomSpec, owner domain.PeerInfo) (domain.Room, error) {
	capacity := spec.Capacity
	if capacity == 0 {
		capacity = m.defaultCapacity
	}
	if capacity < 1 || capacity > m.maxCapacity {
		return domain.Room{}, domain.ErrInvalidCapacity
	}
	if len(spec.Name) > domain.MaxRoomNameLen {
		return domain.Room{}, domain.ErrRoomNameTooLong
	}
	id := spec.ID
	if id == "" {
		id = domain.RoomID(uuid.NewString())
	}
	name := spec.Name
	if name == "" {
		name = string(id)
	}

	now := m.now()
	r := newRoom(domain.Room{
		ID:           id,
		Name:         name,
		Status:       domain.RoomWaiting,
		Capacity:     capacity,
		CreatedAt:    now,
		LastActivity: now,
	})
	if owner.ID != "" {
		if _, _, err := r.seat(owner, now); err != nil {
			return domain.Room{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return domain.Room{}, domain.ErrRoomExists
	}
	m.rooms[id] = r
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Int("capacity", capacity).Msg("room created")
	return r.snapshot(), nil
}

// Hydrate registers a stored room record that is not live yet. Peers in the record are ignored.
func (m *RoomManager) Hydrate(rec domain.Room) domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rooms[rec.ID]; ok {
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.snapshot()
	}
	if rec.Capacity <= 0 {
		rec.Capacity = m.defaultCapacity
	}
	if rec.Status != domain.RoomClosed {
		rec.Status = domain.RoomWaiting
	}
	r := newRoom(rec)
	// the stored owner keeps ownership; nobody else is promoted on hydrate
	r.ownerAssigned = rec.OwnerID != ""
	m.rooms[rec.ID] = r
	log.Info().Str("module", "app.rooms").Str("room_id", string(rec.ID)).Msg("room hydrated from store")
	return r.snapshot()
}

func (m *RoomManager) Join(roomID domain.RoomID, info domain.PeerInfo) (JoinResult, error) {
	r, ok := m.get(roomID)
	if !ok {
		return JoinResult{}, domain.ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, rejoined, err := r.seat(info, m.now())
	if err != nil {
		return JoinResult{}, err
	}
	res := JoinResult{Room: r.snapshot(), Peer: p, Rejoined: rejoined}
	for _, other := range r.peerList() {
		if other.ID != p.ID {
			res.Existing = append(res.Existing, other)
		}
	}
	log.Info().Str("module", "app.rooms").Str("room_id", string(roomID)).Str("sid", string(p.ID)).
		Str("role", string(p.Role)).Bool("rejoined", rejoined).Msg("peer joined")
	return res, nil
}

// Leave removes a peer. The second call for the same peer reports false.
func (m *RoomManager) Leave(roomID domain.RoomID, peerID domain.PeerID) (LeaveResult, bool) {
	r, ok := m.get(roomID)
	if !ok {
		return LeaveResult{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.unseat(peerID, m.now())
	if !ok {
		return LeaveResult{}, false
	}
	log.Info().Str("module", "app.rooms").Str("room_id", string(roomID)).Str("sid", string(peerID)).Msg("peer left")
	return LeaveResult{Peer: p, Remaining: len(r.peers)}, true
}

func (m *RoomManager) ListPeers(roomID domain.RoomID) []domain.Peer {
	r, ok := m.get(roomID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerList()
}

func (m *RoomManager) Peer(roomID domain.RoomID, peerID domain.PeerID) (domain.Peer, bool) {
	r, ok := m.get(roomID)
	if !ok {
		return domain.Peer{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return domain.Peer{}, false
	}
	return *p, true
}

func (m *RoomManager) UpdatePeer(roomID domain.RoomID, peerID domain.PeerID, patch domain.PeerPatch) (domain.Peer, bool) {
	r, ok := m.get(roomID)
	if !ok {
		return domain.Peer{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return domain.Peer{}, false
	}
	if patch.Muted != nil {
		p.Muted = *patch.Muted
	}
	if patch.Speaking != nil {
		p.Speaking = *patch.Speaking
	}
	if patch.ConnState != nil {
		p.ConnState = *patch.ConnState
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	r.meta.LastActivity = m.now()
	return *p, true
}

// CloseRoom marks the room closed and evicts every peer. A closed room never reopens.
func (m *RoomManager) CloseRoom(roomID domain.RoomID) ([]domain.Peer, error) {
	r, ok := m.get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := r.peerList()
	r.peers = make(map[domain.PeerID]*domain.Peer)
	r.order = nil
	r.meta.Status = domain.RoomClosed
	r.meta.LastActivity = m.now()
	log.Info().Str("module", "app.rooms").Str("room_id", string(roomID)).Int("evicted", len(evicted)).Msg("room closed")
	return evicted, nil
}

// Forget drops a room entirely; used once a closed room has been torn down.
func (m *RoomManager) Forget(roomID domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

func (m *RoomManager) GetRoom(roomID domain.RoomID) (domain.Room, bool) {
	r, ok := m.get(roomID)
	if !ok {
		return domain.Room{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(), true
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		out = append(out, core.RoomInfo{
			ID:        r.meta.ID,
			Name:      r.meta.Name,
			Status:    r.meta.Status,
			PeerCount: len(r.peers),
			Capacity:  r.meta.Capacity,
		})
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IdleRooms lists open rooms without peers whose last activity is older than ttl.
func (m *RoomManager) IdleRooms(ttl time.Duration) []domain.RoomID {
	cutoff := m.now().Add(-ttl)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RoomID
	for id, r := range m.rooms {
		r.mu.Lock()
		idle := len(r.peers) == 0 && r.meta.LastActivity.Before(cutoff)
		r.mu.Unlock()
		if idle {
			out = append(out, id)
		}
	}
	return out
}

func (m *RoomManager) Exists(_ context.Context, id domain.RoomID) (bool, error) {
	_, ok := m.get(id)
	return ok, nil
}

func (m *RoomManager) Get(_ context.Context, id domain.RoomID) (domain.Room, error) {
	r, ok := m.GetRoom(id)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r, nil
}
