package voiceai

import (
	"sync"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionManager tracks the live provider of each room.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]Provider
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[domain.RoomID]Provider)}
}

// Install makes p the session of roomID, closing whatever was there before.
func (m *SessionManager) Install(roomID domain.RoomID, p Provider) {
	m.mu.Lock()
	prev := m.sessions[roomID]
	m.sessions[roomID] = p
	m.mu.Unlock()
	if prev != nil && prev != p {
		closeQuietly(roomID, prev)
	}
}

func (m *SessionManager) Get(roomID domain.RoomID) (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[roomID]
	return p, ok
}

// Remove closes and forgets the session of roomID.
func (m *SessionManager) Remove(roomID domain.RoomID) bool {
	m.mu.Lock()
	p, ok := m.sessions[roomID]
	delete(m.sessions, roomID)
	m.mu.Unlock()
	if ok {
		closeQuietly(roomID, p)
	}
	return ok
}

// Detach forgets the session of roomID without closing it.
func (m *SessionManager) Detach(roomID domain.RoomID) (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[roomID]
	delete(m.sessions, roomID)
	return p, ok
}

// RemoveIf closes and forgets the session of roomID only while it is still p.
func (m *SessionManager) RemoveIf(roomID domain.RoomID, p Provider) bool {
	m.mu.Lock()
	cur, ok := m.sessions[roomID]
	if !ok || cur != p {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, roomID)
	m.mu.Unlock()
	closeQuietly(roomID, p)
	return true
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[domain.RoomID]Provider)
	m.mu.Unlock()
	for id, p := range all {
		closeQuietly(id, p)
	}
}

func closeQuietly(roomID domain.RoomID, p Provider) {
	if err := p.CloseSession(); err != nil {
		log.Warn().Err(err).Str("module", "voiceai").Str("room", string(roomID)).Msg("close session")
	}
}
