package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

type sessionEntry struct {
	RoomID domain.RoomID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry tracks live signal connections by session id and the room each one sits in.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// Bind attaches a connection to sid. A connection already bound to sid is cancelled and returned
// so the caller can run its cleanup; its room seat carries over to the new connection.
func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) (prev core.SignalConnection) {
	r.mu.Lock()
	old, ok := r.sessions[sid]
	entry := &sessionEntry{Conn: conn, Cancel: cancel}
	if ok {
		entry.RoomID = old.RoomID
	}
	r.sessions[sid] = entry
	r.mu.Unlock()

	if ok {
		if old.Cancel != nil {
			old.Cancel()
		}
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("replaced signal connection")
		return old.Conn
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
	return nil
}

// Unbind removes sid only if it is still bound to conn.
func (r *Registry) Unbind(sid core.SessionID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomID == "" {
		return "", false
	}
	return e.RoomID, true
}

func (r *Registry) SetRoom(sid core.SessionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.RoomID = roomID
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room_id", string(roomID)).Msg("updated room")
	return true
}

// ClearRoom drops the room association if it still points at roomID.
func (r *Registry) ClearRoom(sid core.SessionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok && e.RoomID == roomID {
		e.RoomID = ""
	}
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
