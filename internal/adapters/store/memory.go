// Package store holds the room record backends behind core.RoomStore.
package store

import (
	"context"
	"sync"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

type Memory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[domain.RoomID]domain.Room)}
}

func (m *Memory) Save(_ context.Context, room domain.Room) error {
	room.Peers = nil
	m.mu.Lock()
	m.rooms[room.ID] = room
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, id domain.RoomID) error {
	m.mu.Lock()
	delete(m.rooms, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, id domain.RoomID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[id]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, id domain.RoomID) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, core.ErrRoomNotStored
	}
	return r, nil
}

var _ core.RoomStore = (*Memory)(nil)
