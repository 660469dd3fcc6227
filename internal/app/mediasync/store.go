package mediasync

import (
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

// Store keeps one playback state per room.
type Store struct {
	mu     sync.Mutex
	states map[domain.RoomID]*State
}

func NewStore() *Store {
	return &Store{states: make(map[domain.RoomID]*State)}
}

func (s *Store) Apply(roomID domain.RoomID, c Control, by domain.PeerID, now time.Time) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[roomID]
	if !ok {
		st = &State{}
	}
	ev, err := st.Apply(c, by, now)
	if err != nil {
		return Event{}, err
	}
	s.states[roomID] = st
	return ev, nil
}

// Snapshot returns the state projected to now, or false if the room never had playback.
func (s *Store) Snapshot(roomID domain.RoomID, now time.Time) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[roomID]
	if !ok {
		return State{}, false
	}
	return st.Snapshot(now), true
}

func (s *Store) Remove(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, roomID)
}
