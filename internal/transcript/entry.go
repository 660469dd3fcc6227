package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindSummary Kind = "summary"
)

type Entry struct {
	RoomID      domain.RoomID      `json:"-"`
	Kind        Kind               `json:"kind"`
	Role        domain.MessageRole `json:"role"`
	SpeakerID   string             `json:"speakerId,omitempty"`
	SpeakerName string             `json:"speakerName,omitempty"`
	Text        string             `json:"text"`
	Timestamp   time.Time          `json:"timestamp"`
}

// FromMessage converts a context message into a transcript entry, dropping
// the "[name]: " framing of user turns.
func FromMessage(roomID domain.RoomID, m domain.Message) Entry {
	text := m.Content
	if m.Role == domain.RoleUser {
		label := m.SpeakerName
		if label == "" {
			label = m.SpeakerID
		}
		text = strings.TrimPrefix(text, "["+label+"]: ")
	}
	return Entry{
		RoomID:      roomID,
		Kind:        KindMessage,
		Role:        m.Role,
		SpeakerID:   m.SpeakerID,
		SpeakerName: m.SpeakerName,
		Text:        text,
		Timestamp:   m.Timestamp,
	}
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, roomID domain.RoomID) ([]Entry, error)
}

// MemoryStore keeps entries in process, in append order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.RoomID][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.RoomID][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.entries[e.RoomID] = append(s.entries[e.RoomID], e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, roomID domain.RoomID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[roomID]
	out := make([]Entry, len(src))
	copy(out, src)
	return out, nil
}
