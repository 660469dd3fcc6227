// Package convo keeps per-room conversation memory for the AI participant.
//
// Every room owns an ordered message history, a participant id to name map and
// a single instructions prompt. The history is capped by count on every insert
// and watched against a token budget; crossing the budget margin notifies the
// owner once so it can summarize.
package convo

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/domain"
)

type Config struct {
	MaxTokens      int     `mapstructure:"max_tokens"`
	TargetTokens   int     `mapstructure:"target_tokens"`
	MaxMessages    int     `mapstructure:"max_messages"`
	AutoSummary    bool    `mapstructure:"auto_summary"`
	NearLimitRatio float64 `mapstructure:"near_limit_ratio"`
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:      8000,
		TargetTokens:   4000,
		MaxMessages:    200,
		AutoSummary:    true,
		NearLimitRatio: 0.8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.TargetTokens <= 0 || c.TargetTokens > c.MaxTokens {
		c.TargetTokens = c.MaxTokens / 2
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = d.MaxMessages
	}
	if c.NearLimitRatio <= 0 || c.NearLimitRatio > 1 {
		c.NearLimitRatio = d.NearLimitRatio
	}
	return c
}

// Hooks are invoked synchronously after the mutation commits, outside the manager lock.
type Hooks struct {
	OnMessageAdded   func(roomID domain.RoomID, msg domain.Message)
	OnNearTokenLimit func(roomID domain.RoomID, tokens int)
}

type State struct {
	MessageCount     int             `json:"messageCount"`
	ParticipantCount int             `json:"participantCount"`
	LastMessage      *domain.Message `json:"lastMessage,omitempty"`
	IsNearLimit      bool            `json:"isNearLimit"`
	TokenCount       int             `json:"tokenCount"`
}

type roomContext struct {
	systemPrompt string
	summary      string
	messages     []domain.Message
	participants map[string]string
	notified     bool
}

type Manager struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*roomContext
	cfg   Config
	hooks Hooks
	now   func() time.Time
}

func NewManager(cfg Config, hooks Hooks) *Manager {
	return &Manager{
		rooms: make(map[domain.RoomID]*roomContext),
		cfg:   cfg.withDefaults(),
		hooks: hooks,
		now:   time.Now,
	}
}

func (m *Manager) Config() Config { return m.cfg }

// InitRoom registers a room. On an already known room it only replaces a non-empty prompt.
func (m *Manager) InitRoom(roomID domain.RoomID, systemPrompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.rooms[roomID]; ok {
		if systemPrompt != "" {
			rc.systemPrompt = systemPrompt
		}
		return
	}
	m.rooms[roomID] = &roomContext{
		systemPrompt: systemPrompt,
		participants: make(map[string]string),
	}
	log.Debug().Str("module", "convo").Str("room_id", string(roomID)).Msg("context initialized")
}

func (m *Manager) HasRoom(roomID domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID]
	return ok
}

func (m *Manager) SetSystemPrompt(roomID domain.RoomID, prompt string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	rc.systemPrompt = prompt
	return true
}

func (m *Manager) AddParticipant(roomID domain.RoomID, peerID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.rooms[roomID]; ok {
		rc.participants[peerID] = name
	}
}

func (m *Manager) RemoveParticipant(roomID domain.RoomID, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.rooms[roomID]; ok {
		delete(rc.participants, peerID)
	}
}

func (m *Manager) Participants(roomID domain.RoomID) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(rc.participants))
	for id, name := range rc.participants {
		out[id] = name
	}
	return out
}

// AddUserMessage stores text framed with the speaker's name. It returns nil for unknown rooms.
func (m *Manager) AddUserMessage(roomID domain.RoomID, text, speakerID string) *domain.Message {
	m.mu.Lock()
	rc, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	name := rc.participants[speakerID]
	if name == "" {
		name = speakerID
	}
	msg := domain.Message{
		Role:        domain.RoleUser,
		Content:     FrameUtterance(name, text),
		SpeakerID:   speakerID,
		SpeakerName: name,
	}
	return m.insert(roomID, rc, msg)
}

func (m *Manager) AddAssistantMessage(roomID domain.RoomID, text string) *domain.Message {
	m.mu.Lock()
	rc, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	return m.insert(roomID, rc, domain.Message{Role: domain.RoleAssistant, Content: text})
}

// insert is called with m.mu held and releases it before running hooks.
func (m *Manager) insert(roomID domain.RoomID, rc *roomContext, msg domain.Message) *domain.Message {
	msg.ID = uuid.NewString()
	msg.Timestamp = m.now()
	rc.messages = append(rc.messages, msg)
	m.evict(rc)

	tokens := rc.tokens()
	near := m.isNear(tokens)
	fireNear := false
	switch {
	case near && !rc.notified && m.cfg.AutoSummary:
		rc.notified = true
		fireNear = true
	case !near:
		rc.notified = false
	}
	hooks := m.hooks
	m.mu.Unlock()

	if hooks.OnMessageAdded != nil {
		hooks.OnMessageAdded(roomID, msg)
	}
	if fireNear && hooks.OnNearTokenLimit != nil {
		log.Info().Str("module", "convo").Str("room_id", string(roomID)).Int("tokens", tokens).Msg("near token limit")
		hooks.OnNearTokenLimit(roomID, tokens)
	}
	return &msg
}

// evict drops the oldest messages until the count fits. The system prompt lives outside
// the history, so it is never evicted here.
func (m *Manager) evict(rc *roomContext) {
	if over := len(rc.messages) - m.cfg.MaxMessages; over > 0 {
		rc.messages = append([]domain.Message(nil), rc.messages[over:]...)
	}
}

func (m *Manager) isNear(tokens int) bool {
	return float64(tokens) >= m.cfg.NearLimitRatio*float64(m.cfg.MaxTokens)
}

func (m *Manager) Messages(roomID domain.RoomID) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), rc.messages...)
}

// MessagesForAI returns the history with the instructions prompt first. An empty prompt is omitted.
func (m *Manager) MessagesForAI(roomID domain.RoomID) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, 0, len(rc.messages)+1)
	if sys := rc.systemContent(); sys != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: sys})
	}
	return append(out, rc.messages...)
}

func (m *Manager) TokenCount(roomID domain.RoomID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return 0
	}
	return rc.tokens()
}

// NeedsSummarization reports whether the estimate exceeds MaxTokens with auto summary enabled.
func (m *Manager) NeedsSummarization(roomID domain.RoomID) bool {
	if !m.cfg.AutoSummary {
		return false
	}
	return m.TokenCount(roomID) > m.cfg.MaxTokens
}

func (m *Manager) ContextState(roomID domain.RoomID) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	tokens := rc.tokens()
	st := &State{
		MessageCount:     len(rc.messages),
		ParticipantCount: len(rc.participants),
		IsNearLimit:      m.isNear(tokens),
		TokenCount:       tokens,
	}
	if n := len(rc.messages); n > 0 {
		last := rc.messages[n-1]
		st.LastMessage = &last
	}
	return st
}

// ClearMessages drops the history but keeps the prompt and the participants.
func (m *Manager) ClearMessages(roomID domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.rooms[roomID]; ok {
		rc.messages = nil
		rc.summary = ""
		rc.notified = false
	}
}

// ApplySummary folds summary into the instructions prompt and trims the oldest messages
// until the estimate is back under TargetTokens.
func (m *Manager) ApplySummary(roomID domain.RoomID, summary string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	rc.summary = summary
	for len(rc.messages) > 0 && rc.tokens() > m.cfg.TargetTokens {
		rc.messages = rc.messages[1:]
	}
	rc.messages = append([]domain.Message(nil), rc.messages...)
	rc.notified = false
	log.Info().Str("module", "convo").Str("room_id", string(roomID)).
		Int("kept", len(rc.messages)).Int("tokens", rc.tokens()).Msg("summary applied")
	return true
}

// Summary returns the summary currently folded into the prompt of roomID.
func (m *Manager) Summary(roomID domain.RoomID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.rooms[roomID]; ok {
		return rc.summary
	}
	return ""
}

func (m *Manager) RemoveRoom(roomID domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

func (rc *roomContext) systemContent() string {
	switch {
	case rc.summary == "":
		return rc.systemPrompt
	case rc.systemPrompt == "":
		return "Conversation so far:\n" + rc.summary
	default:
		return rc.systemPrompt + "\n\nConversation so far:\n" + rc.summary
	}
}

func (rc *roomContext) tokens() int {
	total := 0
	if sys := rc.systemContent(); sys != "" {
		total += EstimateTokens(sys)
	}
	for _, msg := range rc.messages {
		total += EstimateTokens(msg.Content)
	}
	return total
}

// FrameUtterance renders who said what for the model.
func FrameUtterance(name, text string) string {
	return fmt.Sprintf("[%s]: %s", name, text)
}
