package voiceai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dkeye/voxroom/internal/domain"
)

type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderXAI    ProviderType = "xai"

	DefaultProvider = ProviderOpenAI
)

func (p ProviderType) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderXAI:
		return true
	}
	return false
}

// ParseProviderType normalizes a configured provider name.
func ParseProviderType(s string) ProviderType {
	return ProviderType(strings.ToLower(strings.TrimSpace(s)))
}

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

// Capabilities describe a backend as data so call sites never branch on the provider type.
type Capabilities struct {
	Voices         []string `json:"voices"`
	AudioFormats   []string `json:"audioFormats"`
	SampleRates    []int    `json:"sampleRates"`
	WebSearch      bool     `json:"webSearch"`
	XSearch        bool     `json:"xSearch"`
	FileSearch     bool     `json:"fileSearch"`
	AutoTranscribe bool     `json:"autoTranscribe"`
	CustomTools    bool     `json:"customTools"`
}

func (c Capabilities) SupportsVoice(v string) bool {
	for _, known := range c.Voices {
		if strings.EqualFold(known, v) {
			return true
		}
	}
	return false
}

type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type SessionConfig struct {
	RoomID         domain.RoomID
	Personality    string
	Topic          string
	Instructions   string
	Voice          string
	Model          string
	Temperature    float64
	AudioFormat    string
	SampleRate     int
	Tools          []ToolSpec
	BuiltinSearch  bool
	VectorStoreIDs []string
}

// SessionPatch changes a live session. Nil fields are left alone.
type SessionPatch struct {
	Voice        *string
	Instructions *string
	Temperature  *float64
	Tools        []ToolSpec
}

const baseInstructions = "You are a voice participant in a group call with several people. " +
	"User turns are prefixed with the speaker's name in brackets; address people by name when it helps."

// ComposeInstructions merges the explicit instructions with personality and topic.
func (c SessionConfig) ComposeInstructions() string {
	var b strings.Builder
	if c.Instructions != "" {
		b.WriteString(c.Instructions)
	} else {
		b.WriteString(baseInstructions)
	}
	if c.Personality != "" {
		b.WriteString("\nPersonality: ")
		b.WriteString(c.Personality)
	}
	if c.Topic != "" {
		b.WriteString("\nTopic: ")
		b.WriteString(c.Topic)
	}
	return b.String()
}

// StateChange reports a transition. Seq grows with every transition of a
// session, so a receiver can drop notifications that arrive late.
type StateChange struct {
	RoomID      domain.RoomID `json:"roomId"`
	Seq         uint64        `json:"seq"`
	State       State         `json:"state"`
	SpeakerID   string        `json:"activeSpeakerId,omitempty"`
	SpeakerName string        `json:"activeSpeakerName,omitempty"`
}

type Transcript struct {
	RoomID      domain.RoomID      `json:"roomId"`
	Role        domain.MessageRole `json:"role"`
	Text        string             `json:"text"`
	Final       bool               `json:"final"`
	SpeakerID   string             `json:"speakerId,omitempty"`
	SpeakerName string             `json:"speakerName,omitempty"`
}

type FunctionCall struct {
	RoomID    domain.RoomID   `json:"roomId"`
	ID        string          `json:"callId"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolExecutor runs function calls requested by the model.
type ToolExecutor interface {
	Execute(ctx context.Context, call FunctionCall) (string, error)
}

// Handlers are the notification slots a provider fires into. All are optional.
type Handlers struct {
	OnStateChange func(StateChange)
	OnTranscript  func(Transcript)
	OnAudio       func(roomID domain.RoomID, frame string)
	OnError       func(roomID domain.RoomID, err error)
}
