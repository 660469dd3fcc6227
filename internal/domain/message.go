package domain

import "time"

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry of a room's conversation. Speaker fields are set for user messages only.
type Message struct {
	ID          string      `json:"id"`
	Role        MessageRole `json:"role"`
	Content     string      `json:"content"`
	SpeakerID   string      `json:"speakerId,omitempty"`
	SpeakerName string      `json:"speakerName,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
