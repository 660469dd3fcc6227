package voiceai

import (
	"context"

	"github.com/dkeye/voxroom/internal/domain"
)

// Provider is a live connection to a realtime speech backend, at most one per room.
type Provider interface {
	Type() ProviderType
	Capabilities() Capabilities

	CreateSession(ctx context.Context, cfg SessionConfig) error
	CloseSession() error
	IsConnected() bool
	State() State
	UpdateSession(ctx context.Context, patch SessionPatch) error

	SendAudio(frame string) error
	CommitAudio() error
	TriggerResponse() error
	CancelResponse() error
	SendFunctionOutput(callID, result string) error

	InjectContext(roomID domain.RoomID, text string) bool
	UpdateInstructions(text string) error
	SetActiveSpeaker(id, name string)
	SetInterrupted(interrupted bool)

	Voice() string
	Temperature() float64
}
