package orch

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voxroom/internal/app/mediasync"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/voiceai"
)

const (
	EventRoomJoined   = "room:joined"
	EventRoomLeft     = "room:left"
	EventRoomClosed   = "room:closed"
	EventPeerJoined   = "peer:joined"
	EventPeerLeft     = "peer:left"
	EventPeerUpdated  = "peer:updated"
	EventVideoSync    = "video:sync"
	EventAIStarted    = "ai:started"
	EventAIStopped    = "ai:stopped"
	EventAIUpdated    = "ai:updated"
	EventAIState      = "ai:state"
	EventAITranscript = "ai:transcript"
	EventAIAudio      = "ai:audio"
	EventAIError      = "ai:error"
)

const (
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
	ReasonSwitched     = "switched_room"
	ReasonClosed       = "closed"
	ReasonIdle         = "idle"
	ReasonError        = "error"
	ReasonStopped      = "stopped"
	ReasonReplaced     = "replaced"
)

type SignalKind string

const (
	SignalOffer     SignalKind = "signal:offer"
	SignalAnswer    SignalKind = "signal:answer"
	SignalCandidate SignalKind = "signal:ice-candidate"
)

// PeerView is a peer as seen by one recipient.
type PeerView struct {
	domain.Peer
	ShouldOffer bool `json:"shouldOffer"`
}

type AIView struct {
	Active   bool                 `json:"active"`
	Provider voiceai.ProviderType `json:"provider,omitempty"`
	State    voiceai.State        `json:"state,omitempty"`
	Voice    string               `json:"voice,omitempty"`
}

type roomJoinedEvent struct {
	Type       string             `json:"type"`
	Room       domain.Room        `json:"room"`
	Peer       domain.Peer        `json:"peer"`
	Peers      []PeerView         `json:"peers"`
	ICEServers []webrtc.ICEServer `json:"iceServers"`
	Video      *mediasync.State   `json:"video"`
	AI         AIView             `json:"ai"`
	Rejoined   bool               `json:"rejoined"`
}

type roomEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Reason string        `json:"reason,omitempty"`
}

type peerJoinedEvent struct {
	Type string   `json:"type"`
	Peer PeerView `json:"peer"`
}

type peerLeftEvent struct {
	Type   string        `json:"type"`
	PeerID domain.PeerID `json:"peerId"`
	Reason string        `json:"reason"`
}

type peerUpdatedEvent struct {
	Type string      `json:"type"`
	Peer domain.Peer `json:"peer"`
}

type relayEvent struct {
	Type       SignalKind      `json:"type"`
	FromPeerID domain.PeerID   `json:"fromPeerId"`
	SDP        json.RawMessage `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

type videoSyncEvent struct {
	Type          string           `json:"type"`
	State         *mediasync.State `json:"state"`
	SyncTimestamp int64            `json:"syncTimestamp"`
}

type aiStartedEvent struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	Provider     voiceai.ProviderType `json:"provider"`
	Voice        string               `json:"voice"`
	State        voiceai.State        `json:"state"`
	StartedBy    domain.PeerID        `json:"startedBy"`
	Capabilities voiceai.Capabilities `json:"capabilities"`
}

type aiStoppedEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	By     domain.PeerID `json:"by,omitempty"`
	Reason string        `json:"reason"`
}

type aiUpdatedEvent struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	By          domain.PeerID `json:"by"`
	Voice       string        `json:"voice"`
	Temperature float64       `json:"temperature"`
}

type aiStateEvent struct {
	Type string `json:"type"`
	voiceai.StateChange
}

type aiTranscriptEvent struct {
	Type string `json:"type"`
	voiceai.Transcript
}

type aiAudioEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Audio  string        `json:"audio"`
}

type aiErrorEvent struct {
	Type    string        `json:"type"`
	RoomID  domain.RoomID `json:"roomId"`
	Code    domain.Code   `json:"code"`
	Message string        `json:"message"`
}
