// Package orch coordinates rooms: membership, presence, signaling relay,
// shared media state and the AI participant. It talks to clients only
// through core.SignalConnection.
package orch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/convo"
	"github.com/dkeye/voxroom/internal/app/mediasync"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/transcript"
	"github.com/dkeye/voxroom/internal/voiceai"
)

const (
	defaultAITimeout       = 15 * time.Second
	defaultIdleTTL         = 30 * time.Minute
	defaultJanitorInterval = time.Minute
	summarizeTimeout       = 10 * time.Second
	transcriptTimeout      = 5 * time.Second
)

type Config struct {
	ICEServers       []webrtc.ICEServer
	AI               voiceai.FactoryConfig
	AISessionTimeout time.Duration
	IdleTTL          time.Duration
	JanitorInterval  time.Duration
	SystemPrompt     string
	Context          convo.Config
}

func (c Config) withDefaults() Config {
	if c.AISessionTimeout <= 0 {
		c.AISessionTimeout = defaultAITimeout
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = defaultIdleTTL
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}
	return c
}

type ProviderFactory func(voiceai.FactoryConfig, voiceai.Options) (voiceai.Result, error)

// Deps are the collaborators the orchestrator does not own. Store,
// Transcripts and Summarizer may be nil.
type Deps struct {
	Registry    *app.Registry
	Rooms       *app.RoomManager
	Policy      app.Policy
	Store       core.RoomStore
	Transcripts transcript.Store
	Summarizer  convo.Summarizer
	NewProvider ProviderFactory
}

type Orchestrator struct {
	Registry    *app.Registry
	Rooms       *app.RoomManager
	Policy      app.Policy
	Store       core.RoomStore
	Transcripts transcript.Store
	Context     *convo.Manager
	Media       *mediasync.Store
	AI          *voiceai.SessionManager

	cfg         Config
	summarizer  convo.Summarizer
	newProvider ProviderFactory
	tools       *voiceai.ToolRegistry
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[domain.RoomID]*sync.Mutex

	startMu  sync.Mutex
	starting map[domain.RoomID]bool
}

func New(d Deps, cfg Config) *Orchestrator {
	o := &Orchestrator{
		Registry:    d.Registry,
		Rooms:       d.Rooms,
		Policy:      d.Policy,
		Store:       d.Store,
		Transcripts: d.Transcripts,
		Media:       mediasync.NewStore(),
		AI:          voiceai.NewSessionManager(),
		cfg:         cfg.withDefaults(),
		summarizer:  d.Summarizer,
		newProvider: d.NewProvider,
		now:         time.Now,
		locks:       make(map[domain.RoomID]*sync.Mutex),
		starting:    make(map[domain.RoomID]bool),
	}
	if o.Registry == nil {
		o.Registry = app.NewRegistry()
	}
	if o.Rooms == nil {
		o.Rooms = app.NewRoomManager(domain.DefaultCapacity, domain.DefaultCapacity)
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	if o.summarizer == nil {
		o.summarizer = convo.DigestSummarizer{}
	}
	if o.newProvider == nil {
		o.newProvider = voiceai.NewProvider
	}
	o.Context = convo.NewManager(o.cfg.Context, convo.Hooks{
		OnMessageAdded:   o.onMessageAdded,
		OnNearTokenLimit: o.onNearTokenLimit,
	})
	o.tools = o.newTools()
	return o
}

func (o *Orchestrator) ICEServers() []webrtc.ICEServer { return o.cfg.ICEServers }

// lock serializes everything that mutates or broadcasts about one room.
func (o *Orchestrator) lock(roomID domain.RoomID) func() {
	o.locksMu.Lock()
	l, ok := o.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[roomID] = l
	}
	o.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) dropLock(roomID domain.RoomID) {
	o.locksMu.Lock()
	delete(o.locks, roomID)
	o.locksMu.Unlock()
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode event")
		return nil, false
	}
	return b, true
}

// deliver enqueues a frame for one peer and applies the backpressure policy when its queue is full.
func (o *Orchestrator) deliver(roomID domain.RoomID, peerID domain.PeerID, frame core.Frame) {
	sid := core.SessionID(peerID)
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return
	}
	if err := conn.TrySend(frame); err == nil {
		return
	}
	switch o.Policy.OnBackPressure(roomID, peerID) {
	case app.KickPeer:
		log.Warn().Str("module", "orch").Str("room_id", string(roomID)).Str("sid", string(sid)).Msg("slow peer kicked")
		o.Registry.Cancel(sid)
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("room_id", string(roomID)).Str("sid", string(sid)).Msg("frame dropped")
	}
}

func (o *Orchestrator) send(roomID domain.RoomID, peerID domain.PeerID, v any) {
	if frame, ok := encode(v); ok {
		o.deliver(roomID, peerID, frame)
	}
}

// broadcast sends v to every seated peer except the given one.
func (o *Orchestrator) broadcast(roomID domain.RoomID, v any, except domain.PeerID) {
	frame, ok := encode(v)
	if !ok {
		return
	}
	for _, p := range o.Rooms.ListPeers(roomID) {
		if p.ID == except {
			continue
		}
		o.deliver(roomID, p.ID, frame)
	}
}

// sendSession writes to a connection that may not be seated anywhere.
func (o *Orchestrator) sendSession(sid core.SessionID, v any) {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return
	}
	if frame, ok := encode(v); ok {
		_ = conn.TrySend(frame)
	}
}

func (o *Orchestrator) roomOf(sid core.SessionID) (domain.RoomID, error) {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return "", ErrNotInRoom
	}
	return roomID, nil
}

// Shutdown closes every AI session.
func (o *Orchestrator) Shutdown() {
	o.AI.CloseAll()
}

// RunJanitor closes idle empty rooms until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context) error {
	t := time.NewTicker(o.cfg.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := o.Sweep(ctx); n > 0 {
				log.Info().Str("module", "orch").Int("closed", n).Msg("janitor sweep")
			}
		}
	}
}
