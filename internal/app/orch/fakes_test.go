package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/transcript"
	"github.com/dkeye/voxroom/internal/voiceai"
)

var errQueueFull = errors.New("queue full")

type fakeConn struct {
	mu     sync.Mutex
	frames []map[string]any
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errQueueFull
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) events(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) last(t *testing.T, typ string) map[string]any {
	t.Helper()
	evs := c.events(typ)
	require.NotEmpty(t, evs, "no %s event", typ)
	return evs[len(evs)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type fakeProvider struct {
	mu         sync.Mutex
	state      voiceai.State
	connected  bool
	createErr  error
	cfg        voiceai.SessionConfig
	closed     int
	injected   []string
	interrupts []bool
	audio      []string
	commits    int
	speaker    string
	handlers   voiceai.Handlers

	triggers     int
	cancels      int
	patches      []voiceai.SessionPatch
	instructions []string

	// onCreate runs inside CreateSession; stall, when set, blocks InjectContext.
	onCreate func()
	stall    chan struct{}
	stalled  int
}

func (p *fakeProvider) Type() voiceai.ProviderType { return voiceai.ProviderOpenAI }

func (p *fakeProvider) Capabilities() voiceai.Capabilities {
	return voiceai.Capabilities{Voices: []string{"alloy"}}
}

func (p *fakeProvider) CreateSession(_ context.Context, cfg voiceai.SessionConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	if p.onCreate != nil {
		p.onCreate()
	}
	p.cfg = cfg
	p.connected = true
	p.state = voiceai.StateListening
	return nil
}

func (p *fakeProvider) CloseSession() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.connected = false
	p.state = voiceai.StateIdle
	return nil
}

func (p *fakeProvider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakeProvider) State() voiceai.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakeProvider) setState(s voiceai.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *fakeProvider) UpdateSession(_ context.Context, patch voiceai.SessionPatch) error {
	if patch.Voice != nil && *patch.Voice != "alloy" {
		return voiceai.ErrUnsupportedVoice
	}
	p.mu.Lock()
	p.patches = append(p.patches, patch)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) UpdateInstructions(text string) error {
	p.mu.Lock()
	p.instructions = append(p.instructions, text)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) SendAudio(frame string) error {
	if frame == "" {
		return voiceai.ErrInvalidAudio
	}
	p.mu.Lock()
	p.audio = append(p.audio, frame)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) CommitAudio() error {
	p.mu.Lock()
	p.commits++
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) TriggerResponse() error {
	p.mu.Lock()
	p.triggers++
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) CancelResponse() error {
	p.mu.Lock()
	p.cancels++
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) SendFunctionOutput(string, string) error { return nil }
func (p *fakeProvider) Voice() string                           { return "alloy" }
func (p *fakeProvider) Temperature() float64                    { return 0.8 }

func (p *fakeProvider) InjectContext(_ domain.RoomID, text string) bool {
	p.mu.Lock()
	stall := p.stall
	if stall != nil {
		p.stalled++
	}
	p.mu.Unlock()
	if stall != nil {
		<-stall
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return false
	}
	p.injected = append(p.injected, text)
	return true
}

func (p *fakeProvider) stalledCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stalled
}

func (p *fakeProvider) SetActiveSpeaker(id, name string) {
	p.mu.Lock()
	p.speaker = id + "/" + name
	p.mu.Unlock()
}

func (p *fakeProvider) SetInterrupted(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupts = append(p.interrupts, v)
	if v {
		p.state = voiceai.StateIdle
	} else if p.connected {
		p.state = voiceai.StateListening
	}
}

func (p *fakeProvider) snapshot() (injected []string, interrupts []bool, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.injected...), append([]bool(nil), p.interrupts...), p.closed
}

type harness struct {
	o           *Orchestrator
	transcripts *transcript.MemoryStore

	mu        sync.Mutex
	providers []*fakeProvider
	factErr   error
	kicked    map[core.SessionID]bool
}

type harnessOpt func(*Deps, *Config)

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{transcripts: transcript.NewMemoryStore(), kicked: make(map[core.SessionID]bool)}
	d := Deps{
		Rooms:       app.NewRoomManager(4, 10),
		Transcripts: h.transcripts,
		NewProvider: h.newProvider,
	}
	cfg := Config{}
	for _, opt := range opts {
		opt(&d, &cfg)
	}
	h.o = New(d, cfg)
	return h
}

func (h *harness) newProvider(_ voiceai.FactoryConfig, opts voiceai.Options) (voiceai.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.factErr != nil {
		return voiceai.Result{}, h.factErr
	}
	var p *fakeProvider
	for _, c := range h.providers {
		if c.handlers.OnStateChange == nil {
			p = c
			break
		}
	}
	if p == nil {
		p = &fakeProvider{}
		h.providers = append(h.providers, p)
	}
	p.handlers = opts.Handlers
	return voiceai.Result{Provider: p, Type: voiceai.ProviderOpenAI}, nil
}

// queue preloads a provider so a test can arrange its behaviour before StartAI.
func (h *harness) queue(p *fakeProvider) {
	h.mu.Lock()
	h.providers = append(h.providers, p)
	h.mu.Unlock()
}

func (h *harness) provider(t *testing.T, i int) *fakeProvider {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(t, len(h.providers), i)
	return h.providers[i]
}

func (h *harness) connect(id string) *fakeConn {
	c := &fakeConn{}
	sid := core.SessionID(id)
	h.o.Registry.Bind(sid, c, func() {
		h.mu.Lock()
		h.kicked[sid] = true
		h.mu.Unlock()
	})
	return c
}

func (h *harness) wasKicked(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kicked[core.SessionID(id)]
}

func (h *harness) room(t *testing.T, id string, capacity int) {
	t.Helper()
	_, err := h.o.CreateRoom(context.Background(), domain.RoomSpec{ID: domain.RoomID(id), Name: id, Capacity: capacity})
	require.NoError(t, err)
}

func (h *harness) join(t *testing.T, id, roomID string) *fakeConn {
	t.Helper()
	c := h.connect(id)
	require.NoError(t, h.o.Join(context.Background(), core.SessionID(id), domain.RoomID(roomID), id))
	return c
}
