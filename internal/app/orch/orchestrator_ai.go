package orch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/app/convo"
	"github.com/dkeye/voxroom/internal/app/mediasync"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/transcript"
	"github.com/dkeye/voxroom/internal/voiceai"
)

const (
	aiPeerID     domain.PeerID = "ai"
	recapLimit                 = 12
	summaryIntro               = "Summary of the conversation so far: "
)

// AIUpdateRequest changes a running session. Nil fields are left alone.
type AIUpdateRequest struct {
	Voice        *string  `json:"voice,omitempty"`
	Instructions *string  `json:"instructions,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

type AIStartRequest struct {
	Personality  string `json:"personality"`
	Topic        string `json:"topic"`
	Instructions string `json:"instructions"`
	Voice        string `json:"voice"`
	Provider     string `json:"provider"`
}

func (o *Orchestrator) aiView(roomID domain.RoomID) AIView {
	p, ok := o.AI.Get(roomID)
	if !ok {
		return AIView{}
	}
	return AIView{Active: true, Provider: p.Type(), State: p.State(), Voice: p.Voice()}
}

func (o *Orchestrator) beginStart(roomID domain.RoomID) bool {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.starting[roomID] {
		return false
	}
	o.starting[roomID] = true
	return true
}

func (o *Orchestrator) endStart(roomID domain.RoomID) {
	o.startMu.Lock()
	delete(o.starting, roomID)
	o.startMu.Unlock()
}

// binding lets provider callbacks recognise whether they come from the room's current session.
// seq is the last state change sent to the room.
type binding struct {
	p voiceai.Provider

	mu  sync.Mutex
	seq uint64
}

func (o *Orchestrator) current(roomID domain.RoomID, b *binding) bool {
	cur, ok := o.AI.Get(roomID)
	return !ok || cur == b.p
}

// StartAI connects a voice session for the caller's room. The backend
// handshake runs without holding the room; the session is installed under it.
func (o *Orchestrator) StartAI(ctx context.Context, sid core.SessionID, req AIStartRequest) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	if !o.beginStart(roomID) {
		return ErrAIStarting
	}
	defer o.endStart(roomID)

	fc := o.cfg.AI
	if req.Provider != "" {
		fc.Provider = req.Provider
	}
	b := &binding{}
	res, err := o.newProvider(fc, voiceai.Options{Handlers: o.aiHandlers(b), Tools: o.tools})
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("voice provider unavailable")
		return domain.Reject(domain.CodeAIUnavailable, err.Error())
	}
	p := res.Provider
	b.p = p

	// the running session goes away before the replacement dials in
	o.detachAI(roomID, sid.PeerID(), ReasonReplaced)

	sc := voiceai.SessionConfig{
		RoomID:        roomID,
		Personality:   req.Personality,
		Topic:         req.Topic,
		Instructions:  req.Instructions,
		Voice:         req.Voice,
		Tools:         o.tools.Specs(),
		BuiltinSearch: p.Capabilities().WebSearch,
	}
	sctx, cancel := context.WithTimeout(ctx, o.cfg.AISessionTimeout)
	defer cancel()
	if err := p.CreateSession(sctx, sc); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("voice session failed")
		return domain.Reject(domain.CodeAISessionFailed, err.Error())
	}

	unlock := o.lock(roomID)
	if len(o.Rooms.ListPeers(roomID)) == 0 {
		unlock()
		_ = p.CloseSession()
		return ErrNotInRoom
	}
	o.AI.Install(roomID, p)
	if !o.Context.HasRoom(roomID) {
		o.Context.InitRoom(roomID, "")
	}
	o.Context.SetSystemPrompt(roomID, sc.ComposeInstructions())
	recap := o.recap(roomID)
	o.broadcast(roomID, aiStartedEvent{
		Type:         EventAIStarted,
		RoomID:       roomID,
		Provider:     res.Type,
		Voice:        p.Voice(),
		State:        p.State(),
		StartedBy:    sid.PeerID(),
		Capabilities: p.Capabilities(),
	}, "")
	unlock()

	if recap != "" {
		p.InjectContext(roomID, recap)
	}
	log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("provider", string(res.Type)).
		Bool("from_env", res.FromEnvironment).Msg("AI started")
	return nil
}

// recap renders the tail of the room conversation for a freshly started session.
func (o *Orchestrator) recap(roomID domain.RoomID) string {
	msgs := o.Context.Messages(roomID)
	if len(msgs) == 0 {
		return ""
	}
	if len(msgs) > recapLimit {
		msgs = msgs[len(msgs)-recapLimit:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant {
			lines = append(lines, "[AI]: "+m.Content)
			continue
		}
		lines = append(lines, m.Content)
	}
	return "Conversation so far:\n" + strings.Join(lines, "\n")
}

func (o *Orchestrator) StopAI(sid core.SessionID) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	if !o.detachAI(roomID, sid.PeerID(), ReasonStopped) {
		return ErrAINotActive
	}
	return nil
}

// detachAI takes the session of roomID out under the room lock and closes it after.
func (o *Orchestrator) detachAI(roomID domain.RoomID, by domain.PeerID, reason string) bool {
	unlock := o.lock(roomID)
	p, ok := o.AI.Detach(roomID)
	if ok {
		o.broadcast(roomID, aiStoppedEvent{Type: EventAIStopped, RoomID: roomID, By: by, Reason: reason}, "")
	}
	unlock()
	if !ok {
		return false
	}
	if err := p.CloseSession(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("close AI session")
	}
	log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("reason", reason).Msg("AI stopped")
	return true
}

func (o *Orchestrator) activeAI(sid core.SessionID) (domain.RoomID, domain.Peer, voiceai.Provider, error) {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return "", domain.Peer{}, nil, err
	}
	peer, ok := o.Rooms.Peer(roomID, sid.PeerID())
	if !ok {
		return "", domain.Peer{}, nil, ErrNotInRoom
	}
	p, ok := o.AI.Get(roomID)
	if !ok {
		return roomID, peer, nil, ErrAINotActive
	}
	return roomID, peer, p, nil
}

// AIAudio forwards a base64 PCM frame from the caller to the room's AI.
func (o *Orchestrator) AIAudio(sid core.SessionID, frame string) error {
	_, peer, p, err := o.activeAI(sid)
	if err != nil {
		return err
	}
	p.SetActiveSpeaker(string(peer.ID), peer.DisplayName)
	if err := p.SendAudio(frame); err != nil {
		if errors.Is(err, voiceai.ErrInvalidAudio) {
			return invalid(err.Error())
		}
		return domain.Reject(domain.CodeAISessionFailed, err.Error())
	}
	return nil
}

func (o *Orchestrator) AICommit(sid core.SessionID) error {
	_, peer, p, err := o.activeAI(sid)
	if err != nil {
		return err
	}
	p.SetActiveSpeaker(string(peer.ID), peer.DisplayName)
	if err := p.CommitAudio(); err != nil {
		return domain.Reject(domain.CodeAISessionFailed, err.Error())
	}
	return nil
}

// AIInterrupt cancels the response in flight and returns the AI to listening.
func (o *Orchestrator) AIInterrupt(sid core.SessionID) error {
	_, _, p, err := o.activeAI(sid)
	if err != nil {
		return err
	}
	if err := p.CancelResponse(); err != nil {
		return domain.Reject(domain.CodeAISessionFailed, err.Error())
	}
	p.SetInterrupted(true)
	p.SetInterrupted(false)
	return nil
}

// UpdateAI changes voice, instructions or temperature of the running session.
func (o *Orchestrator) UpdateAI(ctx context.Context, sid core.SessionID, req AIUpdateRequest) error {
	roomID, _, p, err := o.activeAI(sid)
	if err != nil {
		return err
	}
	if t := req.Temperature; t != nil && (*t <= 0 || *t > 2) {
		return invalid("temperature must be in (0, 2]")
	}
	switch {
	case req.Voice == nil && req.Instructions == nil && req.Temperature == nil:
		return invalid("nothing to update")
	case req.Voice == nil && req.Temperature == nil:
		err = p.UpdateInstructions(*req.Instructions)
	default:
		err = p.UpdateSession(ctx, voiceai.SessionPatch{
			Voice:        req.Voice,
			Instructions: req.Instructions,
			Temperature:  req.Temperature,
		})
	}
	switch {
	case errors.Is(err, voiceai.ErrUnsupportedVoice):
		return invalid(err.Error())
	case err != nil:
		return domain.Reject(domain.CodeAISessionFailed, err.Error())
	}
	o.broadcast(roomID, aiUpdatedEvent{
		Type:        EventAIUpdated,
		RoomID:      roomID,
		By:          sid.PeerID(),
		Voice:       p.Voice(),
		Temperature: p.Temperature(),
	}, "")
	return nil
}

// speakingChanged runs under the room lock. The returned call talks to the
// backend and must run after the lock is released.
func (o *Orchestrator) speakingChanged(roomID domain.RoomID, peer domain.Peer, speaking bool) func() {
	p, ok := o.AI.Get(roomID)
	if !ok {
		return nil
	}
	if speaking {
		interrupt := p.State() == voiceai.StateSpeaking
		return func() {
			p.SetActiveSpeaker(string(peer.ID), peer.DisplayName)
			if interrupt {
				log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("sid", string(peer.ID)).Msg("AI interrupted by speaker")
				p.SetInterrupted(true)
			}
		}
	}
	if p.IsConnected() && p.State() == voiceai.StateIdle {
		return func() { p.SetInterrupted(false) }
	}
	return nil
}

// Utterance records a text utterance (typed or transcribed on the client)
// and passes it to the AI when one is running.
func (o *Orchestrator) Utterance(sid core.SessionID, text string) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return invalid("text is required")
	}
	peer, ok := o.Rooms.Peer(roomID, sid.PeerID())
	if !ok {
		return ErrNotInRoom
	}

	if !o.Context.HasRoom(roomID) {
		o.Context.InitRoom(roomID, o.cfg.SystemPrompt)
		o.Context.AddParticipant(roomID, string(peer.ID), peer.DisplayName)
	}
	// the message hook writes the transcript store, so this stays outside the room lock
	o.Context.AddUserMessage(roomID, text, string(peer.ID))

	unlock := o.lock(roomID)
	o.broadcast(roomID, aiTranscriptEvent{Type: EventAITranscript, Transcript: voiceai.Transcript{
		RoomID: roomID, Role: domain.RoleUser, Text: text, Final: true,
		SpeakerID: string(peer.ID), SpeakerName: peer.DisplayName,
	}}, "")
	p, ok := o.AI.Get(roomID)
	unlock()

	if !ok {
		return nil
	}
	p.SetActiveSpeaker(string(peer.ID), peer.DisplayName)
	if !p.InjectContext(roomID, convo.FrameUtterance(peer.DisplayName, text)) {
		return nil
	}
	if err := p.TriggerResponse(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("trigger AI response")
	}
	return nil
}

// aiHandlers never take a room lock: providers may fire them from inside calls made under it.
func (o *Orchestrator) aiHandlers(b *binding) voiceai.Handlers {
	return voiceai.Handlers{
		OnStateChange: func(c voiceai.StateChange) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if !o.current(c.RoomID, b) {
				return
			}
			if c.Seq != 0 {
				if c.Seq <= b.seq {
					return
				}
				b.seq = c.Seq
			}
			o.broadcast(c.RoomID, aiStateEvent{Type: EventAIState, StateChange: c}, "")
		},
		OnTranscript: func(t voiceai.Transcript) {
			if !o.current(t.RoomID, b) {
				return
			}
			if t.Final {
				switch t.Role {
				case domain.RoleAssistant:
					o.Context.AddAssistantMessage(t.RoomID, t.Text)
				case domain.RoleUser:
					o.Context.AddUserMessage(t.RoomID, t.Text, t.SpeakerID)
				}
			}
			o.broadcast(t.RoomID, aiTranscriptEvent{Type: EventAITranscript, Transcript: t}, "")
		},
		OnAudio: func(roomID domain.RoomID, frame string) {
			if !o.current(roomID, b) {
				return
			}
			o.broadcast(roomID, aiAudioEvent{Type: EventAIAudio, RoomID: roomID, Audio: frame}, "")
		},
		OnError: func(roomID domain.RoomID, err error) {
			if !o.current(roomID, b) {
				return
			}
			o.broadcast(roomID, aiErrorEvent{
				Type: EventAIError, RoomID: roomID, Code: domain.CodeAISessionFailed, Message: err.Error(),
			}, "")
			if errors.Is(err, voiceai.ErrSessionClosed) && o.AI.RemoveIf(roomID, b.p) {
				o.broadcast(roomID, aiStoppedEvent{Type: EventAIStopped, RoomID: roomID, Reason: ReasonError}, "")
			}
		},
	}
}

func (o *Orchestrator) onMessageAdded(roomID domain.RoomID, msg domain.Message) {
	if o.Transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), transcriptTimeout)
	defer cancel()
	if err := o.Transcripts.Append(ctx, transcript.FromMessage(roomID, msg)); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("transcript append")
	}
}

func (o *Orchestrator) onNearTokenLimit(roomID domain.RoomID, tokens int) {
	log.Info().Str("module", "orch").Str("room_id", string(roomID)).Int("tokens", tokens).Msg("context near token limit")
	go o.summarize(roomID)
}

// summarize folds the room history into a summary and hands it to the live session.
func (o *Orchestrator) summarize(roomID domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
	defer cancel()

	msgs := o.Context.Messages(roomID)
	if prev := o.Context.Summary(roomID); prev != "" {
		msgs = append([]domain.Message{{Role: domain.RoleSystem, Content: prev}}, msgs...)
	}
	summary, err := o.summarizer.Summarize(ctx, msgs)
	if err != nil || summary == "" {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("summarize")
		return
	}
	if !o.Context.ApplySummary(roomID, summary) {
		return
	}
	if o.Transcripts != nil {
		_ = o.Transcripts.Append(ctx, transcript.Entry{
			RoomID: roomID, Kind: transcript.KindSummary, Role: domain.RoleSystem,
			Text: summary, Timestamp: o.now(),
		})
	}
	if p, ok := o.AI.Get(roomID); ok {
		p.InjectContext(roomID, summaryIntro+summary)
	}
	log.Info().Str("module", "orch").Str("room_id", string(roomID)).
		Int("tokens", o.Context.TokenCount(roomID)).Msg("context summarized")
}

func (o *Orchestrator) newTools() *voiceai.ToolRegistry {
	r := voiceai.NewToolRegistry()
	r.Register(voiceai.ToolSpec{
		Name:        "get_participants",
		Description: "List the people currently in the call.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(_ context.Context, call voiceai.FunctionCall) (any, error) {
		type participant struct {
			ID       domain.PeerID `json:"id"`
			Name     string        `json:"name"`
			Muted    bool          `json:"muted"`
			Speaking bool          `json:"speaking"`
		}
		peers := o.Rooms.ListPeers(call.RoomID)
		out := make([]participant, 0, len(peers))
		for _, p := range peers {
			out = append(out, participant{ID: p.ID, Name: p.DisplayName, Muted: p.Muted, Speaking: p.Speaking})
		}
		return map[string]any{"participants": out}, nil
	})
	r.Register(voiceai.ToolSpec{
		Name:        "media_control",
		Description: "Control the shared video player of the room.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{"play", "pause", "resume", "seek", "next", "previous", "goto", "stop"},
				},
				"index":       map[string]any{"type": "integer"},
				"currentTime": map[string]any{"type": "number"},
			},
			"required": []string{"action"},
		},
	}, func(_ context.Context, call voiceai.FunctionCall) (any, error) {
		var c mediasync.Control
		if err := json.Unmarshal(call.Arguments, &c); err != nil {
			return nil, err
		}
		if c.Action == mediasync.ActionPlay && len(c.Items) == 0 {
			if st, ok := o.Media.Snapshot(call.RoomID, o.now()); ok {
				c.Items, c.PlaylistID = st.Items, st.PlaylistID
			}
		}
		ev, err := o.applyMedia(call.RoomID, c, aiPeerID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "state": ev.State}, nil
	})
	return r
}
