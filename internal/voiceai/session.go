package voiceai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultToolTimeout    = 15 * time.Second
	defaultTemperature    = 0.8
	defaultAudioFormat    = "pcm16"
	defaultSampleRate     = 24000

	correlationKey = "correlation"
)

// serverEvent is the union of the server events the session reacts to.
type serverEvent struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	Response   *struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"response"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ev serverEvent) responseID() string {
	if ev.Response != nil {
		return ev.Response.ID
	}
	return ev.ResponseID
}

// realtimeSession drives one backend connection. Both adapters share it and
// differ only by dialect.
type realtimeSession struct {
	d              dialect
	apiKey         string
	model          string
	dialer         Dialer
	handlers       Handlers
	tools          ToolExecutor
	connectTimeout time.Duration
	toolTimeout    time.Duration

	writeMu sync.Mutex

	mu          sync.Mutex
	conn        Conn
	cfg         SessionConfig
	state       State
	ready       bool
	interrupted bool
	speakerID   string
	speakerName string
	responseID  string
	token       string
	seq         uint64
	cancelled   map[string]struct{}
	pending     map[string]FunctionCall
}

func newRealtimeSession(d dialect, apiKey string, fc FactoryConfig, opts Options) *realtimeSession {
	s := &realtimeSession{
		d:              d,
		apiKey:         apiKey,
		model:          fc.Model,
		dialer:         opts.Dialer,
		handlers:       opts.Handlers,
		tools:          opts.Tools,
		connectTimeout: fc.ConnectTimeout,
		toolTimeout:    fc.ToolTimeout,
		state:          StateIdle,
		cancelled:      map[string]struct{}{},
		pending:        map[string]FunctionCall{},
	}
	if s.model == "" {
		s.model = d.defaultModel
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = defaultConnectTimeout
	}
	if s.dialer == nil {
		s.dialer = WSDialer{HandshakeTimeout: s.connectTimeout}
	}
	if s.toolTimeout <= 0 {
		s.toolTimeout = defaultToolTimeout
	}
	return s
}

func (s *realtimeSession) Type() ProviderType         { return s.d.provider }
func (s *realtimeSession) Capabilities() Capabilities { return s.d.caps }

func (s *realtimeSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *realtimeSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *realtimeSession) Voice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Voice
}

func (s *realtimeSession) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Temperature
}

func (s *realtimeSession) withDefaults(cfg SessionConfig) SessionConfig {
	if cfg.Voice == "" {
		cfg.Voice = s.d.defaultVoice
	} else if !s.d.caps.SupportsVoice(cfg.Voice) {
		log.Warn().Str("module", "voiceai").Str("provider", string(s.d.provider)).
			Str("voice", cfg.Voice).Msg("unsupported voice, using default")
		cfg.Voice = s.d.defaultVoice
	}
	if cfg.Model == "" {
		cfg.Model = s.model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = defaultAudioFormat
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	return cfg
}

// CreateSession dials the backend, configures it and waits until it reports ready.
// An existing session is closed first.
func (s *realtimeSession) CreateSession(ctx context.Context, cfg SessionConfig) error {
	if s.IsConnected() {
		_ = s.CloseSession()
	}
	cfg = s.withDefaults(cfg)

	url, err := s.d.url(cfg.Model)
	if err != nil {
		return fmt.Errorf("%s endpoint: %w", s.d.provider, err)
	}

	dctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dctx, url, s.d.header(s.apiKey))
	if err != nil {
		return fmt.Errorf("%s connect: %w", s.d.provider, err)
	}

	ready := make(chan struct{})
	done := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.cfg = cfg
	s.state = StateIdle
	s.ready = false
	s.interrupted = false
	s.responseID = ""
	s.token = ""
	s.cancelled = map[string]struct{}{}
	s.pending = map[string]FunctionCall{}
	s.mu.Unlock()

	go s.readLoop(conn, ready, done)

	if err := s.write(conn, map[string]any{"type": "session.update", "session": s.d.session(cfg)}); err != nil {
		_ = s.CloseSession()
		return err
	}

	select {
	case <-ready:
	case <-done:
		_ = s.CloseSession()
		return fmt.Errorf("%s: %w", s.d.provider, ErrSessionClosed)
	case <-dctx.Done():
		_ = s.CloseSession()
		return fmt.Errorf("%s: %w", s.d.provider, ErrSessionTimeout)
	}

	log.Info().Str("module", "voiceai").Str("provider", string(s.d.provider)).
		Str("room", string(cfg.RoomID)).Str("voice", cfg.Voice).Msg("session ready")
	return nil
}

func (s *realtimeSession) CloseSession() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	if n := len(s.pending); n > 0 {
		log.Warn().Str("module", "voiceai").Str("room", string(s.cfg.RoomID)).
			Int("pending", n).Msg("closing session with outstanding function calls")
	}
	s.conn = nil
	s.ready = false
	s.responseID = ""
	s.token = ""
	s.cancelled = map[string]struct{}{}
	s.pending = map[string]FunctionCall{}
	effect := s.transitionLocked(StateIdle)
	room := s.cfg.RoomID
	s.mu.Unlock()

	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Str("module", "voiceai").Str("room", string(room)).Msg("close realtime conn")
	}
	run(effect)
	return nil
}

func (s *realtimeSession) UpdateSession(ctx context.Context, patch SessionPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if patch.Voice != nil {
		if !s.d.caps.SupportsVoice(*patch.Voice) {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w %q", s.d.provider, ErrUnsupportedVoice, *patch.Voice)
		}
		s.cfg.Voice = *patch.Voice
	}
	if patch.Instructions != nil {
		s.cfg.Instructions = *patch.Instructions
	}
	if patch.Temperature != nil {
		s.cfg.Temperature = *patch.Temperature
	}
	if patch.Tools != nil {
		s.cfg.Tools = patch.Tools
	}
	session := s.d.session(s.cfg)
	s.mu.Unlock()

	return s.write(conn, map[string]any{"type": "session.update", "session": session})
}

func (s *realtimeSession) UpdateInstructions(text string) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.cfg.Instructions = text
	composed := s.cfg.ComposeInstructions()
	s.mu.Unlock()

	return s.write(conn, map[string]any{
		"type":    "session.update",
		"session": map[string]any{"instructions": composed},
	})
}

func (s *realtimeSession) SendAudio(frame string) error {
	if _, err := base64.StdEncoding.DecodeString(frame); err != nil {
		return ErrInvalidAudio
	}
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return s.write(conn, map[string]any{"type": "input_audio_buffer.append", "audio": frame})
}

func (s *realtimeSession) CommitAudio() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.interrupted = false
	var effect func()
	if s.ready && (s.state == StateListening || s.state == StateIdle) {
		effect = s.transitionLocked(StateProcessing)
	}
	s.mu.Unlock()

	run(effect)
	return s.write(conn, map[string]any{"type": "input_audio_buffer.commit"})
}

func (s *realtimeSession) TriggerResponse() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.interrupted = false
	token := uuid.NewString()
	s.token = token
	var effect func()
	if s.ready && (s.state == StateListening || s.state == StateIdle) {
		effect = s.transitionLocked(StateProcessing)
	}
	s.mu.Unlock()

	run(effect)
	return s.write(conn, responseCreate(token))
}

// CancelResponse stops the in-flight response. Calling it with nothing in flight is a no-op.
func (s *realtimeSession) CancelResponse() error {
	s.mu.Lock()
	conn := s.conn
	id := s.responseID
	if conn == nil || (id == "" && s.token == "") {
		s.mu.Unlock()
		return nil
	}
	s.token = ""
	if id != "" {
		s.cancelled[id] = struct{}{}
		s.responseID = ""
	}
	var effect func()
	if s.ready && len(s.pending) == 0 {
		effect = s.transitionLocked(StateListening)
	}
	s.mu.Unlock()

	run(effect)
	if id == "" {
		return nil
	}
	return s.write(conn, map[string]any{"type": "response.cancel", "response_id": id})
}

// SendFunctionOutput returns a tool result to the model. Once no calls are
// outstanding a follow-up response is requested.
func (s *realtimeSession) SendFunctionOutput(callID, result string) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := s.pending[callID]; !ok {
		s.mu.Unlock()
		return ErrUnknownCall
	}
	delete(s.pending, callID)
	var token string
	if len(s.pending) == 0 && !s.interrupted {
		token = uuid.NewString()
		s.token = token
	}
	s.mu.Unlock()

	err := s.write(conn, map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  result,
		},
	})
	if err != nil || token == "" {
		return err
	}
	return s.write(conn, responseCreate(token))
}

// InjectContext adds a system note to the live conversation of roomID.
func (s *realtimeSession) InjectContext(roomID domain.RoomID, text string) bool {
	s.mu.Lock()
	conn := s.conn
	match := s.cfg.RoomID == roomID
	s.mu.Unlock()
	if conn == nil || !match || text == "" {
		return false
	}
	err := s.write(conn, map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "message",
			"role":    "system",
			"content": []map[string]any{{"type": "input_text", "text": text}},
		},
	})
	return err == nil
}

func (s *realtimeSession) SetActiveSpeaker(id, name string) {
	s.mu.Lock()
	s.speakerID, s.speakerName = id, name
	s.mu.Unlock()
}

// SetInterrupted(true) cancels whatever the model is doing and drops pending
// calls; SetInterrupted(false) resumes listening.
func (s *realtimeSession) SetInterrupted(interrupted bool) {
	s.mu.Lock()
	s.interrupted = interrupted
	conn := s.conn
	var effects []func()
	if interrupted {
		if id := s.responseID; id != "" && conn != nil {
			s.cancelled[id] = struct{}{}
			s.responseID = ""
			effects = append(effects, func() {
				_ = s.write(conn, map[string]any{"type": "response.cancel", "response_id": id})
			})
		}
		s.token = ""
		if n := len(s.pending); n > 0 {
			log.Debug().Str("module", "voiceai").Str("room", string(s.cfg.RoomID)).
				Int("pending", n).Msg("dropping function calls on interrupt")
			s.pending = map[string]FunctionCall{}
		}
		effects = append(effects, s.transitionLocked(StateIdle))
	} else if s.ready && s.state == StateIdle {
		effects = append(effects, s.transitionLocked(StateListening))
	}
	s.mu.Unlock()
	run(effects...)
}

func (s *realtimeSession) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *realtimeSession) write(conn Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write realtime event: %w", err)
	}
	return nil
}

func (s *realtimeSession) readLoop(conn Conn, ready, done chan struct{}) {
	defer close(done)
	var readyOnce sync.Once
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.dropped(conn, err)
			return
		}
		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Str("module", "voiceai").Msg("undecodable realtime event")
			continue
		}
		s.handle(conn, ev)
		if ev.Type == "session.updated" {
			readyOnce.Do(func() { close(ready) })
		}
	}
}

// dropped handles a read failure. A conn we closed ourselves is ignored.
func (s *realtimeSession) dropped(conn Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.ready = false
	s.responseID = ""
	s.pending = map[string]FunctionCall{}
	effect := s.transitionLocked(StateIdle)
	room := s.cfg.RoomID
	s.mu.Unlock()

	log.Warn().Err(cause).Str("module", "voiceai").Str("room", string(room)).Msg("realtime connection lost")
	run(effect)
	if h := s.handlers.OnError; h != nil {
		h(room, fmt.Errorf("%w: %v", ErrSessionClosed, cause))
	}
}

func (s *realtimeSession) handle(conn Conn, ev serverEvent) {
	var effects []func()

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	room := s.cfg.RoomID

	switch ev.Type {
	case "session.updated":
		if !s.ready {
			s.ready = true
			if !s.interrupted {
				effects = append(effects, s.transitionLocked(StateListening))
			}
		}

	case "input_audio_buffer.speech_started":
		// barge-in: the backend stops the response on its own, drop what is still in flight
		if s.state == StateSpeaking && len(s.pending) == 0 {
			if s.responseID != "" {
				s.cancelled[s.responseID] = struct{}{}
				s.responseID = ""
			}
			effects = append(effects, s.transitionLocked(StateListening))
		}

	case "input_audio_buffer.committed":
		if s.ready && !s.interrupted && s.state == StateListening {
			effects = append(effects, s.transitionLocked(StateProcessing))
		}

	case "conversation.item.input_audio_transcription.completed":
		if h := s.handlers.OnTranscript; h != nil && ev.Transcript != "" {
			t := Transcript{
				RoomID: room, Role: domain.RoleUser, Text: ev.Transcript, Final: true,
				SpeakerID: s.speakerID, SpeakerName: s.speakerName,
			}
			effects = append(effects, func() { h(t) })
		}

	case "response.created":
		id := ev.responseID()
		if _, gone := s.cancelled[id]; gone {
			break
		}
		var tok string
		if ev.Response != nil {
			tok = ev.Response.Metadata[correlationKey]
		}
		if s.interrupted || (tok != "" && tok != s.token) {
			s.cancelled[id] = struct{}{}
			effects = append(effects, func() {
				_ = s.write(conn, map[string]any{"type": "response.cancel", "response_id": id})
			})
			break
		}
		s.responseID = id
		if s.ready && (s.state == StateListening || s.state == StateIdle) {
			effects = append(effects, s.transitionLocked(StateProcessing))
		}

	case "response.audio.delta", "response.output_audio.delta":
		if !s.acceptLocked(ev.responseID()) {
			break
		}
		if len(s.pending) == 0 {
			effects = append(effects, s.transitionLocked(StateSpeaking))
		}
		if h := s.handlers.OnAudio; h != nil {
			frame := ev.Delta
			effects = append(effects, func() { h(room, frame) })
		}

	case "response.audio_transcript.delta", "response.output_audio_transcript.delta",
		"response.text.delta", "response.output_text.delta":
		if !s.acceptLocked(ev.responseID()) {
			break
		}
		if len(s.pending) == 0 {
			effects = append(effects, s.transitionLocked(StateSpeaking))
		}
		if h := s.handlers.OnTranscript; h != nil {
			t := Transcript{RoomID: room, Role: domain.RoleAssistant, Text: ev.Delta}
			effects = append(effects, func() { h(t) })
		}

	case "response.audio_transcript.done", "response.output_audio_transcript.done",
		"response.text.done", "response.output_text.done":
		if !s.acceptLocked(ev.responseID()) {
			break
		}
		text := ev.Transcript
		if text == "" {
			text = ev.Text
		}
		if h := s.handlers.OnTranscript; h != nil && text != "" {
			t := Transcript{RoomID: room, Role: domain.RoleAssistant, Text: text, Final: true}
			effects = append(effects, func() { h(t) })
		}

	case "response.function_call_arguments.done":
		if !s.acceptLocked(ev.responseID()) || ev.CallID == "" {
			break
		}
		args := ev.Arguments
		if args == "" {
			args = "{}"
		}
		call := FunctionCall{RoomID: room, ID: ev.CallID, Name: ev.Name, Arguments: json.RawMessage(args)}
		s.pending[call.ID] = call
		effects = append(effects, func() { go s.dispatch(call) })

	case "response.done":
		id := ev.responseID()
		if _, gone := s.cancelled[id]; gone {
			delete(s.cancelled, id)
			break
		}
		if id == s.responseID {
			s.responseID = ""
		}
		if len(s.pending) == 0 && !s.interrupted && (s.state == StateSpeaking || s.state == StateProcessing) {
			effects = append(effects, s.transitionLocked(StateListening))
		}

	case "error":
		if ev.Error == nil || ev.Error.Code == "response_cancel_not_active" {
			break
		}
		perr := &ProviderError{Code: ev.Error.Code, Message: ev.Error.Message}
		if h := s.handlers.OnError; h != nil {
			effects = append(effects, func() { h(room, perr) })
		}
		log.Warn().Str("module", "voiceai").Str("room", string(room)).
			Str("code", perr.Code).Msg(perr.Message)
	}
	s.mu.Unlock()

	run(effects...)
}

// acceptLocked decides whether an event belongs to the live response.
func (s *realtimeSession) acceptLocked(id string) bool {
	if s.interrupted {
		return false
	}
	if id == "" {
		return true
	}
	if _, gone := s.cancelled[id]; gone {
		return false
	}
	if s.responseID == "" {
		s.responseID = id
	}
	return id == s.responseID
}

func (s *realtimeSession) dispatch(call FunctionCall) {
	ctx, cancel := context.WithTimeout(context.Background(), s.toolTimeout)
	defer cancel()

	var result string
	if s.tools == nil {
		result = errorResult(ErrUnknownTool)
	} else if out, err := s.tools.Execute(ctx, call); err != nil {
		log.Warn().Err(err).Str("module", "voiceai").Str("room", string(call.RoomID)).
			Str("tool", call.Name).Msg("tool failed")
		result = errorResult(err)
	} else {
		result = out
	}

	if err := s.SendFunctionOutput(call.ID, result); err != nil {
		log.Debug().Err(err).Str("module", "voiceai").Str("call", call.ID).Msg("function output discarded")
	}
}

// transitionLocked records the new state and returns the notification to fire after unlocking.
func (s *realtimeSession) transitionLocked(to State) func() {
	if s.state == to {
		return nil
	}
	s.state = to
	s.seq++
	change := StateChange{RoomID: s.cfg.RoomID, State: to, Seq: s.seq}
	if to == StateListening || to == StateProcessing {
		change.SpeakerID, change.SpeakerName = s.speakerID, s.speakerName
	}
	h := s.handlers.OnStateChange
	if h == nil {
		return nil
	}
	return func() { h(change) }
}

func responseCreate(token string) map[string]any {
	return map[string]any{
		"type":     "response.create",
		"response": map[string]any{"metadata": map[string]string{correlationKey: token}},
	}
}

func errorResult(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func run(effects ...func()) {
	for _, e := range effects {
		if e != nil {
			e()
		}
	}
}
