package orch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voxroom/internal/app/convo"
	"github.com/dkeye/voxroom/internal/app/mediasync"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/transcript"
	"github.com/dkeye/voxroom/internal/voiceai"
)

func TestStartAIBroadcastsAndConfiguresSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	b := h.join(t, "b", "r1")
	require.NoError(t, h.o.Utterance("b", "hello there"))

	req := AIStartRequest{Personality: "a calm host", Topic: "release planning"}
	require.NoError(t, h.o.StartAI(context.Background(), "a", req))

	for _, c := range []*fakeConn{a, b} {
		ev := c.last(t, EventAIStarted)
		assert.Equal(t, "openai", ev["provider"])
		assert.Equal(t, "a", ev["startedBy"])
		assert.Equal(t, "listening", ev["state"])
	}
	p := h.provider(t, 0)
	assert.Equal(t, domain.RoomID("r1"), p.cfg.RoomID)
	assert.Equal(t, "release planning", p.cfg.Topic)
	assert.NotEmpty(t, p.cfg.Tools)

	injected, _, _ := p.snapshot()
	require.NotEmpty(t, injected)
	assert.Contains(t, injected[0], "[b]: hello there")

	c := h.join(t, "c", "r1")
	view := c.last(t, EventRoomJoined)["ai"].(map[string]any)
	assert.Equal(t, true, view["active"])
	assert.Equal(t, "alloy", view["voice"])
	injected, _, _ = p.snapshot()
	assert.Contains(t, injected, "c joined the call.")
}

func TestStartAIFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("not seated", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.connect("a")
		assert.ErrorIs(t, h.o.StartAI(ctx, "a", AIStartRequest{}), ErrNotInRoom)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.factErr = &voiceai.ConfigError{Kind: voiceai.KindMissingAPIKey, Provider: "openai"}
		h.room(t, "r1", 4)
		h.join(t, "a", "r1")
		err := h.o.StartAI(ctx, "a", AIStartRequest{})
		assert.Equal(t, domain.CodeAIUnavailable, domain.CodeOf(err, ""))
		assert.Zero(t, h.o.AI.Len())
	})

	t.Run("session refused", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.queue(&fakeProvider{createErr: voiceai.ErrSessionTimeout})
		h.room(t, "r1", 4)
		a := h.join(t, "a", "r1")
		err := h.o.StartAI(ctx, "a", AIStartRequest{})
		assert.Equal(t, domain.CodeAISessionFailed, domain.CodeOf(err, ""))
		assert.Zero(t, h.o.AI.Len())
		assert.Empty(t, a.events(EventAIStarted))

		require.NoError(t, h.o.StartAI(ctx, "a", AIStartRequest{}), "a failed start does not block the next one")
	})
}

func TestStopAI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")

	assert.ErrorIs(t, h.o.StopAI("a"), ErrAINotActive)
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))
	require.NoError(t, h.o.StopAI("a"))

	ev := a.last(t, EventAIStopped)
	assert.Equal(t, ReasonStopped, ev["reason"])
	assert.Equal(t, "a", ev["by"])
	_, _, closed := h.provider(t, 0).snapshot()
	assert.Equal(t, 1, closed)
}

func TestAIAudioAndCommit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	h.join(t, "a", "r1")

	assert.ErrorIs(t, h.o.AIAudio("a", "AAAA"), ErrAINotActive)
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))

	require.NoError(t, h.o.AIAudio("a", "AAAA"))
	err := h.o.AIAudio("a", "")
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err, ""))
	require.NoError(t, h.o.AICommit("a"))

	p := h.provider(t, 0)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"AAAA"}, p.audio)
	assert.Equal(t, 1, p.commits)
	assert.Equal(t, "a/a", p.speaker)
}

func TestSpeakingInterruptsTheAI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	h.join(t, "a", "r1")
	h.join(t, "b", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))
	p := h.provider(t, 0)

	require.NoError(t, h.o.UpdatePresence("b", domain.PeerPatch{Speaking: boolp(true)}))
	_, interrupts, _ := p.snapshot()
	assert.Empty(t, interrupts, "listening AI is not interrupted")

	p.setState(voiceai.StateSpeaking)
	require.NoError(t, h.o.UpdatePresence("b", domain.PeerPatch{Speaking: boolp(true)}))
	require.NoError(t, h.o.UpdatePresence("b", domain.PeerPatch{Speaking: boolp(false)}))
	_, interrupts, _ = p.snapshot()
	assert.Equal(t, []bool{true, false}, interrupts)
	assert.Equal(t, voiceai.StateListening, p.State())

	require.NoError(t, h.o.AIInterrupt("a"))
	_, interrupts, _ = p.snapshot()
	assert.Equal(t, []bool{true, false, true, false}, interrupts)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, p.cancels, "interrupt cancels the response in flight")
}

func TestAIEventsReachTheRoom(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))
	hd := h.provider(t, 0).handlers

	hd.OnStateChange(voiceai.StateChange{RoomID: "r1", State: voiceai.StateProcessing, SpeakerID: "a", SpeakerName: "a"})
	st := a.last(t, EventAIState)
	assert.Equal(t, "processing", st["state"])
	assert.Equal(t, "a", st["activeSpeakerId"])

	hd.OnAudio("r1", "UklGRg==")
	assert.Equal(t, "UklGRg==", a.last(t, EventAIAudio)["audio"])

	hd.OnTranscript(voiceai.Transcript{RoomID: "r1", Role: domain.RoleAssistant, Text: "Hi"})
	hd.OnTranscript(voiceai.Transcript{RoomID: "r1", Role: domain.RoleAssistant, Text: "Hi all", Final: true})
	assert.Len(t, a.events(EventAITranscript), 2)

	msgs := h.o.Context.Messages("r1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi all", msgs[0].Content)

	entries, err := h.transcripts.List(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.RoleAssistant, entries[0].Role)
}

func TestAIConnectionLossStopsTheSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))

	h.provider(t, 0).handlers.OnError("r1", voiceai.ErrSessionClosed)

	assert.Equal(t, string(domain.CodeAISessionFailed), a.last(t, EventAIError)["code"])
	assert.Equal(t, ReasonError, a.last(t, EventAIStopped)["reason"])
	assert.Zero(t, h.o.AI.Len())
}

func TestStaleProviderEventsAreDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	ctx := context.Background()

	require.NoError(t, h.o.StartAI(ctx, "a", AIStartRequest{}))
	require.NoError(t, h.o.StopAI("a"))
	require.NoError(t, h.o.StartAI(ctx, "a", AIStartRequest{}))
	stale := h.provider(t, 0).handlers
	a.reset()

	stale.OnStateChange(voiceai.StateChange{RoomID: "r1", State: voiceai.StateSpeaking})
	stale.OnError("r1", voiceai.ErrSessionClosed)

	assert.Empty(t, a.events(EventAIState))
	assert.Empty(t, a.events(EventAIStopped))
	assert.Equal(t, 1, h.o.AI.Len())
}

func TestUtteranceIsFramedForTheAI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))

	err := h.o.Utterance("a", "  ")
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err, ""))
	require.NoError(t, h.o.Utterance("a", "what's next?"))

	tr := a.last(t, EventAITranscript)
	assert.Equal(t, "user", tr["role"])
	assert.Equal(t, "a", tr["speakerName"])

	p := h.provider(t, 0)
	injected, _, _ := p.snapshot()
	assert.Contains(t, injected, convo.FrameUtterance("a", "what's next?"))
	p.mu.Lock()
	assert.Equal(t, 1, p.triggers, "typed input asks the AI to answer")
	p.mu.Unlock()

	entries, err := h.transcripts.List(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "what's next?", entries[0].Text)
	assert.Equal(t, "a", entries[0].SpeakerName)
}

func TestStartAIClosesThePreviousSessionFirst(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	ctx := context.Background()

	require.NoError(t, h.o.StartAI(ctx, "a", AIStartRequest{}))
	first := h.provider(t, 0)

	closedAtConnect := -1
	h.queue(&fakeProvider{onCreate: func() { _, _, closedAtConnect = first.snapshot() }})
	require.NoError(t, h.o.StartAI(ctx, "a", AIStartRequest{}))

	assert.Equal(t, 1, closedAtConnect, "one backend session per room at a time")
	assert.Equal(t, ReasonReplaced, a.last(t, EventAIStopped)["reason"])
	cur, ok := h.o.AI.Get("r1")
	require.True(t, ok)
	assert.Equal(t, voiceai.Provider(h.provider(t, 1)), cur)
}

func TestStalledAIBackendDoesNotBlockTheRoom(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	h.join(t, "a", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))

	p := h.provider(t, 0)
	stall := make(chan struct{})
	t.Cleanup(func() { close(stall) })
	p.mu.Lock()
	p.stall = stall
	p.mu.Unlock()

	h.connect("c")
	go func() { _ = h.o.Join(context.Background(), "c", "r1", "c") }()
	require.Eventually(t, func() bool { return p.stalledCalls() > 0 }, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- h.o.MediaControl("a", mediasync.Control{Action: mediasync.ActionPlay, Items: []mediasync.Item{{ID: "v1"}}})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("room blocked behind a stalled AI backend")
	}
	assert.Len(t, h.o.Rooms.ListPeers("r1"), 2)
}

func TestLateAIStateIsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))
	hd := h.provider(t, 0).handlers
	a.reset()

	hd.OnStateChange(voiceai.StateChange{RoomID: "r1", State: voiceai.StateIdle, Seq: 3})
	hd.OnStateChange(voiceai.StateChange{RoomID: "r1", State: voiceai.StateSpeaking, Seq: 2})
	hd.OnStateChange(voiceai.StateChange{RoomID: "r1", State: voiceai.StateListening, Seq: 4})

	evs := a.events(EventAIState)
	require.Len(t, evs, 2)
	assert.Equal(t, "idle", evs[0]["state"])
	assert.Equal(t, "listening", evs[1]["state"])
}

func TestUpdateAI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	ctx := context.Background()
	voice, bad, short := "alloy", "Rex", "Keep it short."
	cool, hot := 0.6, 3.0

	assert.ErrorIs(t, h.o.UpdateAI(ctx, "a", AIUpdateRequest{Voice: &voice}), ErrAINotActive)
	require.NoError(t, h.o.StartAI(ctx, "a", AIStartRequest{}))

	tests := []struct {
		name string
		req  AIUpdateRequest
		code domain.Code
	}{
		{name: "empty", req: AIUpdateRequest{}, code: domain.CodeInvalidPayload},
		{name: "unknown voice", req: AIUpdateRequest{Voice: &bad}, code: domain.CodeInvalidPayload},
		{name: "temperature out of range", req: AIUpdateRequest{Temperature: &hot}, code: domain.CodeInvalidPayload},
		{name: "instructions", req: AIUpdateRequest{Instructions: &short}},
		{name: "voice and temperature", req: AIUpdateRequest{Voice: &voice, Temperature: &cool}},
	}
	for _, tc := range tests {
		err := h.o.UpdateAI(ctx, "a", tc.req)
		if tc.code != "" {
			assert.Equal(t, tc.code, domain.CodeOf(err, ""), tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
	}

	p := h.provider(t, 0)
	p.mu.Lock()
	assert.Equal(t, []string{short}, p.instructions)
	require.Len(t, p.patches, 1)
	assert.Equal(t, cool, *p.patches[0].Temperature)
	p.mu.Unlock()

	ev := a.last(t, EventAIUpdated)
	assert.Equal(t, "alloy", ev["voice"])
	assert.Equal(t, "a", ev["by"])
	assert.Len(t, a.events(EventAIUpdated), 2)
}

// scriptedSummarizer returns its outputs in order and keeps what it was given.
type scriptedSummarizer struct {
	mu     sync.Mutex
	out    []string
	inputs [][]domain.Message
}

func (s *scriptedSummarizer) Summarize(_ context.Context, msgs []domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, msgs)
	return s.out[len(s.inputs)-1], nil
}

func TestSummariesBuildOnEachOther(t *testing.T) {
	t.Parallel()
	sum := &scriptedSummarizer{out: []string{"they picked Tuesday", "they picked Tuesday and booked the big room"}}
	h := newHarness(t, func(d *Deps, _ *Config) { d.Summarizer = sum })
	h.room(t, "r1", 4)
	h.join(t, "a", "r1")

	require.NoError(t, h.o.Utterance("a", "shall we meet on Tuesday?"))
	h.o.summarize("r1")
	require.NoError(t, h.o.Utterance("a", "book the big room"))
	h.o.summarize("r1")

	sum.mu.Lock()
	defer sum.mu.Unlock()
	require.Len(t, sum.inputs, 2)
	assert.NotEqual(t, domain.RoleSystem, sum.inputs[0][0].Role)
	assert.Equal(t, domain.RoleSystem, sum.inputs[1][0].Role)
	assert.Equal(t, "they picked Tuesday", sum.inputs[1][0].Content)
	assert.Equal(t, "they picked Tuesday and booked the big room", h.o.Context.Summary("r1"))
}

type stubSummarizer struct{ text string }

func (s stubSummarizer) Summarize(context.Context, []domain.Message) (string, error) {
	if s.text == "" {
		return "", errors.New("nothing to say")
	}
	return s.text, nil
}

func TestNearTokenLimitSummarizes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(d *Deps, c *Config) {
		d.Summarizer = stubSummarizer{text: "they planned the launch"}
		c.Context = convo.Config{MaxTokens: 60, TargetTokens: 20, AutoSummary: true}
	})
	h.room(t, "r1", 4)
	h.join(t, "a", "r1")
	require.NoError(t, h.o.StartAI(context.Background(), "a", AIStartRequest{}))

	for i := 0; i < 4; i++ {
		require.NoError(t, h.o.Utterance("a", strings.Repeat("launch plan details ", 5)))
	}

	require.Eventually(t, func() bool {
		entries, _ := h.transcripts.List(context.Background(), "r1")
		for _, e := range entries {
			if e.Kind == transcript.KindSummary {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		injected, _, _ := h.provider(t, 0).snapshot()
		for _, s := range injected {
			if strings.HasPrefix(s, summaryIntro) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestAITools(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.room(t, "r1", 4)
	a := h.join(t, "a", "r1")
	h.join(t, "b", "r1")
	ctx := context.Background()

	out, err := h.o.tools.Execute(ctx, voiceai.FunctionCall{RoomID: "r1", Name: "get_participants"})
	require.NoError(t, err)
	var got struct {
		Participants []struct {
			ID string `json:"id"`
		} `json:"participants"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Participants, 2)

	args := json.RawMessage(`{"action":"play","items":[{"id":"v1"}]}`)
	_, err = h.o.tools.Execute(ctx, voiceai.FunctionCall{RoomID: "r1", Name: "media_control", Arguments: args})
	require.NoError(t, err)
	assert.Equal(t, "ai", a.last(t, "video:play")["by"])

	_, err = h.o.tools.Execute(ctx, voiceai.FunctionCall{RoomID: "r1", Name: "media_control", Arguments: json.RawMessage(`{"action":"seek"}`)})
	assert.Error(t, err)
}
