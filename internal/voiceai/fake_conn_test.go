package voiceai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

var errFakeClosed = errors.New("fake conn closed")

// fakeConn plays the backend side of the realtime protocol.
type fakeConn struct {
	in     chan []byte
	out    chan map[string]any
	closed chan struct{}
	once   sync.Once

	// silent suppresses the session.updated reply.
	silent bool

	mu        sync.Mutex
	deadlines int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	if ev["type"] == "session.update" && !c.silent {
		c.push(map[string]any{"type": "session.updated"})
	}
	c.out <- ev
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error {
	c.mu.Lock()
	c.deadlines++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(ev map[string]any) {
	b, _ := json.Marshal(ev)
	c.in <- b
}

// next returns the next client event of the given type, skipping others.
func (c *fakeConn) next(typ string) map[string]any {
	for ev := range c.out {
		if ev["type"] == typ {
			return ev
		}
	}
	return nil
}

type fakeDialer struct {
	conn   *fakeConn
	url    string
	header http.Header
}

func (d *fakeDialer) Dial(_ context.Context, url string, header http.Header) (Conn, error) {
	d.url, d.header = url, header
	return d.conn, nil
}

// recorder collects handler callbacks.
type recorder struct {
	mu          sync.Mutex
	states      []StateChange
	transcripts []Transcript
	audio       []string
	errs        []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnStateChange: func(c StateChange) {
			r.mu.Lock()
			r.states = append(r.states, c)
			r.mu.Unlock()
		},
		OnTranscript: func(t Transcript) {
			r.mu.Lock()
			r.transcripts = append(r.transcripts, t)
			r.mu.Unlock()
		},
		OnAudio: func(_ domain.RoomID, frame string) {
			r.mu.Lock()
			r.audio = append(r.audio, frame)
			r.mu.Unlock()
		},
		OnError: func(_ domain.RoomID, err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) stateList() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.states))
	for _, c := range r.states {
		out = append(out, c.State)
	}
	return out
}

func (r *recorder) finalTranscripts() []Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transcript
	for _, t := range r.transcripts {
		if t.Final {
			out = append(out, t)
		}
	}
	return out
}
