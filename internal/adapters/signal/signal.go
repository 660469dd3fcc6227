package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SessionNameKey is where the HTTP layer remembers a display name between visits.
const SessionNameKey = "display_name"

type Config struct {
	JoinTimeout time.Duration
	ReadLimit   int64
	PingPeriod  time.Duration
	WriteWait   time.Duration
	SendBuffer  int
	RateLimit   int
	RateWindow  time.Duration
}

func (c Config) withDefaults() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 15 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	return c
}

// pongWait must exceed the ping period so one lost pong is tolerated.
func (c Config) pongWait() time.Duration { return c.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Orch    *orch.Orchestrator
	cfg     Config
	limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, cfg Config) *SignalWSController {
	cfg = cfg.withDefaults()
	return &SignalWSController{
		Orch:    o,
		cfg:     cfg,
		limiter: NewRoomRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	// name remembered by the HTTP session, used when room:join carries none
	defaultName string
	joined      atomic.Bool

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	if c.finish() {
		_ = c.conn.Close()
	}
}

// finish stops accepting frames; the write pump drains what is queued and closes the socket.
func (c *WsSignalConn) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	if sid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	name, _ := sessions.Default(c).Get(SessionNameKey).(string)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:        ws,
		send:        make(chan core.Frame, ctl.cfg.SendBuffer),
		defaultName: name,
	}
	ctx, cancel := context.WithCancel(ctx)
	if prev := ctl.Orch.Registry.Bind(sid, conn, cancel); prev != nil {
		prev.Close()
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
