package signal

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	joinTimer := time.AfterFunc(ctl.cfg.JoinTimeout, func() {
		if c.joined.Load() {
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("no join within timeout")
		ctl.sendError(c, domain.Reject(domain.CodeJoinTimeout, "join a room before "+ctl.cfg.JoinTimeout.String()), "")
		c.finish()
	})
	defer func() {
		joinTimer.Stop()
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(sid, c)
		ctl.limiter.Forget(sid.PeerID())
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.pongWait()))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

// rateLimited reports whether a client event counts against the control budget.
// Audio frames are a stream, not controls.
func rateLimited(typ string) bool {
	if typ == "ai:audio" {
		return false
	}
	return strings.HasPrefix(typ, "video:") || strings.HasPrefix(typ, "ai:")
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, domain.Reject(domain.CodeInvalidPayload, "malformed message"), "")
		return
	}
	if rateLimited(env.Type) && !ctl.limiter.Allow(sid.PeerID()) {
		ctl.sendError(c, domain.Reject(domain.CodeRateLimited, "too many requests"), env.Type)
		return
	}

	var err error
	switch env.Type {
	case "room:join":
		err = ctl.handleJoin(ctx, sid, c, data)
	case "room:leave":
		ctl.handleLeave(sid)
	case "presence:update":
		err = ctl.handlePresence(sid, data)
	case "whoami":
		ctl.handleWhoAmI(sid, c)
	case "ping":
		ctl.handlePing(c)
	case "signal:offer", "signal:answer", "signal:ice-candidate":
		err = ctl.handleRelay(sid, env.Type, data)
	case "video:sync":
		err = ctl.Orch.MediaSync(sid)
	case "video:control":
		err = ctl.handleVideoControl(sid, data)
	case "ai:start":
		err = ctl.handleAIStart(ctx, sid, data)
	case "ai:stop":
		err = ctl.Orch.StopAI(sid)
	case "ai:audio":
		err = ctl.handleAIAudio(sid, data)
	case "ai:commit":
		err = ctl.Orch.AICommit(sid)
	case "ai:interrupt":
		err = ctl.Orch.AIInterrupt(sid)
	case "ai:update":
		err = ctl.handleAIUpdate(ctx, sid, data)
	case "transcript:utterance":
		err = ctl.handleUtterance(sid, data)
	default:
		if action, ok := strings.CutPrefix(env.Type, "video:"); ok {
			err = ctl.handleVideoShorthand(sid, action, data)
			break
		}
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		err = domain.Reject(domain.CodeInvalidPayload, "unknown message type")
	}
	if err != nil {
		ctl.sendError(c, err, env.Type)
	}
}

type errorEvent struct {
	Type    string      `json:"type"`
	Code    domain.Code `json:"code"`
	Error   string      `json:"error"`
	Request string      `json:"request,omitempty"`
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error, request string) {
	code := domain.CodeOf(err, "")
	if code == "" {
		log.Error().Err(err).Str("module", "signal").Str("request", request).Msg("unclassified error")
		code = domain.CodeInvalidPayload
	}
	ctl.sendJSON(c, errorEvent{Type: "error", Code: code, Error: domain.ReasonOf(err), Request: request})
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// decode unmarshals a client payload, mapping failures to INVALID_PAYLOAD.
func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return domain.Reject(domain.CodeInvalidPayload, "bad payload: "+err.Error())
	}
	return nil
}
