package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) error {
	type joinPayload struct {
		RoomID      string `json:"roomId"`
		DisplayName string `json:"displayName,omitempty"`
	}
	var p joinPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	name := p.DisplayName
	if name == "" {
		name = conn.defaultName
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", p.RoomID).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, domain.RoomID(p.RoomID), name); err != nil {
		return err
	}
	conn.joined.Store(true)
	return nil
}

// handleLeave exits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
}
