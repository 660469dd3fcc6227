package signal

import (
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

func (ctl *SignalWSController) handlePresence(sid core.SessionID, data []byte) error {
	type presencePayload struct {
		Muted           *bool             `json:"muted,omitempty"`
		Speaking        *bool             `json:"speaking,omitempty"`
		ConnectionState *domain.ConnState `json:"connectionState,omitempty"`
		DisplayName     *string           `json:"displayName,omitempty"`
	}
	var p presencePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.UpdatePresence(sid, domain.PeerPatch{
		Muted:       p.Muted,
		Speaking:    p.Speaking,
		ConnState:   p.ConnectionState,
		DisplayName: p.DisplayName,
	})
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	resp := struct {
		Type   string        `json:"type"`
		PeerID domain.PeerID `json:"peerId"`
		RoomID domain.RoomID `json:"roomId,omitempty"`
		Peer   *domain.Peer  `json:"peer,omitempty"`
	}{
		Type:   "whoami",
		PeerID: sid.PeerID(),
	}
	if roomID, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.RoomID = roomID
		if p, ok := ctl.Orch.Rooms.Peer(roomID, sid.PeerID()); ok {
			resp.Peer = &p
		}
	}
	ctl.sendJSON(conn, resp)
}
