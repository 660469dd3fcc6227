package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

// Relay forwards an already validated offer, answer or candidate to a peer in the same room.
// Only the initiator of a pair may send the offer.
func (o *Orchestrator) Relay(sid core.SessionID, kind SignalKind, target domain.PeerID, payload json.RawMessage) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	from := sid.PeerID()
	if target == "" {
		return invalid("targetPeerId is required")
	}
	if target == from {
		return ErrSelfTarget
	}

	ev := relayEvent{Type: kind, FromPeerID: from}
	switch kind {
	case SignalOffer:
		if !app.ShouldInitiate(from, target) {
			return ErrNotInitiator
		}
		ev.SDP = payload
	case SignalAnswer:
		ev.SDP = payload
	case SignalCandidate:
		ev.Candidate = payload
	default:
		return invalid("unknown signal type")
	}

	unlock := o.lock(roomID)
	defer unlock()

	if _, ok := o.Rooms.Peer(roomID, from); !ok {
		return ErrNotInRoom
	}
	if _, ok := o.Rooms.Peer(roomID, target); !ok {
		return ErrPeerNotFound
	}
	o.send(roomID, target, ev)
	log.Debug().Str("module", "orch").Str("room_id", string(roomID)).Str("sid", string(from)).
		Str("target", string(target)).Str("kind", string(kind)).Msg("relayed")
	return nil
}
