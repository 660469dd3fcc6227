package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/adapters/rtc"
	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

// handleRelay validates an SDP or ICE payload with pion before the orchestrator forwards it verbatim.
func (ctl *SignalWSController) handleRelay(sid core.SessionID, typ string, data []byte) error {
	type relayPayload struct {
		TargetPeerID domain.PeerID   `json:"targetPeerId"`
		SDP          json.RawMessage `json:"sdp,omitempty"`
		Candidate    json.RawMessage `json:"candidate,omitempty"`
	}
	var p relayPayload
	if err := decode(data, &p); err != nil {
		return err
	}

	kind := orch.SignalKind(typ)
	payload := p.SDP
	switch kind {
	case orch.SignalOffer, orch.SignalAnswer:
		want := webrtc.SDPTypeOffer
		if kind == orch.SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		desc, err := rtc.ParseDescription(p.SDP, want)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("rejected sdp")
			return domain.Reject(domain.CodeInvalidSDP, err.Error())
		}
		log.Debug().Str("module", "signal").Str("sid", string(sid)).
			Strs("media", rtc.MediaKinds(desc)).Str("kind", typ).Msg("sdp ok")
	case orch.SignalCandidate:
		if _, err := rtc.ParseCandidate(p.Candidate); err != nil {
			return domain.Reject(domain.CodeInvalidPayload, err.Error())
		}
		payload = p.Candidate
	}
	return ctl.Orch.Relay(sid, kind, p.TargetPeerID, payload)
}
