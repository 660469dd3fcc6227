package rtc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	ErrInvalidSDP       = errors.New("invalid session description")
	ErrInvalidCandidate = errors.New("invalid ice candidate")
)

// ParseDescription accepts either a bare SDP string or an
// RTCSessionDescriptionInit object and checks it parses as the wanted type.
func ParseDescription(raw json.RawMessage, want webrtc.SDPType) (*sdp.SessionDescription, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: missing", ErrInvalidSDP)
	}

	desc := webrtc.SessionDescription{Type: want}
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &desc.SDP); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
		}
	} else {
		var init struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		}
		if err := json.Unmarshal(raw, &init); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
		}
		if init.Type != "" && webrtc.NewSDPType(init.Type) != want {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidSDP, want, init.Type)
		}
		desc.SDP = init.SDP
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSDP)
	}

	parsed, err := desc.Unmarshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: no media sections", ErrInvalidSDP)
	}
	return parsed, nil
}

// MediaKinds lists the m= section kinds in order, for logging.
func MediaKinds(d *sdp.SessionDescription) []string {
	kinds := make([]string, 0, len(d.MediaDescriptions))
	for _, m := range d.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds
}

// ParseCandidate decodes a trickled candidate. An empty candidate string marks end of candidates.
func ParseCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ci, fmt.Errorf("%w: missing", ErrInvalidCandidate)
	}
	if err := json.Unmarshal(raw, &ci); err != nil {
		return ci, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	c := strings.TrimPrefix(strings.TrimSpace(ci.Candidate), "a=")
	if c != "" && !strings.HasPrefix(c, "candidate:") {
		return ci, fmt.Errorf("%w: %q", ErrInvalidCandidate, ci.Candidate)
	}
	return ci, nil
}
