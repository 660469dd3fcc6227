// Package rtc covers the WebRTC side of signaling: the ICE servers handed to
// clients and validation of the descriptions and candidates they exchange.
// The server never terminates media itself.
package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{defaultSTUN},
			},
		},
	}
}

// Configuration builds the client configuration from configured servers,
// falling back to the public STUN server.
func Configuration(servers []webrtc.ICEServer) webrtc.Configuration {
	var kept []webrtc.ICEServer
	for _, s := range servers {
		if len(s.URLs) > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{ICEServers: kept}
}

// Validate lets pion parse the ICE server urls and credentials by opening
// and closing a throwaway peer connection.
func Validate(cfg webrtc.Configuration) error {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("ice configuration: %w", err)
	}
	return pc.Close()
}
