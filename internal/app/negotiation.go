package app

import "github.com/dkeye/voxroom/internal/domain"

// ShouldInitiate reports whether local sends the WebRTC offer to remote.
// The greater id initiates, so both sides agree without talking to each other.
func ShouldInitiate(local, remote domain.PeerID) bool {
	return local > remote
}
