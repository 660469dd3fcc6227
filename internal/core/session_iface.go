package core

import "github.com/dkeye/voxroom/internal/domain"

// SessionID identifies one client. It is issued as the client token cookie and doubles as peer id.
type SessionID string

func (s SessionID) PeerID() domain.PeerID { return domain.PeerID(s) }
