package signal

import "time"

// handlePing answers the application-level keepalive with the server clock so
// clients can estimate skew for media sync.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
	}{
		Type:       "pong",
		ServerTime: time.Now().UnixMilli(),
	}
	ctl.sendJSON(conn, resp)
}
