package signal

import (
	"github.com/dkeye/voxroom/internal/app/mediasync"
	"github.com/dkeye/voxroom/internal/core"
)

func (ctl *SignalWSController) handleVideoControl(sid core.SessionID, data []byte) error {
	var c mediasync.Control
	if err := decode(data, &c); err != nil {
		return err
	}
	return ctl.Orch.MediaControl(sid, c)
}

// handleVideoShorthand accepts "video:<action>" with the control fields at the top level.
func (ctl *SignalWSController) handleVideoShorthand(sid core.SessionID, action string, data []byte) error {
	var c mediasync.Control
	if err := decode(data, &c); err != nil {
		return err
	}
	c.Action = mediasync.Action(action)
	return ctl.Orch.MediaControl(sid, c)
}
