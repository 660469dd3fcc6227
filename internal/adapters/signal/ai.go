package signal

import (
	"context"

	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

func (ctl *SignalWSController) handleAIStart(ctx context.Context, sid core.SessionID, data []byte) error {
	var req orch.AIStartRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	return ctl.Orch.StartAI(ctx, sid, req)
}

func (ctl *SignalWSController) handleAIUpdate(ctx context.Context, sid core.SessionID, data []byte) error {
	var req orch.AIUpdateRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	return ctl.Orch.UpdateAI(ctx, sid, req)
}

func (ctl *SignalWSController) handleAIAudio(sid core.SessionID, data []byte) error {
	var p struct {
		Audio string `json:"audio"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.Audio == "" {
		return domain.Reject(domain.CodeInvalidPayload, "audio is required")
	}
	return ctl.Orch.AIAudio(sid, p.Audio)
}

func (ctl *SignalWSController) handleUtterance(sid core.SessionID, data []byte) error {
	var p struct {
		Text string `json:"text"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.Utterance(sid, p.Text)
}
