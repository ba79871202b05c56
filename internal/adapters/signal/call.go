package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Talkie/internal/app/orch"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleCallAction(ctx context.Context, c *wsSignalConn, data []byte) {
	type callPayload struct {
		Type     string `json:"type"`
		Action   string `json:"action"`
		CallType string `json:"call_type"`
		Duration *int   `json:"duration"`
	}
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad call_action payload")
		ctl.sendError(ctx, c, "call_action", errBadPayload)
		return
	}
	if !ctl.allow(c) {
		ctl.sendError(ctx, c, p.Type, errRateLimited)
		return
	}
	action, err := domain.ParseCallAction(p.Action)
	if err != nil {
		ctl.sendError(ctx, c, p.Type, err)
		return
	}
	kind, err := domain.ParseCallKind(p.CallType)
	if err != nil {
		ctl.sendError(ctx, c, p.Type, err)
		return
	}
	_, err = ctl.Orch.CallAction(ctx, orch.CallRequest{
		Key:      c.meta.Key,
		Role:     c.meta.Role,
		Action:   action,
		Kind:     kind,
		Duration: p.Duration,
	})
	if err != nil {
		ctl.sendError(ctx, c, p.Type, err)
	}
}
