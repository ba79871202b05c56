package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, c *wsSignalConn, data []byte) {
	type sendPayload struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad send_message payload")
		ctl.sendError(ctx, c, p.Type, errBadPayload)
		return
	}
	if !ctl.allow(c) {
		ctl.sendError(ctx, c, p.Type, errRateLimited)
		return
	}
	// the sender sees its own message through the new_message broadcast
	if _, err := ctl.Orch.SendMessage(ctx, c.meta.Key, c.meta.Role, p.Message); err != nil {
		ctl.sendError(ctx, c, p.Type, err)
	}
}

func (ctl *SignalWSController) allow(c *wsSignalConn) bool {
	if ctl.Limiter == nil {
		return true
	}
	if ctl.Limiter.Allow(c.meta.ID) {
		return true
	}
	log.Warn().Str("module", "signal").Str("conn", c.meta.ID).Msg("rate limited")
	return false
}
