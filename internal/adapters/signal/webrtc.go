package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Talkie/internal/adapters/rtc"
	"github.com/dkeye/Talkie/internal/app/orch"
	"github.com/rs/zerolog/log"
)

// handleRelay passes an offer, answer or candidate to the other side of the
// live call once the payload checks out.
func (ctl *SignalWSController) handleRelay(ctx context.Context, c *wsSignalConn, signal string, data []byte) {
	type relayPayload struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	var p relayPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Payload) == 0 {
		log.Warn().Err(err).Str("module", "signal").Str("signal", signal).Msg("bad relay payload")
		ctl.sendError(ctx, c, signal, errBadPayload)
		return
	}

	session, err := ctl.Orch.ActiveCall(c.meta.Key)
	if err != nil {
		ctl.sendError(ctx, c, signal, err)
		return
	}
	payload, err := rtc.Check(signal, p.Payload, session.Kind)
	if err != nil {
		ctl.sendError(ctx, c, signal, err)
		return
	}

	res, err := ctl.Orch.RelaySignal(ctx, orch.SignalRequest{
		Key:     c.meta.Key,
		Role:    c.meta.Role,
		Signal:  signal,
		Payload: payload,
	})
	if err != nil {
		ctl.sendError(ctx, c, signal, err)
		return
	}
	if res.Delivered == 0 {
		log.Info().Str("module", "signal").Str("key", string(c.meta.Key)).Str("signal", signal).Msg("relay had no receiver")
	}
}
