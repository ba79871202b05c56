package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog/log"
)

// CallAction advances the key's call and shows each side its view.
// Conflicts come back untouched as *domain.CallStateConflictError.
func (o *Orchestrator) CallAction(ctx context.Context, req CallRequest) (domain.CallSession, error) {
	if err := check(req); err != nil {
		return domain.CallSession{}, err
	}

	unlock := o.locks.Lock(req.Key)
	defer unlock()

	tr, err := o.Calls.Apply(req.Key, core.CallCommand{
		Action:   req.Action,
		Actor:    req.Role,
		Kind:     req.Kind,
		Duration: req.Duration,
	})
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("key", string(req.Key)).Str("role", string(req.Role)).
			Str("action", req.Action.String()).Msg("call action refused")
		return domain.CallSession{}, err
	}

	for _, v := range tr.Views {
		o.Broadcaster.Publish(ctx, req.Key, core.CallStateUpdate(tr.Session, v), v.Role)
	}
	if o.recordCall(ctx, tr) {
		o.forgetIdle(req.Key)
	}
	return tr.Session, nil
}

// recordCall keeps the call log in history and the journal. Failures here
// never undo an accepted transition. It reports whether the log message was stored.
func (o *Orchestrator) recordCall(ctx context.Context, tr core.Transition) bool {
	key := tr.Session.Key
	_, err := o.appendLocked(ctx, key, domain.RoleSystem, tr.LogText, domain.KindSystem)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("key", string(key)).Msg("call log not stored")
	}
	stored := err == nil
	if o.Journal == nil {
		return stored
	}
	rec := domain.CallRecord{
		Key:     key,
		Action:  tr.Action.String(),
		Actor:   tr.Actor,
		Session: tr.Session,
		Text:    tr.LogText,
		At:      o.now().UTC(),
	}
	err = bounded(ctx, o.storeTimeout, "journal call", func(ctx context.Context) error {
		return o.Journal.Record(ctx, rec)
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("key", string(key)).Str("action", rec.Action).Msg("call not journaled")
	}
	return stored
}

// ActiveCall returns the live session of key.
func (o *Orchestrator) ActiveCall(key domain.ConversationKey) (domain.CallSession, error) {
	if err := key.Validate(); err != nil {
		return domain.CallSession{}, err
	}
	s, ok := o.Calls.Current(key)
	if !ok {
		return domain.CallSession{}, fmt.Errorf("%w: no active call for %s", domain.ErrNotFound, key)
	}
	return s, nil
}

// RelaySignal forwards an offer, answer or candidate to the other side of a
// live call.
func (o *Orchestrator) RelaySignal(ctx context.Context, req SignalRequest) (core.PublishResult, error) {
	if err := check(req); err != nil {
		return core.PublishResult{}, err
	}

	unlock := o.locks.Lock(req.Key)
	defer unlock()

	s, ok := o.Calls.Current(req.Key)
	if !ok {
		return core.PublishResult{}, fmt.Errorf("%w: no active call for %s", domain.ErrNotFound, req.Key)
	}
	if !s.Participant(req.Role) {
		return core.PublishResult{}, domain.InvalidArgument("role", "not part of the call")
	}
	ev := core.SignalEvent{
		Type:    core.EventSignal,
		Key:     req.Key,
		From:    req.Role,
		Signal:  req.Signal,
		Payload: req.Payload,
	}
	res := o.Broadcaster.Publish(ctx, req.Key, ev, req.Role.Other())
	log.Debug().Str("module", "orch").Str("key", string(req.Key)).Str("signal", req.Signal).Int("delivered", res.Delivered).Msg("signal relayed")
	return res, nil
}
