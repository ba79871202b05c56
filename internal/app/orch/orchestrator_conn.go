package orch

import (
	"context"

	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Connect registers h for key. An empty id gets a fresh one. A handle that
// held the same id before is closed. If a call is live the new connection is
// shown its side of it.
func (o *Orchestrator) Connect(ctx context.Context, key domain.ConversationKey, id string, role domain.Role, device string, h core.SignalConnection) (domain.Connection, error) {
	if id == "" {
		id = uuid.NewString()
	}

	unlock := o.locks.Lock(key)
	defer unlock()

	prev, replaced := o.Registry.Lookup(key, id)
	conn, err := o.Registry.Register(key, id, role, device, h)
	if err != nil {
		return domain.Connection{}, err
	}
	if replaced && prev.Handle != h {
		log.Info().Str("module", "orch").Str("key", string(key)).Str("conn", id).Msg("replacing previous handle")
		prev.Handle.Close()
	}

	if s, ok := o.Calls.Current(key); ok && s.Participant(role) {
		ev := core.CallStateUpdate(s, core.View(s, role, s.Caller))
		_ = o.Broadcaster.Unicast(ctx, core.Entry{Conn: conn, Handle: h}, ev)
	}
	return conn, nil
}

// Disconnect drops id from key; unknown ids are ignored.
func (o *Orchestrator) Disconnect(ctx context.Context, key domain.ConversationKey, id string) error {
	unlock := o.locks.Lock(key)
	defer unlock()

	if err := o.Registry.Unregister(key, id); err != nil {
		return err
	}
	o.forgetIdle(key)
	return nil
}

// Release is the transport's way out: it drops id only while it still
// belongs to h, and reports whether it did.
func (o *Orchestrator) Release(ctx context.Context, key domain.ConversationKey, id string, h core.SignalConnection) bool {
	unlock := o.locks.Lock(key)
	defer unlock()

	if !o.Registry.Evict(key, id, h) {
		return false
	}
	o.forgetIdle(key)
	return true
}

// forgetIdle drops the cached sequence of a key with no connections and no
// call. The next send reseeds it from the store. Callers skip it after a
// failed append so the burned number is never handed out again.
func (o *Orchestrator) forgetIdle(key domain.ConversationKey) {
	if o.Registry.Count(key) > 0 {
		return
	}
	if _, live := o.Calls.Current(key); live {
		return
	}
	o.seqs.Delete(key)
}

// Connections is a snapshot of key's live connections.
func (o *Orchestrator) Connections(key domain.ConversationKey) ([]domain.Connection, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	out := o.Registry.ListConnections(key)
	if out == nil {
		out = []domain.Connection{}
	}
	return out, nil
}
