package core

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultDeliveryTimeout = 3 * time.Second
	DefaultFanoutWorkers   = 16
)

// PublishResult reports delivery stats to the orchestrator.
type PublishResult struct {
	Targeted  int
	Delivered int
	Evicted   []string
}

// Broadcaster fans an event out to the live connections of one key.
// Each connection is written independently with its own deadline.
type Broadcaster struct {
	reg     *Registry
	policy  Policy
	timeout time.Duration
	workers int
}

type BroadcasterOption func(*Broadcaster)

func WithPolicy(p Policy) BroadcasterOption {
	return func(b *Broadcaster) { b.policy = p }
}

func WithDeliveryTimeout(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithFanoutWorkers(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.workers = n
		}
	}
}

func NewBroadcaster(reg *Registry, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		reg:     reg,
		policy:  SimplePolicy{},
		timeout: DefaultDeliveryTimeout,
		workers: DefaultFanoutWorkers,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type delivery struct {
	entry Entry
	err   error
}

// Publish delivers ev to every connection of key, or only to the given roles.
// Failed connections go through the policy. It never fails as a whole.
func (b *Broadcaster) Publish(ctx context.Context, key domain.ConversationKey, ev Event, roles ...domain.Role) PublishResult {
	targets := b.reg.Entries(key, roles...)
	res := PublishResult{Targeted: len(targets)}
	if len(targets) == 0 {
		return res
	}
	frame, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Str("key", string(key)).Str("event", ev.EventType()).Msg("encode event")
		return res
	}

	// a cancelled request must not look like a dead receiver
	base := context.WithoutCancel(ctx)
	p := pool.NewWithResults[delivery]().WithMaxGoroutines(b.workers)
	for _, t := range targets {
		p.Go(func() delivery {
			sctx, cancel := context.WithTimeout(base, b.timeout)
			defer cancel()
			return delivery{entry: t, err: b.send(sctx, t.Handle, frame)}
		})
	}

	for _, d := range p.Wait() {
		if d.err == nil {
			res.Delivered++
			continue
		}
		log.Warn().Err(d.err).Str("module", "core.broadcast").Str("key", string(key)).
			Str("conn", d.entry.Conn.ID).Str("event", ev.EventType()).Msg("delivery failed")
		if b.apply(d.entry, d.err) {
			res.Evicted = append(res.Evicted, d.entry.Conn.ID)
		}
	}
	log.Debug().Str("module", "core.broadcast").Str("key", string(key)).Str("event", ev.EventType()).
		Int("targeted", res.Targeted).Int("delivered", res.Delivered).Int("evicted", len(res.Evicted)).Msg("broadcast result")
	return res
}

// Unicast delivers ev to a single registered connection under the same
// timeout and failure policy as Publish.
func (b *Broadcaster) Unicast(ctx context.Context, e Entry, ev Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	if err := b.send(sctx, e.Handle, frame); err != nil {
		log.Warn().Err(err).Str("module", "core.broadcast").Str("key", string(e.Conn.Key)).
			Str("conn", e.Conn.ID).Str("event", ev.EventType()).Msg("unicast failed")
		b.apply(e, err)
		return err
	}
	return nil
}

func (b *Broadcaster) send(ctx context.Context, h SignalConnection, f Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: send panicked: %v", domain.ErrDeliveryFailure, r)
		}
	}()
	if err := h.Send(ctx, f); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w: %w", domain.ErrDeliveryFailure, domain.ErrDependencyTimeout, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailure, err)
	}
	return nil
}

func (b *Broadcaster) apply(e Entry, err error) bool {
	switch b.policy.OnDeliveryFailure(e.Conn, err) {
	case Evict:
		return b.reg.Evict(e.Conn.Key, e.Conn.ID, e.Handle)
	case EvictAndClose:
		evicted := b.reg.Evict(e.Conn.Key, e.Conn.ID, e.Handle)
		e.Handle.Close()
		return evicted
	}
	return false
}
