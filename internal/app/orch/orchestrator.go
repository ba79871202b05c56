// Package orch is the signaling service: it validates requests, serializes
// them per booking key and turns accepted ones into broadcasts.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	DefaultMaxBodyLen   = 4096
)

type Orchestrator struct {
	Registry    *core.Registry
	Calls       *core.CallMachine
	Broadcaster *core.Broadcaster
	Store       core.MessageStore
	Journal     core.CallJournal

	storeTimeout time.Duration
	maxBodyLen   int
	historyLimit int

	locks *core.KeyedMutex
	seqs  sync.Map // domain.ConversationKey -> uint64, last assigned
	now   func() time.Time
}

type Option func(*Orchestrator)

// WithJournal adds a sink for call transitions.
func WithJournal(j core.CallJournal) Option {
	return func(o *Orchestrator) { o.Journal = j }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

func WithMaxBodyLen(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxBodyLen = n
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(reg *core.Registry, calls *core.CallMachine, bc *core.Broadcaster, store core.MessageStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Registry:     reg,
		Calls:        calls,
		Broadcaster:  bc,
		Store:        store,
		storeTimeout: DefaultStoreTimeout,
		maxBodyLen:   DefaultMaxBodyLen,
		historyLimit: MaxHistoryLimit,
		locks:        core.NewKeyedMutex(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats is a point-in-time view for health reporting.
type Stats struct {
	Keys        int `json:"keys"`
	Connections int `json:"connections"`
	ActiveCalls int `json:"active_calls"`
}

func (o *Orchestrator) Stats() Stats {
	keys, conns := o.Registry.Stats()
	return Stats{Keys: keys, Connections: conns, ActiveCalls: o.Calls.Active()}
}

// bounded runs fn with a deadline of d. It returns when fn does or when the
// deadline passes, whichever is first; a missed deadline is ErrDependencyTimeout.
func bounded(ctx context.Context, d time.Duration, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrDependencyTimeout, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrDependencyTimeout, ctx.Err())
		}
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
