package orch

import (
	"context"
	"unicode/utf8"

	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog/log"
)

// SendMessage persists a text message and then fans it out to every
// connection of the key. Nothing is broadcast unless the store accepted it.
func (o *Orchestrator) SendMessage(ctx context.Context, key domain.ConversationKey, role domain.Role, body string) (domain.ChatMessage, error) {
	if err := check(SendRequest{Key: key, Role: role, Body: body}); err != nil {
		return domain.ChatMessage{}, err
	}
	if utf8.RuneCountInString(body) > o.maxBodyLen {
		return domain.ChatMessage{}, domain.InvalidArgument("message", "too long")
	}

	unlock := o.locks.Lock(key)
	defer unlock()

	msg, err := o.appendLocked(ctx, key, role, body, domain.KindText)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("key", string(key)).Str("role", string(role)).Msg("send failed")
		return domain.ChatMessage{}, err
	}
	res := o.Broadcaster.Publish(ctx, key, core.NewMessage(msg))
	o.forgetIdle(key)
	log.Info().Str("module", "orch").Str("key", string(key)).Str("role", string(role)).Uint64("seq", msg.Seq).
		Int("delivered", res.Delivered).Msg("message sent")
	return msg, nil
}

// appendLocked assigns the next sequence number and stores the message.
// Caller holds the key lock. A failed append still consumes its number, so a
// late write by a slow store can never collide with a later message.
func (o *Orchestrator) appendLocked(ctx context.Context, key domain.ConversationKey, sender domain.Role, body string, kind domain.MessageKind) (domain.ChatMessage, error) {
	last, err := o.lastSeq(ctx, key)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := domain.NewChatMessage(key, last+1, sender, body, kind, o.now())
	o.seqs.Store(key, msg.Seq)

	err = bounded(ctx, o.storeTimeout, "append message", func(ctx context.Context) error {
		return o.Store.Append(ctx, msg)
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// lastSeq is seeded from the newest stored message the first time a key is seen.
func (o *Orchestrator) lastSeq(ctx context.Context, key domain.ConversationKey) (uint64, error) {
	if v, ok := o.seqs.Load(key); ok {
		return v.(uint64), nil
	}
	var page domain.MessagePage
	err := bounded(ctx, o.storeTimeout, "seed sequence", func(ctx context.Context) error {
		var err error
		page, err = o.Store.List(ctx, key, 1, "")
		return err
	})
	if err != nil {
		return 0, err
	}
	var last uint64
	if n := len(page.Messages); n > 0 {
		last = page.Messages[n-1].Seq
	}
	return last, nil
}

// History returns one page of stored messages, newest page first.
func (o *Orchestrator) History(ctx context.Context, key domain.ConversationKey, limit int, cursor string) (domain.MessagePage, error) {
	if err := key.Validate(); err != nil {
		return domain.MessagePage{}, err
	}
	if limit < 0 {
		return domain.MessagePage{}, domain.InvalidArgument("limit", "must not be negative")
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, o.historyLimit)

	var page domain.MessagePage
	err := bounded(ctx, o.storeTimeout, "list messages", func(ctx context.Context) error {
		var err error
		page, err = o.Store.List(ctx, key, limit, cursor)
		return err
	})
	if err != nil {
		return domain.MessagePage{}, err
	}
	if page.Messages == nil {
		page.Messages = []domain.ChatMessage{}
	}
	return page, nil
}
