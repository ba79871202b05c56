package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Badger persists history in an embedded badger database.
// Keys are "msg:{hex(booking)}:{seq padded to 20 digits}" so a prefix scan in
// reverse yields the newest messages first.
type Badger struct {
	db *badger.DB
}

func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log.With().Str("module", "store.badger").Logger()})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	log.Info().Str("module", "store.badger").Str("path", path).Msg("badger opened")
	return NewBadger(db), nil
}

func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func prefix(key domain.ConversationKey) string {
	return "msg:" + hex.EncodeToString([]byte(key)) + ":"
}

func msgKey(key domain.ConversationKey, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix(key), seq))
}

func (b *Badger) Append(ctx context.Context, msg domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(msgKey(msg.Key, msg.Seq), value)
	})
}

func (b *Badger) List(ctx context.Context, key domain.ConversationKey, limit int, cursor string) (domain.MessagePage, error) {
	if err := checkLimit(limit); err != nil {
		return domain.MessagePage{}, err
	}
	before, err := decodeCursor(cursor)
	if err != nil {
		return domain.MessagePage{}, err
	}

	rows := make([]domain.ChatMessage, 0, limit+1)
	err = b.db.View(func(txn *badger.Txn) error {
		pfx := []byte(prefix(key))
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = pfx
		it := txn.NewIterator(opts)
		defer it.Close()

		// "~" sorts after every digit, so the seek lands on the newest key
		seek := append(append([]byte{}, pfx...), '~')
		if cursor != "" {
			seek = msgKey(key, before)
		}
		for it.Seek(seek); it.ValidForPrefix(pfx) && len(rows) <= limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if bytes.Equal(item.Key(), seek) {
				continue
			}
			var msg domain.ChatMessage
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &msg) }); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			rows = append(rows, msg)
		}
		return nil
	})
	if err != nil {
		return domain.MessagePage{}, err
	}
	return page(key, rows, limit), nil
}

// badgerLogger routes badger's own logging into zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(f string, args ...any) {
	b.l.Error().Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (b badgerLogger) Warningf(f string, args ...any) {
	b.l.Warn().Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (b badgerLogger) Infof(f string, args ...any) {
	b.l.Debug().Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (b badgerLogger) Debugf(f string, args ...any) {
	b.l.Trace().Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}
