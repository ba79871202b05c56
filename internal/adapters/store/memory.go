package store

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Talkie/internal/domain"
)

// Memory keeps history in process. It is lost on restart.
type Memory struct {
	mu    sync.RWMutex
	byKey map[domain.ConversationKey][]domain.ChatMessage
}

func NewMemory() *Memory {
	return &Memory{byKey: make(map[domain.ConversationKey][]domain.ChatMessage)}
}

func (m *Memory) Append(ctx context.Context, msg domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.byKey[msg.Key]
	i, found := slices.BinarySearchFunc(msgs, msg.Seq, func(e domain.ChatMessage, seq uint64) int {
		switch {
		case e.Seq < seq:
			return -1
		case e.Seq > seq:
			return 1
		}
		return 0
	})
	if found {
		msgs[i] = msg
		return nil
	}
	m.byKey[msg.Key] = slices.Insert(msgs, i, msg)
	return nil
}

func (m *Memory) List(ctx context.Context, key domain.ConversationKey, limit int, cursor string) (domain.MessagePage, error) {
	if err := checkLimit(limit); err != nil {
		return domain.MessagePage{}, err
	}
	before, err := decodeCursor(cursor)
	if err != nil {
		return domain.MessagePage{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.MessagePage{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.byKey[key]
	rows := make([]domain.ChatMessage, 0, limit+1)
	for i := len(msgs) - 1; i >= 0 && len(rows) <= limit; i-- {
		if msgs[i].Seq < before {
			rows = append(rows, msgs[i])
		}
	}
	return page(key, rows, limit), nil
}
