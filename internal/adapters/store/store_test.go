package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) core.MessageStore

func factories() map[string]storeFactory {
	f := map[string]storeFactory{
		"memory": func(*testing.T) core.MessageStore { return NewMemory() },
		"badger": func(t *testing.T) core.MessageStore {
			db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewBadger(db)
		},
	}
	if dsn := os.Getenv("TALKIE_TEST_POSTGRES_DSN"); dsn != "" {
		f["postgres"] = func(t *testing.T) core.MessageStore {
			ctx := context.Background()
			pool, err := NewPool(ctx, dsn)
			require.NoError(t, err)
			t.Cleanup(pool.Close)
			p := NewPostgres(pool)
			require.NoError(t, p.EnsureSchema(ctx))
			return p
		}
	}
	return f
}

func fill(t *testing.T, s core.MessageStore, key domain.ConversationKey, n int) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		msg := domain.NewChatMessage(key, uint64(i), domain.RoleDriver, fmt.Sprintf("m%d", i), domain.KindText, at)
		require.NoError(t, s.Append(context.Background(), msg))
	}
}

func bodies(p domain.MessagePage) []string {
	out := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, m.Body)
	}
	return out
}

func TestStores_PaginateNewestPageFirst(t *testing.T) {
	for name, mk := range factories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			key := domain.ConversationKey(fmt.Sprintf("page-%s-%d", name, time.Now().UnixNano()))

			// Given five messages
			s := mk(t)
			fill(t, s, key, 5)

			// When paging two at a time
			first, err := s.List(ctx, key, 2, "")
			req.NoError(err)
			second, err := s.List(ctx, key, 2, first.NextCursor)
			req.NoError(err)
			third, err := s.List(ctx, key, 2, second.NextCursor)
			req.NoError(err)

			// Then each page is ascending and pages walk backwards
			req.Equal([]string{"m4", "m5"}, bodies(first))
			req.True(first.HasMore)
			req.Equal([]string{"m2", "m3"}, bodies(second))
			req.True(second.HasMore)
			req.Equal([]string{"m1"}, bodies(third))
			req.False(third.HasMore)
			req.Empty(third.NextCursor)
		})
	}
}

func TestStores_RoundTripFields(t *testing.T) {
	for name, mk := range factories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			key := domain.ConversationKey(fmt.Sprintf("rt-%s-%d", name, time.Now().UnixNano()))
			s := mk(t)

			msg := domain.NewChatMessage(key, 1, domain.RoleSystem, "Call initiated by Driver", domain.KindSystem,
				time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
			req.NoError(s.Append(ctx, msg))

			p, err := s.List(ctx, key, 10, "")
			req.NoError(err)
			req.Equal([]domain.ChatMessage{msg}, p.Messages)
			req.Equal(key, p.Key)
		})
	}
}

func TestStores_KeysAreIsolated(t *testing.T) {
	for name, mk := range factories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			suffix := time.Now().UnixNano()
			a := domain.ConversationKey(fmt.Sprintf("a-%d", suffix))
			// a prefix of the other key must not leak into it
			ab := domain.ConversationKey(fmt.Sprintf("a-%d0", suffix))
			s := mk(t)
			fill(t, s, a, 2)
			fill(t, s, ab, 3)

			p, err := s.List(ctx, a, 10, "")
			req.NoError(err)
			req.Len(p.Messages, 2)

			empty, err := s.List(ctx, "never-used", 10, "")
			req.NoError(err)
			req.NotNil(empty.Messages)
			req.Empty(empty.Messages)
			req.False(empty.HasMore)
		})
	}
}

func TestStores_RejectBadArguments(t *testing.T) {
	for name, mk := range factories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			s := mk(t)
			_, err := s.List(context.Background(), "B1", 0, "")
			req.ErrorIs(err, domain.ErrInvalidArgument)
			_, err = s.List(context.Background(), "B1", 5, "abc")
			req.ErrorIs(err, domain.ErrInvalidArgument)
			_, err = s.List(context.Background(), "B1", 5, "0")
			req.ErrorIs(err, domain.ErrInvalidArgument)
			// past the int64 range
			_, err = s.List(context.Background(), "B1", 5, "9223372036854775808")
			req.ErrorIs(err, domain.ErrInvalidArgument)
		})
	}
}

func TestMemory_AppendOutOfOrderKeepsSeqOrder(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	at := time.Now()
	for _, seq := range []uint64{3, 1, 2} {
		req.NoError(m.Append(context.Background(), domain.NewChatMessage("B1", seq, domain.RoleDriver, fmt.Sprint(seq), domain.KindText, at)))
	}
	p, err := m.List(context.Background(), "B1", 10, "")
	req.NoError(err)
	req.Equal([]string{"1", "2", "3"}, bodies(p))
}
