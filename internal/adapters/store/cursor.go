// Package store holds the MessageStore implementations: in-memory, badger and postgres.
package store

import (
	"math"
	"strconv"

	"github.com/dkeye/Talkie/internal/domain"
)

// A cursor is the Seq of the oldest message already returned, in decimal.
// Every driver shares the format so a client can switch backends freely.

func encodeCursor(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

// decodeCursor returns the exclusive upper bound for the next page.
// Bounds stay within int64 so every driver can use them as a BIGINT.
func decodeCursor(cursor string) (uint64, error) {
	if cursor == "" {
		return math.MaxInt64, nil
	}
	seq, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil || seq == 0 || seq > math.MaxInt64 {
		return 0, domain.InvalidArgument("cursor", "malformed")
	}
	return seq, nil
}

func checkLimit(limit int) error {
	if limit <= 0 {
		return domain.InvalidArgument("limit", "must be positive")
	}
	return nil
}

// page builds the result from newest-first rows fetched with limit+1.
func page(key domain.ConversationKey, newestFirst []domain.ChatMessage, limit int) domain.MessagePage {
	p := domain.MessagePage{Key: key, Messages: []domain.ChatMessage{}}
	if len(newestFirst) > limit {
		p.HasMore = true
		newestFirst = newestFirst[:limit]
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		p.Messages = append(p.Messages, newestFirst[i])
	}
	if p.HasMore {
		p.NextCursor = encodeCursor(p.Messages[0].Seq)
	}
	return p
}
