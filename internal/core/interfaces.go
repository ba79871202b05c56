package core

//go:generate go tool mockgen -source=interfaces.go -destination=../mocks/mock_interfaces.go -package=mocks

import (
	"context"

	"github.com/dkeye/Talkie/internal/domain"
)

// Frame is one encoded outbound event (a JSON text message on the wire).
type Frame []byte

// SignalConnection abstracts a live messaging transport.
// Owned by the adapter; the core only references it and may Close() it on eviction.
// Send must return once ctx is done.
type SignalConnection interface {
	Send(ctx context.Context, f Frame) error
	Close()
}

// MessageStore is the durable history of a conversation.
// List returns the newest page first, each page in ascending Seq order.
type MessageStore interface {
	Append(ctx context.Context, msg domain.ChatMessage) error
	List(ctx context.Context, key domain.ConversationKey, limit int, cursor string) (domain.MessagePage, error)
}

// CallJournal receives a record of every accepted call transition.
type CallJournal interface {
	Record(ctx context.Context, rec domain.CallRecord) error
}
