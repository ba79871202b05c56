package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindSystem MessageKind = "system"
)

// ChatMessage is immutable once created. Seq orders messages within one key.
type ChatMessage struct {
	ID        string          `json:"id"`
	Key       ConversationKey `json:"conversation_key"`
	Seq       uint64          `json:"seq"`
	Sender    Role            `json:"sender"`
	Body      string          `json:"body"`
	Kind      MessageKind     `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewChatMessage avoids raw literals in the orchestrator and keeps construction obvious.
func NewChatMessage(key ConversationKey, seq uint64, sender Role, body string, kind MessageKind, at time.Time) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Key:       key,
		Seq:       seq,
		Sender:    sender,
		Body:      body,
		Kind:      kind,
		CreatedAt: at.UTC(),
	}
}

// MessagePage is one page of history in ascending Seq order.
// NextCursor points at older messages and is empty when HasMore is false.
type MessagePage struct {
	Key        ConversationKey `json:"conversation_key"`
	Messages   []ChatMessage   `json:"messages"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}
