package domain

import "time"

// Connection is the registry's view of one live transport session.
// No transport or lifecycle logic here.
type Connection struct {
	ID           string          `json:"connection_id"`
	Key          ConversationKey `json:"conversation_key"`
	Role         Role            `json:"role"`
	Device       string          `json:"device,omitempty"`
	RegisteredAt time.Time       `json:"registered_at"`
}
