package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
)

const (
	EventNewMessage = "new_message"
	EventCallState  = "call_state_update"
	EventSignal     = "webrtc_signal"
)

// Event is anything the broadcaster can put on the wire.
type Event interface {
	EventType() string
}

type MessagePayload struct {
	ID        string             `json:"id"`
	Seq       uint64             `json:"seq"`
	Sender    domain.Role        `json:"sender"`
	Body      string             `json:"body"`
	Kind      domain.MessageKind `json:"kind"`
	CreatedAt time.Time          `json:"created_at"`
}

type NewMessageEvent struct {
	Type    string                 `json:"type"`
	Key     domain.ConversationKey `json:"conversation_key"`
	Message MessagePayload         `json:"message"`
}

func (NewMessageEvent) EventType() string { return EventNewMessage }

func NewMessage(m domain.ChatMessage) NewMessageEvent {
	return NewMessageEvent{
		Type: EventNewMessage,
		Key:  m.Key,
		Message: MessagePayload{
			ID:        m.ID,
			Seq:       m.Seq,
			Sender:    m.Sender,
			Body:      m.Body,
			Kind:      m.Kind,
			CreatedAt: m.CreatedAt,
		},
	}
}

type CallStateEvent struct {
	Type            string                 `json:"type"`
	Key             domain.ConversationKey `json:"conversation_key"`
	CallState       domain.ViewState       `json:"call_state"`
	RoleView        domain.Role            `json:"role_view"`
	MessageText     string                 `json:"message_text"`
	AllowedActions  []string               `json:"allowed_actions"`
	CallKind        domain.CallKind        `json:"call_kind"`
	Caller          domain.Role            `json:"caller"`
	Callee          domain.Role            `json:"callee"`
	DurationSeconds int                    `json:"duration_seconds"`
}

func (CallStateEvent) EventType() string { return EventCallState }

func CallStateUpdate(s domain.CallSession, v domain.CallView) CallStateEvent {
	return CallStateEvent{
		Type:            EventCallState,
		Key:             s.Key,
		CallState:       v.State,
		RoleView:        v.Role,
		MessageText:     v.Text,
		AllowedActions:  v.AllowedActions,
		CallKind:        s.Kind,
		Caller:          s.Caller,
		Callee:          s.Callee,
		DurationSeconds: s.DurationSeconds,
	}
}

// SignalEvent relays a WebRTC offer, answer or ICE candidate to the other side.
type SignalEvent struct {
	Type    string                 `json:"type"`
	Key     domain.ConversationKey `json:"conversation_key"`
	From    domain.Role            `json:"from"`
	Signal  string                 `json:"signal"`
	Payload json.RawMessage        `json:"payload"`
}

func (SignalEvent) EventType() string { return EventSignal }

func Encode(ev Event) (Frame, error) {
	return json.Marshal(ev)
}
