package domain

import (
	"strings"
	"time"
)

type CallKind string

const (
	CallVoice CallKind = "voice"
	CallVideo CallKind = "video"
)

// ParseCallKind defaults to voice when s is empty.
func ParseCallKind(s string) (CallKind, error) {
	switch k := CallKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return CallVoice, nil
	case CallVoice, CallVideo:
		return k, nil
	default:
		return "", InvalidArgument("call_type", "must be voice or video")
	}
}

// CallState is the stored state of a session. Idle is represented by absence.
type CallState string

const (
	CallInitiated CallState = "initiated"
	CallConnected CallState = "connected"
	CallRejected  CallState = "rejected"
	CallEnded     CallState = "ended"
)

// NoSession is what conflicts report when no live session exists.
const NoSession = "no session"

func (s CallState) Terminal() bool {
	return s == CallRejected || s == CallEnded
}

type CallAction int

const (
	ActionInitiate CallAction = iota + 1
	ActionAccept
	ActionReject
	ActionEnd
)

func (a CallAction) String() string {
	switch a {
	case ActionInitiate:
		return "initiate"
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	case ActionEnd:
		return "end"
	}
	return "unknown"
}

// ParseCallAction accepts "cancel" as the caller's spelling of reject.
func ParseCallAction(s string) (CallAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiate":
		return ActionInitiate, nil
	case "accept":
		return ActionAccept, nil
	case "reject", "cancel":
		return ActionReject, nil
	case "end":
		return ActionEnd, nil
	default:
		return 0, InvalidArgument("action", "must be initiate, accept, reject or end")
	}
}

// CallSession is the single in-flight call of a conversation key.
// Values handed out by the core are snapshots.
type CallSession struct {
	Key             ConversationKey `json:"conversation_key"`
	Caller          Role            `json:"caller"`
	Callee          Role            `json:"callee"`
	Kind            CallKind        `json:"call_kind"`
	State           CallState       `json:"state"`
	StartedAt       time.Time       `json:"started_at"`
	ConnectedAt     *time.Time      `json:"connected_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	DurationSeconds int             `json:"duration_seconds"`
}

// Participant reports whether role takes part in the call.
func (s CallSession) Participant(role Role) bool {
	return role == s.Caller || role == s.Callee
}

// ViewState is what one side of a call sees. Calling and ringing share the
// initiated stored state.
type ViewState string

const (
	ViewCalling   ViewState = "calling"
	ViewRinging   ViewState = "ringing"
	ViewConnected ViewState = "connected"
	ViewRejected  ViewState = "rejected"
	ViewEnded     ViewState = "ended"
)

// CallView is the role-specific rendering of a transition.
type CallView struct {
	Role           Role
	State          ViewState
	Text           string
	AllowedActions []string
}

// CallRecord is the log entry for one accepted transition.
type CallRecord struct {
	Key     ConversationKey `json:"conversation_key"`
	Action  string          `json:"action"`
	Actor   Role            `json:"actor"`
	Session CallSession     `json:"session"`
	Text    string          `json:"message"`
	At      time.Time       `json:"timestamp"`
}
