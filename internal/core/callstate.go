package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog/log"
)

// CallCommand is one requested transition.
type CallCommand struct {
	Action   domain.CallAction
	Actor    domain.Role
	Kind     domain.CallKind // initiate only
	Duration *int            // end only; nil means measured from connected_at
}

// Transition is the outcome of an accepted command: the session after the
// step plus what each side must be shown.
type Transition struct {
	Action  domain.CallAction
	Actor   domain.Role
	Session domain.CallSession
	Views   []domain.CallView
	LogText string
}

// Terminal reports whether the session left live state with this step.
func (t Transition) Terminal() bool { return t.Session.State.Terminal() }

// Step is the transition table. It does no I/O and never mutates cur.
// cur is nil when the key has no live session.
func Step(cur *domain.CallSession, key domain.ConversationKey, cmd CallCommand, now time.Time) (domain.CallSession, error) {
	if !cmd.Actor.Valid() {
		return domain.CallSession{}, domain.InvalidArgument("role", "must be driver or passenger")
	}
	now = now.UTC()

	switch cmd.Action {
	case domain.ActionInitiate:
		if cur != nil {
			return domain.CallSession{}, conflict(cmd.Action, domain.NoSession, string(cur.State))
		}
		kind := cmd.Kind
		if kind == "" {
			kind = domain.CallVoice
		}
		return domain.CallSession{
			Key:       key,
			Caller:    cmd.Actor,
			Callee:    cmd.Actor.Other(),
			Kind:      kind,
			State:     domain.CallInitiated,
			StartedAt: now,
		}, nil

	case domain.ActionAccept:
		if err := expect(cur, cmd.Action, domain.CallInitiated); err != nil {
			return domain.CallSession{}, err
		}
		if cmd.Actor != cur.Callee {
			return domain.CallSession{}, conflict(cmd.Action, roleState(cur.Callee), roleState(cmd.Actor))
		}
		next := *cur
		next.State = domain.CallConnected
		next.ConnectedAt = &now
		return next, nil

	case domain.ActionReject:
		if err := expect(cur, cmd.Action, domain.CallInitiated); err != nil {
			return domain.CallSession{}, err
		}
		if !cur.Participant(cmd.Actor) {
			return domain.CallSession{}, conflict(cmd.Action, roleState(cur.Callee), roleState(cmd.Actor))
		}
		next := *cur
		next.State = domain.CallRejected
		next.EndedAt = &now
		return next, nil

	case domain.ActionEnd:
		if err := expect(cur, cmd.Action, domain.CallConnected, domain.CallInitiated); err != nil {
			return domain.CallSession{}, err
		}
		if !cur.Participant(cmd.Actor) {
			return domain.CallSession{}, conflict(cmd.Action, roleState(cur.Caller)+" or "+roleState(cur.Callee), roleState(cmd.Actor))
		}
		d, err := duration(cur, cmd.Duration, now)
		if err != nil {
			return domain.CallSession{}, err
		}
		next := *cur
		next.State = domain.CallEnded
		next.EndedAt = &now
		next.DurationSeconds = d
		return next, nil
	}
	return domain.CallSession{}, domain.InvalidArgument("action", fmt.Sprintf("unknown action %d", cmd.Action))
}

func expect(cur *domain.CallSession, action domain.CallAction, states ...domain.CallState) error {
	if cur == nil {
		return conflict(action, string(states[0]), domain.NoSession)
	}
	for _, s := range states {
		if cur.State == s {
			return nil
		}
	}
	return conflict(action, string(states[0]), string(cur.State))
}

func duration(cur *domain.CallSession, given *int, now time.Time) (int, error) {
	if given != nil {
		if *given < 0 {
			return 0, domain.InvalidArgument("duration", "must not be negative")
		}
		return *given, nil
	}
	if cur.ConnectedAt == nil {
		return 0, nil
	}
	return int(now.Sub(*cur.ConnectedAt) / time.Second), nil
}

func conflict(action domain.CallAction, expected, actual string) error {
	return &domain.CallStateConflictError{Action: action, Expected: expected, Actual: actual}
}

func roleState(r domain.Role) string { return "role " + string(r) }

// CallMachine holds the live session of each key. Sessions are immutable
// values swapped with compare-and-swap; terminal ones are dropped.
type CallMachine struct {
	sessions sync.Map // domain.ConversationKey -> *domain.CallSession
	now      func() time.Time
}

func NewCallMachine() *CallMachine {
	return &CallMachine{now: time.Now}
}

// Apply runs cmd against the key's live session. A rejected command leaves
// state untouched.
func (m *CallMachine) Apply(key domain.ConversationKey, cmd CallCommand) (Transition, error) {
	for {
		var cur *domain.CallSession
		raw, ok := m.sessions.Load(key)
		if ok {
			cur = raw.(*domain.CallSession)
		}
		next, err := Step(cur, key, cmd, m.now())
		if err != nil {
			return Transition{}, err
		}
		if !m.commit(key, raw, next) {
			continue
		}
		log.Info().Str("module", "core.call").Str("key", string(key)).Str("action", cmd.Action.String()).
			Str("role", string(cmd.Actor)).Str("state", string(next.State)).Msg("call transition")
		return Transition{
			Action:  cmd.Action,
			Actor:   cmd.Actor,
			Session: next,
			Views:   Views(next, cmd.Actor),
			LogText: LogText(next, cmd.Action, cmd.Actor),
		}, nil
	}
}

func (m *CallMachine) commit(key domain.ConversationKey, prev any, next domain.CallSession) bool {
	switch {
	case next.State.Terminal():
		return m.sessions.CompareAndDelete(key, prev)
	case prev == nil:
		_, loaded := m.sessions.LoadOrStore(key, &next)
		return !loaded
	default:
		return m.sessions.CompareAndSwap(key, prev, &next)
	}
}

// Current returns a snapshot of the key's live session.
func (m *CallMachine) Current(key domain.ConversationKey) (domain.CallSession, bool) {
	raw, ok := m.sessions.Load(key)
	if !ok {
		return domain.CallSession{}, false
	}
	return *raw.(*domain.CallSession), true
}

// Active counts live sessions.
func (m *CallMachine) Active() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Views renders s for both sides. actor names who caused a terminal step.
func Views(s domain.CallSession, actor domain.Role) []domain.CallView {
	return []domain.CallView{View(s, s.Caller, actor), View(s, s.Callee, actor)}
}

// View renders s for one side.
func View(s domain.CallSession, role, actor domain.Role) domain.CallView {
	v := domain.CallView{Role: role, AllowedActions: []string{}}
	switch s.State {
	case domain.CallInitiated:
		if role == s.Caller {
			v.State = domain.ViewCalling
			v.Text = "Calling..."
			v.AllowedActions = []string{"cancel"}
		} else {
			v.State = domain.ViewRinging
			v.Text = "Incoming " + string(s.Kind) + " call from " + s.Caller.Title()
			v.AllowedActions = []string{"accept", "reject"}
		}
	case domain.CallConnected:
		v.State = domain.ViewConnected
		v.Text = "Call connected"
		v.AllowedActions = []string{"end"}
	case domain.CallRejected:
		v.State = domain.ViewRejected
		if actor == s.Caller {
			v.Text = "Call cancelled by " + actor.Title()
		} else {
			v.Text = "Call rejected by " + actor.Title()
		}
	case domain.CallEnded:
		v.State = domain.ViewEnded
		v.Text = fmt.Sprintf("Call ended - Duration: %d seconds", s.DurationSeconds)
	}
	return v
}

// LogText is the system message stored for a transition.
func LogText(s domain.CallSession, action domain.CallAction, actor domain.Role) string {
	switch action {
	case domain.ActionInitiate:
		return fmt.Sprintf("%s call initiated by %s", titleKind(s.Kind), actor.Title())
	case domain.ActionAccept:
		return "Call accepted by " + actor.Title()
	case domain.ActionReject:
		if actor == s.Caller {
			return "Call cancelled by " + actor.Title()
		}
		return "Call rejected by " + actor.Title()
	case domain.ActionEnd:
		return fmt.Sprintf("Call ended by %s - Duration: %d seconds", actor.Title(), s.DurationSeconds)
	}
	return ""
}

func titleKind(k domain.CallKind) string {
	if k == domain.CallVideo {
		return "Video"
	}
	return "Voice"
}
