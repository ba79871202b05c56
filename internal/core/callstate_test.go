package core_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/stretchr/testify/require"
)

func cmd(action domain.CallAction, actor domain.Role) core.CallCommand {
	return core.CallCommand{Action: action, Actor: actor, Kind: domain.CallVoice}
}

func TestCallMachine_FullCall(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()

	// Given a driver calling
	tr, err := m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	req.NoError(err)
	req.Equal(domain.CallInitiated, tr.Session.State)
	req.Equal(domain.RoleDriver, tr.Session.Caller)
	req.Equal(domain.RolePassenger, tr.Session.Callee)
	req.Len(tr.Views, 2)
	req.Equal(domain.ViewCalling, tr.Views[0].State)
	req.Equal([]string{"cancel"}, tr.Views[0].AllowedActions)
	req.Equal(domain.ViewRinging, tr.Views[1].State)
	req.Equal(domain.RolePassenger, tr.Views[1].Role)
	req.Equal([]string{"accept", "reject"}, tr.Views[1].AllowedActions)

	// When the passenger accepts
	tr, err = m.Apply("B1", cmd(domain.ActionAccept, domain.RolePassenger))
	req.NoError(err)
	req.Equal(domain.CallConnected, tr.Session.State)
	req.NotNil(tr.Session.ConnectedAt)
	for _, v := range tr.Views {
		req.Equal(domain.ViewConnected, v.State)
		req.Equal([]string{"end"}, v.AllowedActions)
	}

	// And ends with a duration
	d := 42
	tr, err = m.Apply("B1", core.CallCommand{Action: domain.ActionEnd, Actor: domain.RolePassenger, Duration: &d})
	req.NoError(err)
	req.True(tr.Terminal())
	req.Equal(42, tr.Session.DurationSeconds)
	req.Equal("Call ended - Duration: 42 seconds", tr.Views[0].Text)
	req.Equal("Call ended by Passenger - Duration: 42 seconds", tr.LogText)

	// Then the key is idle again
	_, live := m.Current("B1")
	req.False(live)
	_, err = m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	req.NoError(err)
}

func TestCallMachine_SecondInitiateConflicts(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()

	first, err := m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	req.NoError(err)

	_, err = m.Apply("B1", cmd(domain.ActionInitiate, domain.RolePassenger))
	var conflict *domain.CallStateConflictError
	req.True(errors.As(err, &conflict))
	req.Equal(domain.NoSession, conflict.Expected)
	req.Equal("initiated", conflict.Actual)
	req.Equal(domain.ActionInitiate, conflict.Action)

	cur, ok := m.Current("B1")
	req.True(ok)
	req.Equal(first.Session, cur)
}

func TestCallMachine_IllegalTransitions(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()

	for _, a := range []domain.CallAction{domain.ActionAccept, domain.ActionReject, domain.ActionEnd} {
		_, err := m.Apply("B1", cmd(a, domain.RolePassenger))
		req.ErrorIs(err, domain.ErrCallStateConflict, a.String())
		var conflict *domain.CallStateConflictError
		req.True(errors.As(err, &conflict))
		req.Equal(domain.NoSession, conflict.Actual)
	}

	_, err := m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	req.NoError(err)

	// the caller cannot accept its own call
	_, err = m.Apply("B1", cmd(domain.ActionAccept, domain.RoleDriver))
	req.ErrorIs(err, domain.ErrCallStateConflict)

	_, err = m.Apply("B1", cmd(domain.ActionAccept, domain.RolePassenger))
	req.NoError(err)

	// no reject or accept once connected
	_, err = m.Apply("B1", cmd(domain.ActionReject, domain.RolePassenger))
	req.ErrorIs(err, domain.ErrCallStateConflict)
	_, err = m.Apply("B1", cmd(domain.ActionAccept, domain.RolePassenger))
	req.ErrorIs(err, domain.ErrCallStateConflict)

	cur, ok := m.Current("B1")
	req.True(ok)
	req.Equal(domain.CallConnected, cur.State)
}

func TestCallMachine_CallerCancel(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()

	_, err := m.Apply("B1", cmd(domain.ActionInitiate, domain.RolePassenger))
	req.NoError(err)

	tr, err := m.Apply("B1", cmd(domain.ActionReject, domain.RolePassenger))
	req.NoError(err)
	req.Equal(domain.CallRejected, tr.Session.State)
	req.Equal(domain.ViewRejected, tr.Views[1].State)
	req.Equal("Call cancelled by Passenger", tr.Views[1].Text)
	req.Empty(tr.Views[1].AllowedActions)

	_, live := m.Current("B1")
	req.False(live)
}

func TestCallMachine_EndWhileRingingMeasuresZero(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()

	_, err := m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	req.NoError(err)
	tr, err := m.Apply("B1", cmd(domain.ActionEnd, domain.RoleDriver))
	req.NoError(err)
	req.Equal(domain.CallEnded, tr.Session.State)
	req.Zero(tr.Session.DurationSeconds)
}

func TestCallMachine_NegativeDurationRejectedWithoutMutation(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()
	_, _ = m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	_, _ = m.Apply("B1", cmd(domain.ActionAccept, domain.RolePassenger))

	d := -1
	_, err := m.Apply("B1", core.CallCommand{Action: domain.ActionEnd, Actor: domain.RoleDriver, Duration: &d})
	req.ErrorIs(err, domain.ErrInvalidArgument)

	cur, ok := m.Current("B1")
	req.True(ok)
	req.Equal(domain.CallConnected, cur.State)
}

func TestStep_MeasuresDurationFromConnect(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, err := core.Step(nil, "B1", cmd(domain.ActionInitiate, domain.RoleDriver), at)
	req.NoError(err)
	s, err = core.Step(&s, "B1", cmd(domain.ActionAccept, domain.RolePassenger), at.Add(time.Second))
	req.NoError(err)

	ended, err := core.Step(&s, "B1", cmd(domain.ActionEnd, domain.RoleDriver), at.Add(91*time.Second))
	req.NoError(err)
	req.Equal(90, ended.DurationSeconds)
	req.Equal(domain.CallConnected, s.State)
}

func TestCallMachine_ConcurrentHangupOneWins(t *testing.T) {
	req := require.New(t)
	m := core.NewCallMachine()
	_, _ = m.Apply("B1", cmd(domain.ActionInitiate, domain.RoleDriver))
	_, _ = m.Apply("B1", cmd(domain.ActionAccept, domain.RolePassenger))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, fails int
	)
	for _, r := range []domain.Role{domain.RoleDriver, domain.RolePassenger, domain.RoleDriver, domain.RolePassenger} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Apply("B1", cmd(domain.ActionEnd, r))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			req.ErrorIs(err, domain.ErrCallStateConflict)
			fails++
		}()
	}
	wg.Wait()

	req.Equal(1, ok)
	req.Equal(3, fails)
	req.Zero(m.Active())
}

func TestView_RingingNamesCallerAndKind(t *testing.T) {
	req := require.New(t)
	s := domain.CallSession{Caller: domain.RoleDriver, Callee: domain.RolePassenger, Kind: domain.CallVideo, State: domain.CallInitiated}

	v := core.View(s, domain.RolePassenger, domain.RoleDriver)
	req.Equal("Incoming video call from Driver", v.Text)
	req.Equal("Video call initiated by Driver", core.LogText(s, domain.ActionInitiate, domain.RoleDriver))
}
