package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Talkie/internal/adapters/auth"
	"github.com/dkeye/Talkie/internal/adapters/store"
	"github.com/dkeye/Talkie/internal/app/orch"
	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	*httptest.Server
	ctl *SignalWSController
}

func newWSServer(t *testing.T, setup ...func(*SignalWSController)) wsServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := core.NewRegistry()
	o := orch.New(reg, core.NewCallMachine(), core.NewBroadcaster(reg), store.NewMemory())
	ctl := NewSignalWSController(o, Settings{})
	for _, fn := range setup {
		fn(ctl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return wsServer{Server: srv, ctl: ctl}
}

func (s wsServer) dial(t *testing.T, key, role, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	q := url.Values{}
	q.Set("booking_code", key)
	q.Set("role", role)
	if id != "" {
		q.Set("connection_id", id)
	}
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?" + q.Encode()
	return websocket.DefaultDialer.Dial(u, nil)
}

func (s wsServer) join(t *testing.T, key, role, id string) *websocket.Conn {
	t.Helper()
	c, _, err := s.dial(t, key, role, id)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	hello := readFrame(t, c)
	require.Equal(t, "connected", hello["type"])
	require.Equal(t, id, hello["connection_id"])
	require.NotEmpty(t, hello["ice_servers"])
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var v map[string]any
	require.NoError(t, c.ReadJSON(&v))
	return v
}

// waitConnections blocks until key has n registered connections.
func (s wsServer) waitConnections(t *testing.T, key domain.ConversationKey, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		conns, err := s.ctl.Orch.Connections(key)
		return err == nil && len(conns) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandshake_Rejected(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t)

	_, resp, err := srv.dial(t, "B1", "pilot", "")
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	mgr, err := auth.NewManager("secret", time.Hour)
	req.NoError(err)
	guarded := newWSServer(t, func(ctl *SignalWSController) { ctl.Auth = mgr })
	_, resp, err = guarded.dial(t, "B1", "driver", "")
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestChatOverWebsocket(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t)
	driver := srv.join(t, "B1", "driver", "d1")
	passenger := srv.join(t, "B1", "passenger", "p1")
	srv.waitConnections(t, "B1", 2)

	req.NoError(driver.WriteJSON(map[string]any{"type": "send_message", "message": "two minutes"}))

	for _, c := range []*websocket.Conn{driver, passenger} {
		ev := readFrame(t, c)
		req.Equal("new_message", ev["type"])
		msg := ev["message"].(map[string]any)
		req.Equal("two minutes", msg["body"])
		req.Equal("driver", msg["sender"])
	}

	req.NoError(passenger.WriteJSON(map[string]any{"type": "send_message", "message": ""}))
	ev := readFrame(t, passenger)
	req.Equal("error", ev["type"])
	req.Equal("invalid_argument", ev["code"])
	req.Equal("message", ev["field"])
}

func TestCallOverWebsocket(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t)
	driver := srv.join(t, "B1", "driver", "d1")
	passenger := srv.join(t, "B1", "passenger", "p1")
	srv.waitConnections(t, "B1", 2)

	// accept with nothing ringing
	req.NoError(passenger.WriteJSON(map[string]any{"type": "call_action", "action": "accept"}))
	ev := readFrame(t, passenger)
	req.Equal("call_state_conflict", ev["code"])
	req.Equal("no session", ev["actual"])

	req.NoError(driver.WriteJSON(map[string]any{"type": "call_action", "action": "initiate", "call_type": "voice"}))
	req.Equal("calling", readFrame(t, driver)["call_state"])
	ring := readFrame(t, passenger)
	req.Equal("ringing", ring["call_state"])
	req.Equal([]any{"accept", "reject"}, ring["allowed_actions"])

	req.NoError(passenger.WriteJSON(map[string]any{"type": "call_action", "action": "accept"}))
	req.Equal("connected", readFrame(t, driver)["call_state"])
	req.Equal("connected", readFrame(t, passenger)["call_state"])

	// candidates reach the other side only
	req.NoError(passenger.WriteJSON(map[string]any{
		"type":    "candidate",
		"payload": map[string]any{"candidate": "candidate:1 1 udp 2122260223 10.0.0.2 50000 typ host", "sdpMid": "0"},
	}))
	sig := readFrame(t, driver)
	req.Equal("webrtc_signal", sig["type"])
	req.Equal("candidate", sig["signal"])
	req.Equal("passenger", sig["from"])

	req.NoError(driver.WriteJSON(map[string]any{"type": "call_action", "action": "end", "duration": 7}))
	for _, c := range []*websocket.Conn{driver, passenger} {
		ev := readFrame(t, c)
		req.Equal("ended", ev["call_state"])
		req.EqualValues(7, ev["duration_seconds"])
	}
}

func TestReconnectResyncsCall(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t)
	driver := srv.join(t, "B1", "driver", "d1")
	srv.waitConnections(t, "B1", 1)

	req.NoError(driver.WriteJSON(map[string]any{"type": "call_action", "action": "initiate"}))
	req.Equal("calling", readFrame(t, driver)["call_state"])

	passenger := srv.join(t, "B1", "passenger", "p1")
	ev := readFrame(t, passenger)
	req.Equal("ringing", ev["call_state"])
	req.Equal("Incoming voice call from Driver", ev["message_text"])
}

func TestUnknownTypeAndPing(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t)
	c := srv.join(t, "B1", "driver", "d1")

	req.NoError(c.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.Equal("invalid_argument", readFrame(t, c)["code"])

	req.NoError(c.WriteJSON(map[string]any{"type": "dance"}))
	ev := readFrame(t, c)
	req.Equal("error", ev["type"])
	req.Equal("type", ev["field"])

	req.NoError(c.WriteJSON(map[string]any{"type": "ping"}))
	req.Equal("pong", readFrame(t, c)["type"])
}

func TestRateLimitedSend(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t, func(ctl *SignalWSController) { ctl.Limiter = NewRateLimiter(1, time.Minute) })
	c := srv.join(t, "B1", "driver", "d1")
	srv.waitConnections(t, "B1", 1)

	req.NoError(c.WriteJSON(map[string]any{"type": "send_message", "message": "one"}))
	req.Equal("new_message", readFrame(t, c)["type"])

	req.NoError(c.WriteJSON(map[string]any{"type": "send_message", "message": "two"}))
	req.Equal("rate_limited", readFrame(t, c)["code"])
}

func TestRateLimit_SurvivesReconnectWithSameID(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t, func(ctl *SignalWSController) { ctl.Limiter = NewRateLimiter(1, time.Minute) })
	first := srv.join(t, "B1", "driver", "d1")
	srv.waitConnections(t, "B1", 1)

	req.NoError(first.WriteJSON(map[string]any{"type": "send_message", "message": "one"}))
	req.Equal("new_message", readFrame(t, first)["type"])

	// the same id reconnects and the old socket is closed by the server
	second := srv.join(t, "B1", "driver", "d1")
	req.NoError(first.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	// let the old read loop finish its cleanup
	time.Sleep(50 * time.Millisecond)
	srv.waitConnections(t, "B1", 1)

	req.NoError(second.WriteJSON(map[string]any{"type": "send_message", "message": "two"}))
	req.Equal("rate_limited", readFrame(t, second)["code"])
}

func TestClosedSocketIsReleased(t *testing.T) {
	req := require.New(t)
	srv := newWSServer(t)
	c := srv.join(t, "B1", "driver", "d1")
	srv.waitConnections(t, "B1", 1)

	req.NoError(c.Close())
	srv.waitConnections(t, "B1", 0)
}

func TestRateLimiter_Window(t *testing.T) {
	req := require.New(t)
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	req.True(rl.Allow("a"))
	req.True(rl.Allow("a"))
	req.False(rl.Allow("a"))
	req.True(rl.Allow("b"))

	now = now.Add(1100 * time.Millisecond)
	req.True(rl.Allow("a"))

	rl.Forget("a")
	req.True(rl.Allow("a"))
}

func TestSend_BackpressureAndClosed(t *testing.T) {
	req := require.New(t)
	c := &wsSignalConn{send: make(chan core.Frame, 1), done: make(chan struct{})}

	req.NoError(c.Send(context.Background(), core.Frame("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(c.Send(ctx, core.Frame("b")), ErrBackpressure)

	close(c.done)
	req.ErrorIs(c.Send(context.Background(), core.Frame("c")), ErrClosed)
}
