package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Talkie/internal/adapters/auth"
	"github.com/dkeye/Talkie/internal/adapters/rtc"
	"github.com/dkeye/Talkie/internal/app/orch"
	"github.com/dkeye/Talkie/internal/core"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	ICEURLs    []string
}

func (s Settings) withDefaults() Settings {
	if s.ReadLimit <= 0 {
		s.ReadLimit = 32768
	}
	if s.PingPeriod <= 0 {
		s.PingPeriod = 54 * time.Second
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 32
	}
	return s
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Auth    *auth.Manager // nil disables token checks
	Limiter *RateLimiter  // nil disables rate limiting

	cfg Settings
}

func NewSignalWSController(o *orch.Orchestrator, cfg Settings) *SignalWSController {
	return &SignalWSController{Orch: o, cfg: cfg.withDefaults()}
}

// wsSignalConn is the core.SignalConnection of one websocket.
// send is never closed; done tells writers the socket is gone.
type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}
	once sync.Once

	meta domain.Connection
}

func newWSSignalConn(ws *websocket.Conn, buffer int) *wsSignalConn {
	return &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
		done: make(chan struct{}),
	}
}

// Send queues f for the write pump. It waits for buffer space until ctx is done.
func (c *wsSignalConn) Send(ctx context.Context, f core.Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrBackpressure, ctx.Err())
	}
}

func (c *wsSignalConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handshake struct {
	Key    domain.ConversationKey
	Role   domain.Role
	ConnID string
}

func (ctl *SignalWSController) handshake(c *gin.Context) (handshake, error) {
	key := domain.ConversationKey(c.Query("booking_code"))
	if err := key.Validate(); err != nil {
		return handshake{}, err
	}
	role, err := domain.ParseRole(c.Query("role"))
	if err != nil {
		return handshake{}, err
	}
	id := c.Query("connection_id")
	if len(id) > domain.MaxConnectionIDLen {
		return handshake{}, domain.InvalidArgument("connection_id", "too long")
	}
	if ctl.Auth != nil {
		if err := ctl.Auth.Authorize(auth.FromRequest(c.Request), key, role); err != nil {
			return handshake{}, err
		}
	}
	return handshake{Key: key, Role: role, ConnID: id}, nil
}

// HandleSignal upgrades the request and runs the connection until either side
// closes it or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	hs, err := ctl.handshake(c)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("handshake refused")
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": ErrorCode(err)})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := newWSSignalConn(ws, ctl.cfg.SendBuffer)
	if hs.ConnID == "" {
		hs.ConnID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)

	// queued ahead of any call resync Connect may send
	ctl.sendJSON(ctx, conn, welcome{
		Type:         "connected",
		ConnectionID: hs.ConnID,
		Key:          hs.Key,
		Role:         hs.Role,
		ICEServers:   rtc.ICEServers(ctl.cfg.ICEURLs),
	})

	registered, err := ctl.Orch.Connect(ctx, hs.Key, hs.ConnID, hs.Role, c.GetString(ClientTokenKey), conn)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("register connection")
		cancel()
		conn.Close()
		return
	}
	conn.meta = registered
	log.Info().Str("module", "signal").Str("key", string(hs.Key)).Str("conn", registered.ID).
		Str("role", string(hs.Role)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
