package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	DefaultReadLimit  = 32768
	DefaultPingPeriod = 54 * time.Second
	sendQueueSize     = 32
)

// MessageHandler receives decoded test-mode messages. *orch.Dispatcher satisfies it.
type MessageHandler interface {
	OnMessage(ctx context.Context, c core.Client, cmd string, payload json.RawMessage) error
	Remove(ctx context.Context, c core.Client)
}

type SignalWSController struct {
	Handler MessageHandler
	Limiter *ClientRateLimiter
	// ReadLimit caps the size of one inbound message.
	ReadLimit  int64
	PingPeriod time.Duration
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one client until it disconnects.
// Every connection gets its own client id; the cookie token only labels logs.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendQueueSize),
	}
	client := core.NewClient(domain.NewClientID(), conn)
	log.Info().Str("module", "signal").Str("cid", string(client.ID())).Str("ct", token).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, client, conn)
	}()
}

func (ctl *SignalWSController) readLimit() int64 {
	if ctl.ReadLimit > 0 {
		return ctl.ReadLimit
	}
	return DefaultReadLimit
}

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return DefaultPingPeriod
}
