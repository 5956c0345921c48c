// Package signal is the relay-side WebSocket transport: it upgrades
// connections, pumps frames, and hands decoded envelopes to the router.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/app"
	"github.com/hearthhq/hearth/internal/core"
	"github.com/hearthhq/hearth/internal/metrics"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Router    *app.Router
	ReadLimit int64
}

func NewController(router *app.Router, readLimit int64) *Controller {
	return &Controller{Router: router, ReadLimit: readLimit}
}

// wsPeer is a transport endpoint. It implements core.PeerConn.
type wsPeer struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsPeer) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsPeer) Close() {
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

// Handle upgrades an HTTP request to a WebSocket session and registers
// it with the connection table. Each upgrade mints its own session id:
// the browser's client token recurs across overlapping reconnects, so
// it cannot key the registry.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	peer := &wsPeer{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Router.Registry.Bind(sid, peer, cancel)
	metrics.ConnectionsOpen.Inc()

	go ctl.writePump(ctx, peer)
	go ctl.readPump(ctx, sid, peer)
}
