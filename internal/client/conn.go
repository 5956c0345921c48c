package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/core"
	"github.com/hearthhq/hearth/internal/domain"
)

const (
	DefaultHeartbeatPeriod = 30 * time.Second
	DefaultMaxReconnects   = 10
	maxBackoff             = 30 * time.Second
)

// Backoff returns the reconnect delay after `attempt` consecutive
// failures: 1s, 2s, 4s, ... capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// wsConn is an indirection over *websocket.Conn to ease testing.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	Close() error
}

// Dialer opens one transport connection.
type Dialer func(ctx context.Context, url string) (wsConn, error)

func gorillaDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

type Options struct {
	HeartbeatPeriod time.Duration
	MaxReconnects   int
	Dial            Dialer
}

// ConnManager owns exactly one live socket connection, recovering from
// drops with bounded exponential backoff. It satisfies Transport.
type ConnManager struct {
	url      string
	handlers Handlers
	hbPeriod time.Duration
	maxRetry int
	dial     Dialer

	mu        sync.Mutex
	identity  Identity
	state     State
	attempts  int
	conn      wsConn
	hbStop    chan struct{}
	reconnect *time.Timer
	torn      bool
	parent    context.Context

	// Serializes writes: heartbeat, join and app sends share one socket.
	wmu sync.Mutex
}

func NewConnManager(url string, id Identity, h Handlers, opts Options) *ConnManager {
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxReconnects
	}
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}
	return &ConnManager{
		url:      url,
		identity: id,
		handlers: h,
		hbPeriod: opts.HeartbeatPeriod,
		maxRetry: opts.MaxReconnects,
		dial:     opts.Dial,
		state:    StateIdle,
	}
}

// Connect is a no-op when already connecting or open.
func (c *ConnManager) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.parent = ctx
	c.mu.Unlock()

	c.emitState(StateConnecting)
	go c.run(ctx)
	return nil
}

func (c *ConnManager) run(ctx context.Context) {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		log.Warn().Err(err).Str("module", "client.conn").Msg("dial failed")
		c.onClosed()
		return
	}

	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	stop := make(chan struct{})
	c.hbStop = stop
	c.mu.Unlock()

	c.emitState(StateOpen)
	go c.heartbeat(stop)
	c.sendJoin()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "client.conn").Msg("connection closed")
			c.onClosed()
			return
		}
		c.dispatch(data)
	}
}

// onClosed runs the reconnect state machine: schedule another attempt
// with backoff, or go terminal after maxRetry consecutive failures.
func (c *ConnManager) onClosed() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed

	if c.attempts >= c.maxRetry {
		c.mu.Unlock()
		log.Error().Str("module", "client.conn").Int("attempts", c.maxRetry).Msg("max reconnection attempts reached")
		c.emitState(StateClosed)
		return
	}

	delay := Backoff(c.attempts)
	c.attempts++
	attempt := c.attempts
	parent := c.parent
	c.reconnect = time.AfterFunc(delay, func() {
		_ = c.Connect(parent)
	})
	c.mu.Unlock()

	c.emitState(StateClosed)
	log.Info().Str("module", "client.conn").Dur("delay", delay).Int("attempt", attempt).Int("max", c.maxRetry).Msg("reconnecting")
}

func (c *ConnManager) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(c.hbPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.send(core.TypePing, nil)
		}
	}
}

func (c *ConnManager) sendJoin() {
	c.mu.Lock()
	p := core.JoinRoomPayload{
		RoomID:    c.identity.RoomID,
		UserID:    c.identity.UserID,
		UserName:  c.identity.UserName,
		ProfileID: c.identity.ProfileID,
	}
	c.mu.Unlock()
	c.send(core.TypeJoinRoom, p)
}

// send drops the frame silently when the connection is not open. No
// queuing: a message typed while offline is lost, the OnState callback
// is how callers gate input.
func (c *ConnManager) send(frameType string, payload any) {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		log.Debug().Str("module", "client.conn").Str("type", frameType).Msg("dropped frame, not open")
		return
	}
	conn := c.conn
	c.mu.Unlock()

	frame, err := core.Encode(frameType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "client.conn").Msg("encode frame")
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Warn().Err(err).Str("module", "client.conn").Msg("write failed")
	}
}

func (c *ConnManager) SendMessage(content string, parentID domain.MessageID) {
	c.mu.Lock()
	convID := c.identity.ConversationID
	c.mu.Unlock()
	c.send(core.TypeSendMessage, core.SendMessagePayload{
		Content:        content,
		ConversationID: convID,
		ParentID:       parentID,
	})
}

func (c *ConnManager) SendTyping() {
	c.send(core.TypeTyping, nil)
}

// SwitchRoom rebinds to a new room. The relay replaces the old binding
// on its side; no frames from the old room reach this connection after
// the join is processed.
func (c *ConnManager) SwitchRoom(roomID domain.RoomID) {
	c.mu.Lock()
	c.identity.RoomID = roomID
	open := c.state == StateOpen
	c.mu.Unlock()
	if open {
		c.sendJoin()
	}
}

// Teardown cancels timers and closes the transport. Idempotent,
// callable from any state.
func (c *ConnManager) Teardown() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed
	c.mu.Unlock()
}

func (c *ConnManager) emitState(s State) {
	if c.handlers.OnState != nil {
		c.handlers.OnState(s)
	}
}

// State reports the current lifecycle state.
func (c *ConnManager) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ConnManager) dispatch(data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "client.conn").Msg("bad frame")
		return
	}
	switch env.Type {
	case core.TypeNewMessage:
		var msg domain.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
	case core.TypeRoomHistory:
		var p core.RoomHistoryPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		if c.handlers.OnHistory != nil {
			c.handlers.OnHistory(p.RoomID, p.Messages)
		}
	case core.TypeUserTyping:
		var p core.UserTypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		if c.handlers.OnTyping != nil {
			c.handlers.OnTyping(p.UserID, p.UserName)
		}
	case core.TypePong:
		// Heartbeat reply; liveness detection rides on the transport's
		// own close event.
	case core.TypeError:
		var p core.ErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		log.Warn().Str("module", "client.conn").Str("error", p.Message).Msg("relay error frame")
	default:
		// Unknown frame types are ignored, not fatal.
	}
}
