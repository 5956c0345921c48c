package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/core"
	"github.com/hearthhq/hearth/internal/metrics"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsPeer) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *wsPeer) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Router.Disconnect(sid, c)
		metrics.ConnectionsOpen.Dec()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleFrame(ctx, sid, c, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, sid core.SessionID, c *wsPeer, data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case core.TypeJoinRoom:
		var p core.JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad join_room payload")
			return
		}
		ctl.Router.BindRoom(ctx, sid, p)
	case core.TypeSendMessage:
		var p core.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad send_message payload")
			return
		}
		ctl.Router.DispatchMessage(ctx, sid, p)
	case core.TypeTyping:
		ctl.Router.DispatchTyping(ctx, sid)
	case core.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame type")
	}
}

func (ctl *Controller) handlePing(c *wsPeer) {
	frame, err := core.Encode(core.TypePong, nil)
	if err != nil {
		return
	}
	_ = c.TrySend(frame)
}
