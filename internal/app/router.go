package app

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/core"
	"github.com/hearthhq/hearth/internal/domain"
	"github.com/hearthhq/hearth/internal/metrics"
	"github.com/hearthhq/hearth/internal/store"
)

const DefaultHistoryLimit = 100

// Router maps live connections to rooms and performs message fan-out.
// Broadcast order within a room equals the order in which the store
// confirms each insert: dispatch holds the room's lock across
// persist-and-broadcast, so two concurrent sends serialize on the
// persistence confirmation.
type Router struct {
	Registry     *Registry
	Store        store.Store
	HistoryLimit int

	mu sync.Mutex
	// roomLocks entries are never reaped; the room set of a family
	// deployment is small and stable.
	roomLocks map[domain.RoomID]*sync.Mutex
}

func NewRouter(reg *Registry, st store.Store) *Router {
	return &Router{
		Registry:     reg,
		Store:        st,
		HistoryLimit: DefaultHistoryLimit,
		roomLocks:    make(map[domain.RoomID]*sync.Mutex),
	}
}

func (rt *Router) roomLock(roomID domain.RoomID) *sync.Mutex {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	l, ok := rt.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		rt.roomLocks[roomID] = l
	}
	return l
}

// BindRoom replaces the session's room binding and returns the room's
// recent history to the requesting connection only.
func (rt *Router) BindRoom(ctx context.Context, sid core.SessionID, p core.JoinRoomPayload) {
	b := core.Binding{
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		UserName:  p.UserName,
		ProfileID: p.ProfileID,
	}
	if !rt.Registry.UpdateBinding(sid, b) {
		log.Warn().Str("module", "app.router").Str("sid", string(sid)).Msg("join from unknown session")
		return
	}

	conn, ok := rt.Registry.ConnOf(sid)
	if !ok {
		return
	}
	history, err := rt.Store.ReadMessages(ctx, p.RoomID, "", rt.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("room", string(p.RoomID)).Msg("history read")
		rt.sendError(conn, "failed to load history")
		return
	}
	if history == nil {
		history = []domain.Message{}
	}
	rt.send(conn, core.TypeRoomHistory, core.RoomHistoryPayload{RoomID: p.RoomID, Messages: history})
}

// DispatchMessage validates, persists, then broadcasts the canonical
// message to every connection bound to the sender's room, sender
// included, so all views converge on the store-confirmed copy.
func (rt *Router) DispatchMessage(ctx context.Context, sid core.SessionID, p core.SendMessagePayload) {
	b, conn, ok := rt.Registry.BindingOf(sid)
	if !ok {
		if c, exists := rt.Registry.ConnOf(sid); exists {
			metrics.FrameErrors.WithLabelValues("no_binding").Inc()
			rt.sendError(c, "join a room first")
		}
		return
	}
	if strings.TrimSpace(p.Content) == "" {
		metrics.FrameErrors.WithLabelValues("empty_content").Inc()
		rt.sendError(conn, "message content must not be empty")
		return
	}

	l := rt.roomLock(b.RoomID)
	l.Lock()
	defer l.Unlock()

	msg, err := rt.Store.InsertMessage(ctx, store.InsertMessage{
		RoomID:          b.RoomID,
		ConversationID:  p.ConversationID,
		SenderID:        b.UserID,
		SenderName:      b.UserName,
		SenderProfileID: b.ProfileID,
		Content:         p.Content,
		ParentID:        p.ParentID,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("sid", string(sid)).Msg("message insert")
		metrics.FrameErrors.WithLabelValues("insert_failed").Inc()
		rt.sendError(conn, "failed to send message")
		return
	}

	frame, err := core.Encode(core.TypeNewMessage, msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode new_message")
		return
	}
	res := rt.publish(b.RoomID, frame, "")
	metrics.MessagesBroadcast.Inc()
	log.Debug().Str("module", "app.router").Str("room", string(b.RoomID)).Str("msg", string(msg.ID)).
		Int("sent", res.SentTo).Int("dropped", res.Dropped).Msg("message broadcast")
}

// publish fans one frame out to every connection bound to the room,
// minus skip when non-empty. Slow peers are dropped, never waited on.
func (rt *Router) publish(roomID domain.RoomID, frame core.Frame, skip core.SessionID) core.PublishResult {
	var res core.PublishResult
	for _, member := range rt.Registry.MembersOfRoom(roomID) {
		if skip != "" && member.SID == skip {
			continue
		}
		if err := member.Conn.TrySend(frame); err != nil {
			metrics.FramesDropped.Inc()
			log.Warn().Str("module", "app.router").Str("sid", string(member.SID)).Msg("dropped frame on slow peer")
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	return res
}

// DispatchTyping relays a typing signal to everyone else in the room.
// Nothing is persisted.
func (rt *Router) DispatchTyping(ctx context.Context, sid core.SessionID) {
	b, _, ok := rt.Registry.BindingOf(sid)
	if !ok {
		return
	}
	frame, err := core.Encode(core.TypeUserTyping, core.UserTypingPayload{UserID: b.UserID, UserName: b.UserName})
	if err != nil {
		return
	}
	rt.publish(b.RoomID, frame, sid)
	metrics.TypingSignals.Inc()
}

// Disconnect drops the session from the table, provided conn still
// owns it. No "user left" notice is broadcast.
func (rt *Router) Disconnect(sid core.SessionID, conn core.PeerConn) {
	rt.Registry.Unbind(sid, conn)
}

func (rt *Router) send(conn core.PeerConn, frameType string, payload any) {
	frame, err := core.Encode(frameType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("type", frameType).Msg("encode frame")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		metrics.FramesDropped.Inc()
	}
}

func (rt *Router) sendError(conn core.PeerConn, msg string) {
	rt.send(conn, core.TypeError, core.ErrorPayload{Message: msg})
}
