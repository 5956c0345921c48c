package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/core"
	"github.com/hearthhq/hearth/internal/domain"
)

type sessionEntry struct {
	Binding core.Binding
	Conn    core.PeerConn
	Cancel  context.CancelFunc
}

// Registry is the relay's connection table: every live transport
// session and its current room binding. It is an explicit object
// injected into the router so tests can run against a fresh one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

// Bind registers a freshly opened connection with no room yet. A
// session id that is already bound gets its old endpoint torn down
// before the new one takes over, so a rebind can never leave two live
// sockets sharing one entry.
func (r *Registry) Bind(sid core.SessionID, conn core.PeerConn, cancel context.CancelFunc) {
	r.mu.Lock()
	old := r.sessions[sid]
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	r.mu.Unlock()

	if old != nil {
		if old.Cancel != nil {
			old.Cancel()
		}
		old.Conn.Close()
		log.Warn().Str("module", "app.registry").Str("sid", string(sid)).Msg("displaced stale session")
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

// UpdateBinding replaces the session's room binding; the last bind wins.
func (r *Registry) UpdateBinding(sid core.SessionID, b core.Binding) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.Binding = b
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(b.RoomID)).Msg("updated room binding")
	return true
}

// BindingOf returns the session's current binding; ok is false when the
// session is unknown or has not joined a room yet.
func (r *Registry) BindingOf(sid core.SessionID) (core.Binding, core.PeerConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Binding.RoomID == "" {
		return core.Binding{}, nil, false
	}
	return entry.Binding, entry.Conn, true
}

// ConnOf returns the transport endpoint regardless of room membership.
func (r *Registry) ConnOf(sid core.SessionID) (core.PeerConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.sessions[sid]; ok {
		return entry.Conn, true
	}
	return nil, false
}

// Unbind removes the session and invokes the cancel stored at Bind, so
// the connection's context dies with its entry. A non-nil conn must
// still own the entry: the late disconnect of a socket whose sid was
// rebound is a no-op and leaves the replacement alone. Pass nil to
// unbind unconditionally.
func (r *Registry) Unbind(sid core.SessionID, conn core.PeerConn) {
	r.mu.Lock()
	entry, ok := r.sessions[sid]
	if !ok || (conn != nil && entry.Conn != conn) {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sid)
	r.mu.Unlock()

	if entry.Cancel != nil {
		entry.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

type regSnap struct {
	SID     core.SessionID
	Conn    core.PeerConn
	Binding core.Binding
}

func (r *Registry) MembersOfRoom(roomID domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.Binding.RoomID == roomID {
			out = append(out, regSnap{SID: sid, Conn: e.Conn, Binding: e.Binding})
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
