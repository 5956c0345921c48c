package core

import "github.com/hearthhq/hearth/internal/domain"

// Frame is one encoded wire envelope.
type Frame []byte

type SessionID string

// PeerConn abstracts a transport endpoint (WebSocket on the relay).
// Owned by the adapter; the adapter must Close() it.
type PeerConn interface {
	TrySend(Frame) error
	Close()
}

// Binding is a session's current room association plus sender identity.
// Exactly one room per session; the last bind wins.
type Binding struct {
	RoomID    domain.RoomID
	UserID    domain.UserID
	UserName  string
	ProfileID domain.ProfileID
}

// PublishResult reports one fan-out's delivery counts.
type PublishResult struct {
	SentTo  int
	Dropped int
}
