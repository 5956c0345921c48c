// Package store is the persistence collaborator of the relay and the
// subscription bridge. Implementations: MemoryStore (dev, tests),
// SQLiteStore (embedded durability), RedisStore (shared deployment with
// native change notifications).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hearthhq/hearth/internal/domain"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrEmptyContent = errors.New("store: empty content")
)

// InsertMessage carries the caller-supplied part of a message row. The
// store assigns the identifier and timestamp of the canonical row.
type InsertMessage struct {
	RoomID          domain.RoomID
	ConversationID  domain.ConversationID
	SenderID        domain.UserID
	SenderName      string
	SenderProfileID domain.ProfileID
	Content         string
	ParentID        domain.MessageID
}

// Store is the query surface consumed by the room router and the
// subscription bridge. Messages are never physically removed: delete is
// a soft tombstone.
type Store interface {
	InsertMessage(ctx context.Context, in InsertMessage) (domain.Message, error)
	// ReadMessages returns up to limit messages of a room (and, when
	// conversationID is non-empty, of that conversation), ordered by
	// creation time ascending.
	ReadMessages(ctx context.Context, roomID domain.RoomID, conversationID domain.ConversationID, limit int) ([]domain.Message, error)
	UpdateMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID, content string) (domain.Message, error)
	DeleteMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) error
	PinMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) (bool, error)

	UpsertTypingIndicator(ctx context.Context, ind domain.TypingIndicator) error
	DeleteTypingIndicator(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error

	InsertReaction(ctx context.Context, fact domain.ReactionFact) error
	DeleteReaction(ctx context.Context, fact domain.ReactionFact) error
	ReadReactions(ctx context.Context, messageIDs []domain.MessageID) ([]domain.ReactionFact, error)

	GetProfile(ctx context.Context, id domain.ProfileID) (domain.Profile, error)
	ListProfiles(ctx context.Context, roomID domain.RoomID) ([]domain.Profile, error)
	PutProfile(ctx context.Context, p domain.Profile) error

	CreateConversation(ctx context.Context, conv domain.Conversation) error
	ListConversations(ctx context.Context, roomID domain.RoomID) ([]domain.Conversation, error)

	Ping(ctx context.Context) error
	Close() error
}

// Event kinds delivered on subscription channels.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

type MessageEvent struct {
	Kind    string
	Message domain.Message
}

type TypingEvent struct {
	Kind      string
	Indicator domain.TypingIndicator
}

type ReactionEvent struct {
	Kind string
	Fact domain.ReactionFact
}

// Subscriber is the change-notification side of a realtime-capable
// store. Channels are closed when ctx is cancelled or the underlying
// feed drops; callers resubscribe.
type Subscriber interface {
	SubscribeMessages(ctx context.Context, roomID domain.RoomID) (<-chan MessageEvent, error)
	SubscribeTyping(ctx context.Context, roomID domain.RoomID) (<-chan TypingEvent, error)
	SubscribeReactions(ctx context.Context, roomID domain.RoomID) (<-chan ReactionEvent, error)
}

// RealtimeStore is what the subscription bridge runs against.
type RealtimeStore interface {
	Store
	Subscriber
}

// TypingTTL is the validity window of a typing signal.
const TypingTTL = 3 * time.Second
