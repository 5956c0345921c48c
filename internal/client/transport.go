// Package client implements the client half of the chat core: a socket
// connection manager, a subscription bridge for store-native realtime,
// typing presence, and message assembly. The UI layer talks only to the
// Transport interface and never learns which variant is active.
package client

import (
	"context"
	"fmt"

	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/domain"
	"github.com/hearthhq/hearth/internal/store"
)

// State of the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity is who and where the client is chatting.
type Identity struct {
	RoomID         domain.RoomID
	ConversationID domain.ConversationID
	UserID         domain.UserID
	UserName       string
	ProfileID      domain.ProfileID
}

// Handlers receive transport events. Nil handlers are skipped.
// OnMessageUpdate and OnReactions fire only on the bridge variant,
// which observes row changes the socket relay does not broadcast.
type Handlers struct {
	OnMessage       func(domain.Message)
	OnHistory       func(domain.RoomID, []domain.Message)
	OnTyping        func(userID domain.UserID, userName string)
	OnState         func(State)
	OnMessageUpdate func(domain.Message)
	OnReactions     func(domain.MessageID, []domain.ReactionFact)
}

// Transport is the single contract both variants satisfy: the socket
// connection manager and the subscription bridge.
type Transport interface {
	Connect(ctx context.Context) error
	SendMessage(content string, parentID domain.MessageID)
	SendTyping()
	SwitchRoom(roomID domain.RoomID)
	Teardown()
}

// New selects the transport variant from configuration.
func New(ctx context.Context, cfg *config.Config, id Identity, h Handlers) (Transport, error) {
	switch cfg.Transport {
	case "socket":
		return NewConnManager(cfg.ServerURL, id, h, Options{
			HeartbeatPeriod: cfg.HeartbeatPeriod,
			MaxReconnects:   cfg.MaxReconnects,
		}), nil
	case "realtime":
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("realtime store: %w", err)
		}
		return NewBridge(rs, id, h, BridgeOptions{
			HistoryLimit: cfg.HistoryLimit,
			PollInterval: cfg.PollInterval,
			TypingTTL:    cfg.TypingTTL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
