package core

import (
	"encoding/json"

	"github.com/hearthhq/hearth/internal/domain"
)

// Frame types, client to relay.
const (
	TypeJoinRoom    = "join_room"
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
	TypePing        = "ping"
)

// Frame types, relay to client.
const (
	TypeNewMessage  = "new_message"
	TypeRoomHistory = "room_history"
	TypeUserTyping  = "user_typing"
	TypePong        = "pong"
	TypeError       = "error"
)

// Envelope is the wire form of every frame: a type tag plus a payload
// left raw until the type is known. Unknown types are ignored, not fatal.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomID    domain.RoomID    `json:"roomId"`
	UserID    domain.UserID    `json:"userId"`
	UserName  string           `json:"userName"`
	ProfileID domain.ProfileID `json:"profileId,omitempty"`
}

type SendMessagePayload struct {
	Content        string                `json:"content"`
	ConversationID domain.ConversationID `json:"conversationId,omitempty"`
	ParentID       domain.MessageID      `json:"parentMessageId,omitempty"`
}

type RoomHistoryPayload struct {
	RoomID   domain.RoomID    `json:"roomId"`
	Messages []domain.Message `json:"messages"`
}

type UserTypingPayload struct {
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode marshals a typed payload into a wire frame.
func Encode(frameType string, payload any) (Frame, error) {
	env := Envelope{Type: frameType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals a wire frame into its envelope.
func Decode(data Frame) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
