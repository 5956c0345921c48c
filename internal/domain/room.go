package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	RoomID         string
	ConversationID string
)

// Room is a family group: the fan-out scope of the relay.
type Room struct {
	ID   RoomID `json:"id"`
	Name string `json:"name"`
}

// Conversation is a named message thread inside a room. Rooms may hold
// several conversations; a conversation is never deleted.
type Conversation struct {
	ID        ConversationID `json:"id"`
	RoomID    RoomID         `json:"roomId"`
	Title     string         `json:"title"`
	CreatedBy ProfileID      `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
}

func NewConversation(roomID RoomID, title string, createdBy ProfileID) *Conversation {
	return &Conversation{
		ID:        ConversationID(uuid.NewString()),
		RoomID:    roomID,
		Title:     title,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
}
