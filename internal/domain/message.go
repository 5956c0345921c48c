package domain

import "time"

type MessageID string

// DeletedPlaceholder replaces the content of a soft-deleted message.
// The row itself is never removed.
const DeletedPlaceholder = "[deleted message]"

// Message is the canonical, store-confirmed form of a chat message.
// Core fields (ID..CreatedAt) are immutable after insert; the rest are
// derived or mutated by edit/delete/pin/react operations.
//
// IDs are ULIDs, so lexicographic order on MessageID tracks creation
// time. Uniqueness holds within a room.
type Message struct {
	ID              MessageID      `json:"id"`
	Content         string         `json:"content"`
	SenderID        UserID         `json:"senderId"`
	SenderName      string         `json:"senderName"`
	SenderProfileID ProfileID      `json:"senderProfileId,omitempty"`
	RoomID          RoomID         `json:"roomId"`
	ConversationID  ConversationID `json:"conversationId,omitempty"`
	CreatedAt       time.Time      `json:"timestamp"`

	IsEdited  bool       `json:"isEdited,omitempty"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	IsDeleted bool       `json:"isDeleted,omitempty"`
	IsPinned  bool       `json:"isPinned,omitempty"`
	ParentID  MessageID  `json:"parentMessageId,omitempty"`

	Reactions map[string]ReactionSummary `json:"reactions,omitempty"`
}

// ReactionFact is one (message, user, emoji) vote. Summaries are
// recomputed from facts, never the other way around.
type ReactionFact struct {
	MessageID MessageID `json:"messageId"`
	UserID    UserID    `json:"userId"`
	Emoji     string    `json:"emoji"`
	UserName  string    `json:"userName,omitempty"`
}

// ReactionSummary is the per-emoji aggregate a viewer sees.
type ReactionSummary struct {
	Count    int      `json:"count"`
	Reacted  bool     `json:"reactedByCurrentUser"`
	Reactors []string `json:"reactors,omitempty"`
}

// SummarizeReactions folds facts into per-emoji aggregates from the
// point of view of one user. Count equals the number of distinct
// (user, emoji) facts.
func SummarizeReactions(facts []ReactionFact, viewer UserID) map[string]ReactionSummary {
	if len(facts) == 0 {
		return nil
	}
	seen := make(map[string]map[UserID]bool)
	out := make(map[string]ReactionSummary)
	for _, f := range facts {
		users := seen[f.Emoji]
		if users == nil {
			users = make(map[UserID]bool)
			seen[f.Emoji] = users
		}
		if users[f.UserID] {
			continue
		}
		users[f.UserID] = true
		s := out[f.Emoji]
		s.Count++
		if f.UserID == viewer {
			s.Reacted = true
		}
		if f.UserName != "" {
			s.Reactors = append(s.Reactors, f.UserName)
		}
		out[f.Emoji] = s
	}
	return out
}

// TypingIndicator is the ephemeral "user is composing" fact. Expiry is
// time based; a signal past ExpiresAt must not be surfaced to peers.
type TypingIndicator struct {
	RoomID    RoomID    `json:"roomId"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (t TypingIndicator) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
