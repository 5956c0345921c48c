package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hearthhq/hearth/internal/domain"
)

// MemoryStore is a threadsafe in-process store with change
// notifications. It backs the relay in dev mode and every store-facing
// test; it is also a full RealtimeStore so the bridge can run against
// it without Redis.
type MemoryStore struct {
	mu            sync.RWMutex
	messages      map[domain.RoomID][]domain.Message
	typing        map[domain.RoomID]map[domain.UserID]domain.TypingIndicator
	reactions     []domain.ReactionFact
	profiles      map[domain.ProfileID]domain.Profile
	conversations map[domain.RoomID][]domain.Conversation

	msgSubs      map[domain.RoomID][]chan MessageEvent
	typingSubs   map[domain.RoomID][]chan TypingEvent
	reactionSubs map[domain.RoomID][]chan ReactionEvent

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:      make(map[domain.RoomID][]domain.Message),
		typing:        make(map[domain.RoomID]map[domain.UserID]domain.TypingIndicator),
		profiles:      make(map[domain.ProfileID]domain.Profile),
		conversations: make(map[domain.RoomID][]domain.Conversation),
		msgSubs:       make(map[domain.RoomID][]chan MessageEvent),
		typingSubs:    make(map[domain.RoomID][]chan TypingEvent),
		reactionSubs:  make(map[domain.RoomID][]chan ReactionEvent),
		now:           time.Now,
	}
}

func (s *MemoryStore) InsertMessage(ctx context.Context, in InsertMessage) (domain.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return domain.Message{}, ErrEmptyContent
	}
	msg := domain.Message{
		ID:              domain.MessageID(ulid.Make().String()),
		Content:         in.Content,
		SenderID:        in.SenderID,
		SenderName:      in.SenderName,
		SenderProfileID: in.SenderProfileID,
		RoomID:          in.RoomID,
		ConversationID:  in.ConversationID,
		ParentID:        in.ParentID,
		CreatedAt:       s.now().UTC(),
	}

	s.mu.Lock()
	s.messages[in.RoomID] = append(s.messages[in.RoomID], msg)
	s.mu.Unlock()

	s.notifyMessage(in.RoomID, MessageEvent{Kind: EventInsert, Message: msg})
	return msg, nil
}

func (s *MemoryStore) ReadMessages(ctx context.Context, roomID domain.RoomID, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[roomID]
	out := make([]domain.Message, 0, len(all))
	for _, m := range all {
		if conversationID != "" && m.ConversationID != conversationID {
			continue
		}
		out = append(out, m)
	}
	// Rows are kept in insert order; keep only the newest window but
	// return it ascending.
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]domain.Message(nil), out...), nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrEmptyContent
	}
	s.mu.Lock()
	msgs := s.messages[roomID]
	var updated domain.Message
	found := false
	for i := range msgs {
		if msgs[i].ID == id {
			now := s.now().UTC()
			msgs[i].Content = content
			msgs[i].IsEdited = true
			msgs[i].EditedAt = &now
			updated = msgs[i]
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return domain.Message{}, ErrNotFound
	}
	s.notifyMessage(roomID, MessageEvent{Kind: EventUpdate, Message: updated})
	return updated, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) error {
	s.mu.Lock()
	msgs := s.messages[roomID]
	var updated domain.Message
	found := false
	for i := range msgs {
		if msgs[i].ID == id {
			msgs[i].IsDeleted = true
			msgs[i].Content = domain.DeletedPlaceholder
			updated = msgs[i]
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrNotFound
	}
	s.notifyMessage(roomID, MessageEvent{Kind: EventUpdate, Message: updated})
	return nil
}

func (s *MemoryStore) PinMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].ID == id {
			msgs[i].IsPinned = !msgs[i].IsPinned
			return msgs[i].IsPinned, nil
		}
	}
	return false, ErrNotFound
}

func (s *MemoryStore) UpsertTypingIndicator(ctx context.Context, ind domain.TypingIndicator) error {
	s.mu.Lock()
	room := s.typing[ind.RoomID]
	if room == nil {
		room = make(map[domain.UserID]domain.TypingIndicator)
		s.typing[ind.RoomID] = room
	}
	room[ind.UserID] = ind
	s.mu.Unlock()

	s.notifyTyping(ind.RoomID, TypingEvent{Kind: EventInsert, Indicator: ind})
	return nil
}

func (s *MemoryStore) DeleteTypingIndicator(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	var ind domain.TypingIndicator
	found := false
	if room := s.typing[roomID]; room != nil {
		ind, found = room[userID]
		delete(room, userID)
	}
	s.mu.Unlock()

	if found {
		s.notifyTyping(roomID, TypingEvent{Kind: EventDelete, Indicator: ind})
	}
	return nil
}

func (s *MemoryStore) InsertReaction(ctx context.Context, fact domain.ReactionFact) error {
	s.mu.Lock()
	exists := false
	for _, f := range s.reactions {
		if f.MessageID == fact.MessageID && f.UserID == fact.UserID && f.Emoji == fact.Emoji {
			exists = true
			break
		}
	}
	if !exists {
		s.reactions = append(s.reactions, fact)
	}
	roomID := s.roomOfMessageLocked(fact.MessageID)
	s.mu.Unlock()

	if !exists {
		s.notifyReaction(roomID, ReactionEvent{Kind: EventInsert, Fact: fact})
	}
	return nil
}

func (s *MemoryStore) DeleteReaction(ctx context.Context, fact domain.ReactionFact) error {
	s.mu.Lock()
	kept := s.reactions[:0]
	removed := false
	for _, f := range s.reactions {
		if f.MessageID == fact.MessageID && f.UserID == fact.UserID && f.Emoji == fact.Emoji {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	s.reactions = kept
	roomID := s.roomOfMessageLocked(fact.MessageID)
	s.mu.Unlock()

	if removed {
		s.notifyReaction(roomID, ReactionEvent{Kind: EventDelete, Fact: fact})
	}
	return nil
}

func (s *MemoryStore) ReadReactions(ctx context.Context, messageIDs []domain.MessageID) ([]domain.ReactionFact, error) {
	want := make(map[domain.MessageID]bool, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ReactionFact
	for _, f := range s.reactions {
		if want[f.MessageID] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryStore) roomOfMessageLocked(id domain.MessageID) domain.RoomID {
	for roomID, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ID == id {
				return roomID
			}
		}
	}
	return ""
}

func (s *MemoryStore) GetProfile(ctx context.Context, id domain.ProfileID) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context, roomID domain.RoomID) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (s *MemoryStore) PutProfile(ctx context.Context, p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.RoomID] = append(s.conversations[conv.RoomID], conv)
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, roomID domain.RoomID) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Conversation(nil), s.conversations[roomID]...), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

func (s *MemoryStore) SubscribeMessages(ctx context.Context, roomID domain.RoomID) (<-chan MessageEvent, error) {
	ch := make(chan MessageEvent, 64)
	s.mu.Lock()
	s.msgSubs[roomID] = append(s.msgSubs[roomID], ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		// Close under the write lock so in-flight notifies (which hold
		// the read lock) can never hit a closed channel.
		s.mu.Lock()
		s.msgSubs[roomID] = removeChan(s.msgSubs[roomID], ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *MemoryStore) SubscribeTyping(ctx context.Context, roomID domain.RoomID) (<-chan TypingEvent, error) {
	ch := make(chan TypingEvent, 64)
	s.mu.Lock()
	s.typingSubs[roomID] = append(s.typingSubs[roomID], ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.typingSubs[roomID] = removeChan(s.typingSubs[roomID], ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *MemoryStore) SubscribeReactions(ctx context.Context, roomID domain.RoomID) (<-chan ReactionEvent, error) {
	ch := make(chan ReactionEvent, 64)
	s.mu.Lock()
	s.reactionSubs[roomID] = append(s.reactionSubs[roomID], ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.reactionSubs[roomID] = removeChan(s.reactionSubs[roomID], ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func removeChan[T any](subs []chan T, target chan T) []chan T {
	out := subs[:0]
	for _, ch := range subs {
		if ch != target {
			out = append(out, ch)
		}
	}
	return out
}

// Slow subscribers drop events rather than block the writer.

func (s *MemoryStore) notifyMessage(roomID domain.RoomID, ev MessageEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.msgSubs[roomID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *MemoryStore) notifyTyping(roomID domain.RoomID, ev TypingEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.typingSubs[roomID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *MemoryStore) notifyReaction(roomID domain.RoomID, ev ReactionEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.reactionSubs[roomID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
