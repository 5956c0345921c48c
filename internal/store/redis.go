package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/domain"
)

// RedisStore keeps chat state in Redis and publishes every change on a
// per-room pub/sub channel. It is the managed-realtime deployment: the
// subscription bridge talks to it directly, no relay process required.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func roomMessagesKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

func messageKey(id domain.MessageID) string {
	return fmt.Sprintf("message:%s", id)
}

func typingKey(roomID domain.RoomID, userID domain.UserID) string {
	return fmt.Sprintf("typing:%s:%s", roomID, userID)
}

func reactionsKey(id domain.MessageID) string {
	return fmt.Sprintf("reactions:%s", id)
}

func profileKey(id domain.ProfileID) string {
	return fmt.Sprintf("profile:%s", id)
}

func roomProfilesKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:profiles", roomID)
}

func roomConversationsKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:conversations", roomID)
}

func messagesChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("hearth:%s:messages", roomID)
}

func typingChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("hearth:%s:typing", roomID)
}

func reactionsChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("hearth:%s:reactions", roomID)
}

func (s *RedisStore) publish(ctx context.Context, channel string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "store.redis").Msg("publish marshal")
		return
	}
	if err := s.client.Publish(ctx, channel, b).Err(); err != nil {
		log.Error().Err(err).Str("module", "store.redis").Str("channel", channel).Msg("publish")
	}
}

func (s *RedisStore) putMessage(ctx context.Context, msg domain.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, messageKey(msg.ID), b, 0)
	pipe.ZAdd(ctx, roomMessagesKey(msg.RoomID), redis.Z{
		Score:  float64(msg.CreatedAt.UnixMilli()),
		Member: string(msg.ID),
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) InsertMessage(ctx context.Context, in InsertMessage) (domain.Message, error) {
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
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.putMessage(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	s.publish(ctx, messagesChannel(in.RoomID), MessageEvent{Kind: EventInsert, Message: msg})
	return msg, nil
}

func (s *RedisStore) ReadMessages(ctx context.Context, roomID domain.RoomID, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	// Newest window first, then reversed to ascending. The conversation
	// filter is applied after hydration, so over-fetch when filtering.
	fetch := int64(limit)
	if conversationID != "" {
		fetch = -1
	}
	var ids []string
	var err error
	if fetch < 0 {
		ids, err = s.client.ZRange(ctx, roomMessagesKey(roomID), 0, -1).Result()
	} else {
		ids, err = s.client.ZRevRange(ctx, roomMessagesKey(roomID), 0, fetch-1).Result()
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(domain.MessageID(id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.Warn().Err(err).Str("module", "store.redis").Msg("skip unreadable message row")
			continue
		}
		if conversationID != "" && m.ConversationID != conversationID {
			continue
		}
		out = append(out, m)
	}
	if conversationID != "" && limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *RedisStore) getMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	raw, err := s.client.Get(ctx, messageKey(id)).Result()
	if err == redis.Nil {
		return domain.Message{}, ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

func (s *RedisStore) UpdateMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrEmptyContent
	}
	m, err := s.getMessage(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if m.RoomID != roomID {
		return domain.Message{}, ErrNotFound
	}
	now := time.Now().UTC()
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &now
	if err := s.putMessage(ctx, m); err != nil {
		return domain.Message{}, err
	}
	s.publish(ctx, messagesChannel(roomID), MessageEvent{Kind: EventUpdate, Message: m})
	return m, nil
}

func (s *RedisStore) DeleteMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) error {
	m, err := s.getMessage(ctx, id)
	if err != nil {
		return err
	}
	if m.RoomID != roomID {
		return ErrNotFound
	}
	m.IsDeleted = true
	m.Content = domain.DeletedPlaceholder
	if err := s.putMessage(ctx, m); err != nil {
		return err
	}
	s.publish(ctx, messagesChannel(roomID), MessageEvent{Kind: EventUpdate, Message: m})
	return nil
}

func (s *RedisStore) PinMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) (bool, error) {
	m, err := s.getMessage(ctx, id)
	if err != nil {
		return false, err
	}
	if m.RoomID != roomID {
		return false, ErrNotFound
	}
	m.IsPinned = !m.IsPinned
	if err := s.putMessage(ctx, m); err != nil {
		return false, err
	}
	s.publish(ctx, messagesChannel(roomID), MessageEvent{Kind: EventUpdate, Message: m})
	return m.IsPinned, nil
}

func (s *RedisStore) UpsertTypingIndicator(ctx context.Context, ind domain.TypingIndicator) error {
	b, err := json.Marshal(ind)
	if err != nil {
		return err
	}
	ttl := time.Until(ind.ExpiresAt)
	if ttl <= 0 {
		ttl = TypingTTL
	}
	// Redis expires the key on its own; the explicit delete from the
	// bridge is only needed to notify peers early.
	if err := s.client.Set(ctx, typingKey(ind.RoomID, ind.UserID), b, ttl).Err(); err != nil {
		return err
	}
	s.publish(ctx, typingChannel(ind.RoomID), TypingEvent{Kind: EventInsert, Indicator: ind})
	return nil
}

func (s *RedisStore) DeleteTypingIndicator(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if err := s.client.Del(ctx, typingKey(roomID, userID)).Err(); err != nil {
		return err
	}
	s.publish(ctx, typingChannel(roomID), TypingEvent{
		Kind:      EventDelete,
		Indicator: domain.TypingIndicator{RoomID: roomID, UserID: userID},
	})
	return nil
}

func (s *RedisStore) InsertReaction(ctx context.Context, fact domain.ReactionFact) error {
	b, err := json.Marshal(fact)
	if err != nil {
		return err
	}
	added, err := s.client.SAdd(ctx, reactionsKey(fact.MessageID), b).Result()
	if err != nil {
		return err
	}
	if added > 0 {
		m, err := s.getMessage(ctx, fact.MessageID)
		if err == nil {
			s.publish(ctx, reactionsChannel(m.RoomID), ReactionEvent{Kind: EventInsert, Fact: fact})
		}
	}
	return nil
}

func (s *RedisStore) DeleteReaction(ctx context.Context, fact domain.ReactionFact) error {
	// Members carry the reactor name, so remove by matching the triple.
	members, err := s.client.SMembers(ctx, reactionsKey(fact.MessageID)).Result()
	if err != nil {
		return err
	}
	removed := false
	for _, member := range members {
		var f domain.ReactionFact
		if err := json.Unmarshal([]byte(member), &f); err != nil {
			continue
		}
		if f.UserID == fact.UserID && f.Emoji == fact.Emoji {
			if err := s.client.SRem(ctx, reactionsKey(fact.MessageID), member).Err(); err != nil {
				return err
			}
			removed = true
		}
	}
	if removed {
		m, err := s.getMessage(ctx, fact.MessageID)
		if err == nil {
			s.publish(ctx, reactionsChannel(m.RoomID), ReactionEvent{Kind: EventDelete, Fact: fact})
		}
	}
	return nil
}

func (s *RedisStore) ReadReactions(ctx context.Context, messageIDs []domain.MessageID) ([]domain.ReactionFact, error) {
	var out []domain.ReactionFact
	for _, id := range messageIDs {
		members, err := s.client.SMembers(ctx, reactionsKey(id)).Result()
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			var f domain.ReactionFact
			if err := json.Unmarshal([]byte(member), &f); err != nil {
				continue
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *RedisStore) GetProfile(ctx context.Context, id domain.ProfileID) (domain.Profile, error) {
	raw, err := s.client.Get(ctx, profileKey(id)).Result()
	if err == redis.Nil {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *RedisStore) ListProfiles(ctx context.Context, roomID domain.RoomID) ([]domain.Profile, error) {
	ids, err := s.client.SMembers(ctx, roomProfilesKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProfile(ctx, domain.ProfileID(id))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisStore) PutProfile(ctx context.Context, p domain.Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, profileKey(p.ID), b, 0)
	pipe.SAdd(ctx, roomProfilesKey(p.RoomID), string(p.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	b, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return s.client.ZAdd(ctx, roomConversationsKey(conv.RoomID), redis.Z{
		Score:  float64(conv.CreatedAt.UnixMilli()),
		Member: b,
	}).Err()
}

func (s *RedisStore) ListConversations(ctx context.Context, roomID domain.RoomID) ([]domain.Conversation, error) {
	raws, err := s.client.ZRevRange(ctx, roomConversationsKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(raws))
	for _, raw := range raws {
		var c domain.Conversation
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }
func (s *RedisStore) Close() error                   { return s.client.Close() }

func (s *RedisStore) SubscribeMessages(ctx context.Context, roomID domain.RoomID) (<-chan MessageEvent, error) {
	return subscribe[MessageEvent](ctx, s.client, messagesChannel(roomID))
}

func (s *RedisStore) SubscribeTyping(ctx context.Context, roomID domain.RoomID) (<-chan TypingEvent, error) {
	return subscribe[TypingEvent](ctx, s.client, typingChannel(roomID))
}

func (s *RedisStore) SubscribeReactions(ctx context.Context, roomID domain.RoomID) (<-chan ReactionEvent, error) {
	return subscribe[ReactionEvent](ctx, s.client, reactionsChannel(roomID))
}

func subscribe[T any](ctx context.Context, client *redis.Client, channel string) (<-chan T, error) {
	ps := client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so a dead connection fails here,
	// not silently in the pump goroutine.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan T, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var ev T
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn().Err(err).Str("module", "store.redis").Str("channel", channel).Msg("bad event payload")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
