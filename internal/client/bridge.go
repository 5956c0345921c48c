package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/domain"
	"github.com/hearthhq/hearth/internal/store"
)

const unknownSender = "Unknown"

type BridgeOptions struct {
	HistoryLimit  int
	PollInterval  time.Duration
	TypingTTL     time.Duration
	RetryInterval time.Duration
}

// Bridge emulates the relay's contract on top of a store with native
// insert/subscribe primitives, for deployments without a relay process.
// It satisfies Transport.
type Bridge struct {
	store        store.RealtimeStore
	handlers     Handlers
	historyLimit int
	pollInterval time.Duration
	typingTTL    time.Duration
	retry        time.Duration

	mu          sync.Mutex
	identity    Identity
	parent      context.Context
	cancel      context.CancelFunc
	typingTimer *time.Timer
	torn        bool

	// Tracks the message subscription. While false the poller fetches
	// history as a fallback delivery path.
	subscribed atomic.Bool
}

func NewBridge(rs store.RealtimeStore, id Identity, h Handlers, opts BridgeOptions) *Bridge {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = store.TypingTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	return &Bridge{
		store:        rs,
		identity:     id,
		handlers:     h,
		historyLimit: opts.HistoryLimit,
		pollInterval: opts.PollInterval,
		typingTTL:    opts.TypingTTL,
		retry:        opts.RetryInterval,
	}
}

// Connect loads history, delivers it, then opens the change
// subscriptions for messages, typing indicators and reactions.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return nil
	}
	if b.cancel != nil {
		b.mu.Unlock()
		return nil
	}
	b.parent = ctx
	subCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	id := b.identity
	b.mu.Unlock()

	if err := b.deliverHistory(subCtx, id); err != nil {
		log.Error().Err(err).Str("module", "client.bridge").Msg("initial history load")
		// Subscriptions still start; the poller retries history.
	}

	go b.runMessages(subCtx, id)
	go b.runTyping(subCtx, id)
	go b.runReactions(subCtx, id)
	go b.poll(subCtx, id)

	b.emitState(StateOpen)
	return nil
}

// deliverHistory reads the bounded ascending window, hydrates sender
// display names by profile lookup, and hands the list to OnHistory.
func (b *Bridge) deliverHistory(ctx context.Context, id Identity) error {
	msgs, err := b.store.ReadMessages(ctx, id.RoomID, id.ConversationID, b.historyLimit)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].SenderName = b.senderName(ctx, msgs[i])
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	if b.handlers.OnHistory != nil {
		b.handlers.OnHistory(id.RoomID, msgs)
	}
	return nil
}

// senderName resolves the display name through the sender profile; a
// lookup failure degrades to a placeholder, never blocks delivery.
func (b *Bridge) senderName(ctx context.Context, m domain.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	if m.SenderProfileID != "" {
		if p, err := b.store.GetProfile(ctx, m.SenderProfileID); err == nil {
			return p.DisplayName
		}
	}
	return unknownSender
}

func (b *Bridge) runMessages(ctx context.Context, id Identity) {
	for {
		ch, err := b.store.SubscribeMessages(ctx, id.RoomID)
		if err != nil {
			b.subscribed.Store(false)
			if !sleepCtx(ctx, b.retry) {
				return
			}
			continue
		}
		b.subscribed.Store(true)
		for ev := range ch {
			msg := ev.Message
			msg.SenderName = b.senderName(ctx, msg)
			switch ev.Kind {
			case store.EventInsert:
				if b.handlers.OnMessage != nil {
					b.handlers.OnMessage(msg)
				}
			case store.EventUpdate:
				if b.handlers.OnMessageUpdate != nil {
					b.handlers.OnMessageUpdate(msg)
				}
			}
		}
		b.subscribed.Store(false)
		if ctx.Err() != nil {
			return
		}
	}
}

func (b *Bridge) runTyping(ctx context.Context, id Identity) {
	for {
		ch, err := b.store.SubscribeTyping(ctx, id.RoomID)
		if err != nil {
			if !sleepCtx(ctx, b.retry) {
				return
			}
			continue
		}
		for ev := range ch {
			ind := ev.Indicator
			if ev.Kind == store.EventDelete || ind.UserID == id.UserID {
				continue
			}
			if !ind.ExpiresAt.IsZero() && ind.Expired(time.Now()) {
				continue
			}
			name := ind.UserName
			if name == "" {
				name = unknownSender
			}
			if b.handlers.OnTyping != nil {
				b.handlers.OnTyping(ind.UserID, name)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// runReactions re-reads all facts for the touched message on every
// change: a full re-aggregation, not an incremental patch.
func (b *Bridge) runReactions(ctx context.Context, id Identity) {
	for {
		ch, err := b.store.SubscribeReactions(ctx, id.RoomID)
		if err != nil {
			if !sleepCtx(ctx, b.retry) {
				return
			}
			continue
		}
		for ev := range ch {
			facts, err := b.store.ReadReactions(ctx, []domain.MessageID{ev.Fact.MessageID})
			if err != nil {
				log.Warn().Err(err).Str("module", "client.bridge").Msg("reaction re-read")
				continue
			}
			if b.handlers.OnReactions != nil {
				b.handlers.OnReactions(ev.Fact.MessageID, facts)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// poll is the degraded delivery path: while the message subscription is
// down, refetch history every interval so messages still arrive.
func (b *Bridge) poll(ctx context.Context, id Identity) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.subscribed.Load() {
				continue
			}
			if err := b.deliverHistory(ctx, id); err != nil {
				log.Warn().Err(err).Str("module", "client.bridge").Msg("polling fallback")
			}
		}
	}
}

// SendMessage inserts the row, echoes the canonical copy locally (the
// subscription may deliver it again; the assembly dedupes), and clears
// this user's typing indicator. Insert failures are a logged no-op: no
// optimistic entry is shown.
func (b *Bridge) SendMessage(content string, parentID domain.MessageID) {
	b.mu.Lock()
	id := b.identity
	ctx := b.parent
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	msg, err := b.store.InsertMessage(ctx, store.InsertMessage{
		RoomID:          id.RoomID,
		ConversationID:  id.ConversationID,
		SenderID:        id.UserID,
		SenderName:      id.UserName,
		SenderProfileID: id.ProfileID,
		Content:         content,
		ParentID:        parentID,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "client.bridge").Msg("message insert")
		return
	}
	msg.SenderName = b.senderName(ctx, msg)
	if b.handlers.OnMessage != nil {
		b.handlers.OnMessage(msg)
	}

	b.stopTypingTimer()
	if err := b.store.DeleteTypingIndicator(ctx, id.RoomID, id.UserID); err != nil {
		log.Warn().Err(err).Str("module", "client.bridge").Msg("clear typing indicator")
	}
}

// SendTyping upserts a typing row expiring ~3s out and debounces the
// local cleanup: each call replaces the pending delete timer.
func (b *Bridge) SendTyping() {
	b.mu.Lock()
	id := b.identity
	ctx := b.parent
	ttl := b.typingTTL
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	err := b.store.UpsertTypingIndicator(ctx, domain.TypingIndicator{
		RoomID:    id.RoomID,
		UserID:    id.UserID,
		UserName:  id.UserName,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "client.bridge").Msg("typing upsert")
		return
	}

	b.mu.Lock()
	if b.typingTimer != nil {
		b.typingTimer.Stop()
	}
	b.typingTimer = time.AfterFunc(ttl, func() {
		if err := b.store.DeleteTypingIndicator(context.Background(), id.RoomID, id.UserID); err != nil {
			log.Warn().Err(err).Str("module", "client.bridge").Msg("typing expiry delete")
		}
	})
	b.mu.Unlock()
}

// AddReaction is the persistence half of the two-phase reaction flow;
// the tentative local vote and its rollback live in Assembly.
func (b *Bridge) AddReaction(messageID domain.MessageID, emoji string) error {
	b.mu.Lock()
	id := b.identity
	ctx := b.parent
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return b.store.InsertReaction(ctx, domain.ReactionFact{
		MessageID: messageID,
		UserID:    id.UserID,
		Emoji:     emoji,
		UserName:  id.UserName,
	})
}

func (b *Bridge) RemoveReaction(messageID domain.MessageID, emoji string) error {
	b.mu.Lock()
	id := b.identity
	ctx := b.parent
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return b.store.DeleteReaction(ctx, domain.ReactionFact{
		MessageID: messageID,
		UserID:    id.UserID,
		Emoji:     emoji,
	})
}

// SwitchRoom tears the subscriptions down and reopens them scoped to
// the new room.
func (b *Bridge) SwitchRoom(roomID domain.RoomID) {
	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.identity.RoomID = roomID
	parent := b.parent
	b.mu.Unlock()

	if parent != nil {
		_ = b.Connect(parent)
	}
}

func (b *Bridge) Teardown() {
	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return
	}
	b.torn = true
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.mu.Unlock()
	b.stopTypingTimer()
}

func (b *Bridge) stopTypingTimer() {
	b.mu.Lock()
	if b.typingTimer != nil {
		b.typingTimer.Stop()
		b.typingTimer = nil
	}
	b.mu.Unlock()
}

func (b *Bridge) emitState(s State) {
	if b.handlers.OnState != nil {
		b.handlers.OnState(s)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
