package store

import (
	"context"
	"testing"
	"time"

	"github.com/hearthhq/hearth/internal/domain"
)

func insertN(t *testing.T, s *MemoryStore, room domain.RoomID, contents ...string) []domain.Message {
	t.Helper()
	out := make([]domain.Message, 0, len(contents))
	for _, c := range contents {
		m, err := s.InsertMessage(context.Background(), InsertMessage{
			RoomID:   room,
			SenderID: "u1",
			Content:  c,
		})
		if err != nil {
			t.Fatalf("insert %q: %v", c, err)
		}
		out = append(out, m)
	}
	return out
}

func TestMemoryInsertAssignsOrderedIDs(t *testing.T) {
	s := NewMemoryStore()
	msgs := insertN(t, s, "kitchen", "a", "b", "c")
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("ids out of order: %s then %s", msgs[i-1].ID, msgs[i].ID)
		}
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Fatal("created timestamp not set")
	}
}

func TestMemoryInsertRejectsEmptyContent(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.InsertMessage(context.Background(), InsertMessage{RoomID: "r", Content: "  "}); err != ErrEmptyContent {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
}

func TestMemoryReadWindowNewestAscending(t *testing.T) {
	s := NewMemoryStore()
	insertN(t, s, "kitchen", "1", "2", "3", "4", "5")

	got, err := s.ReadMessages(context.Background(), "kitchen", "", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("got[%d] = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestMemoryReadFiltersByConversation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertMessage(ctx, InsertMessage{RoomID: "r", Content: "main"})
	s.InsertMessage(ctx, InsertMessage{RoomID: "r", ConversationID: "thread", Content: "aside"})

	got, err := s.ReadMessages(ctx, "r", "thread", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "aside" {
		t.Fatalf("got %+v, want the one thread message", got)
	}
}

func TestMemoryDeleteLeavesTombstone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msgs := insertN(t, s, "r", "secret")

	if err := s.DeleteMessage(ctx, "r", msgs[0].ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ReadMessages(ctx, "r", "", 10)
	if len(got) != 1 {
		t.Fatalf("len = %d, deleted row must remain", len(got))
	}
	if !got[0].IsDeleted || got[0].Content != domain.DeletedPlaceholder {
		t.Fatalf("tombstone = %+v", got[0])
	}

	if err := s.DeleteMessage(ctx, "r", "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateMarksEdited(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msgs := insertN(t, s, "r", "tpyo")

	updated, err := s.UpdateMessage(ctx, "r", msgs[0].ID, "typo")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Content != "typo" || !updated.IsEdited || updated.EditedAt == nil {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := s.UpdateMessage(ctx, "r", msgs[0].ID, " "); err != ErrEmptyContent {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
}

func TestMemoryPinToggles(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msgs := insertN(t, s, "r", "keep this")

	pinned, err := s.PinMessage(ctx, "r", msgs[0].ID)
	if err != nil || !pinned {
		t.Fatalf("first pin = %v, %v", pinned, err)
	}
	pinned, err = s.PinMessage(ctx, "r", msgs[0].ID)
	if err != nil || pinned {
		t.Fatalf("second pin = %v, %v, want unpinned", pinned, err)
	}
}

func TestMemoryReactionRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msgs := insertN(t, s, "r", "nice")
	fact := domain.ReactionFact{MessageID: msgs[0].ID, UserID: "u2", Emoji: "❤️"}

	if err := s.InsertReaction(ctx, fact); err != nil {
		t.Fatal(err)
	}
	// Duplicate facts collapse.
	if err := s.InsertReaction(ctx, fact); err != nil {
		t.Fatal(err)
	}
	facts, _ := s.ReadReactions(ctx, []domain.MessageID{msgs[0].ID})
	if len(facts) != 1 {
		t.Fatalf("facts = %d, want 1", len(facts))
	}

	if err := s.DeleteReaction(ctx, fact); err != nil {
		t.Fatal(err)
	}
	facts, _ = s.ReadReactions(ctx, []domain.MessageID{msgs[0].ID})
	if len(facts) != 0 {
		t.Fatalf("facts = %d after delete, want 0", len(facts))
	}
}

func TestMemorySubscribeMessagesDeliversInserts(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.SubscribeMessages(ctx, "kitchen")
	if err != nil {
		t.Fatal(err)
	}
	insertN(t, s, "kitchen", "hi")
	insertN(t, s, "garage", "other room")

	select {
	case ev := <-ch:
		if ev.Kind != EventInsert || ev.Message.Content != "hi" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-ch:
		t.Fatalf("cross-room event leaked: %+v", ev)
	default:
	}
}

func TestMemorySubscribeClosesOnCancel(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := s.SubscribeMessages(ctx, "kitchen")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				// Publishing after close must not panic.
				insertN(t, s, "kitchen", "late")
				return
			}
		case <-deadline:
			t.Fatal("channel never closed")
		}
	}
}

func TestMemoryTypingUpsertAndDeleteNotify(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.SubscribeTyping(ctx, "kitchen")
	if err != nil {
		t.Fatal(err)
	}
	ind := domain.TypingIndicator{RoomID: "kitchen", UserID: "u1", UserName: "alice", ExpiresAt: time.Now().Add(TypingTTL)}
	if err := s.UpsertTypingIndicator(ctx, ind); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTypingIndicator(ctx, "kitchen", "u1"); err != nil {
		t.Fatal(err)
	}
	// Deleting an absent row is a no-op, not an error.
	if err := s.DeleteTypingIndicator(ctx, "kitchen", "ghost"); err != nil {
		t.Fatal(err)
	}

	wantKinds := []string{EventInsert, EventDelete}
	for _, want := range wantKinds {
		select {
		case ev := <-ch:
			if ev.Kind != want {
				t.Fatalf("kind = %s, want %s", ev.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", want)
		}
	}
}

func TestMemoryProfiles(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	p := domain.Profile{ID: "p1", RoomID: "kitchen", DisplayName: "Mum"}
	if err := s.PutProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetProfile(ctx, "p1")
	if err != nil || got.DisplayName != "Mum" {
		t.Fatalf("profile = %+v, %v", got, err)
	}
	list, _ := s.ListProfiles(ctx, "kitchen")
	if len(list) != 1 {
		t.Fatalf("profiles = %d, want 1", len(list))
	}
}
