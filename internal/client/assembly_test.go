package client

import (
	"errors"
	"testing"
	"time"

	"github.com/hearthhq/hearth/internal/domain"
)

func msg(id domain.MessageID, content string, profile domain.ProfileID) domain.Message {
	return domain.Message{
		ID:              id,
		Content:         content,
		SenderProfileID: profile,
		CreatedAt:       time.Now(),
	}
}

func TestAssemblyIngestDedupes(t *testing.T) {
	a := NewAssembly("u1")
	m := msg("01A", "hello", "p2")

	if !a.Ingest(m) {
		t.Fatal("first ingest rejected")
	}
	if a.Ingest(m) {
		t.Fatal("duplicate ingest accepted")
	}
	if got := a.Messages(""); len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
}

func TestAssemblyOwnershipFollowsPersona(t *testing.T) {
	a := NewAssembly("u1")
	a.SetPersona("p-me")
	a.Ingest(msg("01A", "mine", "p-me"))
	a.Ingest(msg("01B", "theirs", "p-other"))
	a.Ingest(msg("01C", "anonymous", ""))

	views := a.Messages("")
	if !views[0].IsOwn || views[1].IsOwn || views[2].IsOwn {
		t.Fatalf("ownership = %v %v %v", views[0].IsOwn, views[1].IsOwn, views[2].IsOwn)
	}

	// Without a persona nothing is own, even matching rows.
	b := NewAssembly("u1")
	b.Ingest(msg("01A", "x", ""))
	if b.Messages("")[0].IsOwn {
		t.Fatal("personaless assembly claimed ownership")
	}
}

func TestAssemblyReadCursor(t *testing.T) {
	a := NewAssembly("u1")
	a.SetPersona("p-me")
	a.Ingest(msg("01A", "first", "p-other"))
	a.Ingest(msg("01B", "second", "p-other"))
	a.Ingest(msg("01C", "third", "p-me"))

	if got := a.UnreadCount(); got != 2 {
		t.Fatalf("unread = %d, want 2 (own messages never count)", got)
	}

	a.MarkRead("01A")
	views := a.Messages("")
	if !views[0].IsRead || views[1].IsRead {
		t.Fatalf("read flags = %v %v", views[0].IsRead, views[1].IsRead)
	}
	if got := a.UnreadCount(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	// The cursor never moves backwards.
	a.MarkRead("01C")
	a.MarkRead("01A")
	if got := a.UnreadCount(); got != 0 {
		t.Fatalf("unread = %d after full read", got)
	}
}

func TestAssemblyParentResolution(t *testing.T) {
	a := NewAssembly("u1")
	parent := msg("01A", "original", "p2")
	a.Ingest(parent)
	reply := msg("01B", "reply", "p3")
	reply.ParentID = "01A"
	a.Ingest(reply)
	orphan := msg("01C", "reply to long ago", "p3")
	orphan.ParentID = "00Z-outside-window"
	a.Ingest(orphan)

	views := a.Messages("")
	if views[1].Parent == nil || views[1].Parent.Content != "original" {
		t.Fatalf("parent = %+v", views[1].Parent)
	}
	if views[2].Parent != nil {
		t.Fatal("orphan resolved a parent outside the window")
	}
}

func TestAssemblyApplyUpdate(t *testing.T) {
	a := NewAssembly("u1")
	a.Ingest(msg("01A", "tpyo", "p2"))
	a.SetReactions("01A", []domain.ReactionFact{{MessageID: "01A", UserID: "u1", Emoji: "x"}})

	edited := msg("01A", "typo", "p2")
	edited.IsEdited = true
	if !a.ApplyUpdate(edited) {
		t.Fatal("update of known message rejected")
	}
	v := a.Messages("")[0]
	if v.Content != "typo" || !v.IsEdited {
		t.Fatalf("view = %+v", v)
	}
	// An edit must not wipe the reaction aggregate.
	if len(v.Reactions) != 1 {
		t.Fatalf("reactions = %v lost on update", v.Reactions)
	}

	if a.ApplyUpdate(msg("zzz", "ghost", "")) {
		t.Fatal("update of unknown message accepted")
	}
}

func TestAssemblyReactionsReaggregate(t *testing.T) {
	a := NewAssembly("u1")
	a.Ingest(msg("01A", "nice", "p2"))

	a.SetReactions("01A", []domain.ReactionFact{
		{MessageID: "01A", UserID: "u1", Emoji: "a", UserName: "alice"},
		{MessageID: "01A", UserID: "u2", Emoji: "a", UserName: "bob"},
		{MessageID: "01A", UserID: "u2", Emoji: "a", UserName: "bob"},
		{MessageID: "01A", UserID: "u2", Emoji: "b", UserName: "bob"},
	})
	r := a.Messages("")[0].Reactions
	if r["a"].Count != 2 || !r["a"].Reacted {
		t.Fatalf("a = %+v", r["a"])
	}
	if r["b"].Count != 1 || r["b"].Reacted {
		t.Fatalf("b = %+v", r["b"])
	}

	// The full fact list replaces the previous aggregate.
	a.SetReactions("01A", []domain.ReactionFact{
		{MessageID: "01A", UserID: "u2", Emoji: "b"},
	})
	r = a.Messages("")[0].Reactions
	if _, ok := r["a"]; ok {
		t.Fatal("stale emoji survived re-aggregation")
	}
}

func TestAssemblyReactionTwoPhase(t *testing.T) {
	a := NewAssembly("u1")
	a.Ingest(msg("01A", "nice", "p2"))
	boom := func() error { return errors.New("store down") }

	// Failed add reverts count and the viewer flag.
	if err := a.AddReaction("01A", "x", "alice", boom); err == nil {
		t.Fatal("persist failure not surfaced")
	}
	if r := a.Messages("")[0].Reactions; len(r) != 0 {
		t.Fatalf("reactions = %v after rolled-back add", r)
	}

	// Successful add sticks until the authoritative aggregate arrives.
	if err := a.AddReaction("01A", "x", "alice", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	r := a.Messages("")[0].Reactions
	if r["x"].Count != 1 || !r["x"].Reacted {
		t.Fatalf("x = %+v after add", r["x"])
	}

	// Failed remove restores the vote.
	if err := a.RemoveReaction("01A", "x", "alice", boom); err == nil {
		t.Fatal("persist failure not surfaced")
	}
	r = a.Messages("")[0].Reactions
	if r["x"].Count != 1 || !r["x"].Reacted {
		t.Fatalf("x = %+v after rolled-back remove", r["x"])
	}

	// Successful remove clears the vote.
	if err := a.RemoveReaction("01A", "x", "alice", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if r := a.Messages("")[0].Reactions; len(r) != 0 {
		t.Fatalf("reactions = %v after remove", r)
	}
}

func TestAssemblyReactionRollbackPreservesOthersVotes(t *testing.T) {
	a := NewAssembly("u1")
	a.Ingest(msg("01A", "nice", "p2"))
	a.SetReactions("01A", []domain.ReactionFact{
		{MessageID: "01A", UserID: "u1", Emoji: "x", UserName: "alice"},
		{MessageID: "01A", UserID: "u2", Emoji: "x", UserName: "bob"},
	})

	// The viewer already voted: a redundant add changes nothing, so its
	// failure must not strip the existing vote.
	if err := a.AddReaction("01A", "x", "alice", func() error { return errors.New("down") }); err == nil {
		t.Fatal("persist failure not surfaced")
	}
	r := a.Messages("")[0].Reactions
	if r["x"].Count != 2 || !r["x"].Reacted {
		t.Fatalf("x = %+v, pre-existing vote lost", r["x"])
	}

	// Removing the viewer's vote leaves bob's intact.
	if err := a.RemoveReaction("01A", "x", "alice", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	r = a.Messages("")[0].Reactions
	if r["x"].Count != 1 || r["x"].Reacted {
		t.Fatalf("x = %+v after own remove", r["x"])
	}
}

func TestAssemblyConversationFilter(t *testing.T) {
	a := NewAssembly("u1")
	main := msg("01A", "in main", "")
	a.Ingest(main)
	thread := msg("01B", "in thread", "")
	thread.ConversationID = "t1"
	a.Ingest(thread)

	if got := a.Messages("t1"); len(got) != 1 || got[0].Content != "in thread" {
		t.Fatalf("thread view = %+v", got)
	}
	if got := a.Messages(""); len(got) != 2 {
		t.Fatalf("unfiltered view = %d rows", len(got))
	}
}

func TestAssemblySetHistoryReplaces(t *testing.T) {
	a := NewAssembly("u1")
	a.Ingest(msg("01A", "stale", ""))
	a.SetHistory([]domain.Message{msg("02A", "fresh", "")})

	got := a.Messages("")
	if len(got) != 1 || got[0].Content != "fresh" {
		t.Fatalf("view = %+v", got)
	}
	// The replaced row is ingestable again; the fresh one is not.
	if !a.Ingest(msg("01A", "stale", "")) {
		t.Fatal("row dropped by SetHistory still counted as present")
	}
	if a.Ingest(msg("02A", "fresh", "")) {
		t.Fatal("history row duplicated")
	}
}

func TestAssemblySearch(t *testing.T) {
	a := NewAssembly("u1")
	a.Ingest(msg("01A", "Grocery run tomorrow", ""))
	deleted := msg("01B", "grocery secrets", "")
	deleted.IsDeleted = true
	a.Ingest(deleted)

	got := a.Search("grocery")
	if len(got) != 1 || got[0].ID != "01A" {
		t.Fatalf("search = %+v, tombstones must not match", got)
	}
}
