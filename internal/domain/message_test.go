package domain

import (
	"strings"
	"testing"
	"time"
)

func TestSummarizeReactionsDedupesPerUser(t *testing.T) {
	facts := []ReactionFact{
		{MessageID: "m1", UserID: "u1", Emoji: "a", UserName: "alice"},
		{MessageID: "m1", UserID: "u1", Emoji: "a", UserName: "alice"},
		{MessageID: "m1", UserID: "u2", Emoji: "a", UserName: "bob"},
		{MessageID: "m1", UserID: "u2", Emoji: "b"},
	}
	out := SummarizeReactions(facts, "u2")

	if out["a"].Count != 2 {
		t.Fatalf("a.Count = %d, want 2", out["a"].Count)
	}
	if !out["a"].Reacted || !out["b"].Reacted {
		t.Fatal("viewer's own facts not flagged")
	}
	if len(out["a"].Reactors) != 2 {
		t.Fatalf("reactors = %v", out["a"].Reactors)
	}
	if SummarizeReactions(nil, "u1") != nil {
		t.Fatal("empty facts should aggregate to nil")
	}
}

func TestTypingIndicatorExpiry(t *testing.T) {
	now := time.Now()
	ind := TypingIndicator{ExpiresAt: now.Add(3 * time.Second)}
	if ind.Expired(now) {
		t.Fatal("fresh indicator reported expired")
	}
	if !ind.Expired(now.Add(4 * time.Second)) {
		t.Fatal("stale indicator reported fresh")
	}
}

func TestNewProfileValidatesName(t *testing.T) {
	if _, err := NewProfile("u1", "r1", ""); err != ErrNameEmpty {
		t.Fatalf("err = %v, want ErrNameEmpty", err)
	}
	if _, err := NewProfile("u1", "r1", strings.Repeat("x", MaxDisplayNameLen+1)); err != ErrNameTooLong {
		t.Fatalf("err = %v, want ErrNameTooLong", err)
	}
	p, err := NewProfile("u1", "r1", "Mum")
	if err != nil || p.ID == "" || p.RoomID != "r1" {
		t.Fatalf("profile = %+v, %v", p, err)
	}
}
