package app

import (
	"context"
	"testing"

	"github.com/hearthhq/hearth/internal/core"
	"github.com/hearthhq/hearth/internal/domain"
)

func TestRegistryBindingLifecycle(t *testing.T) {
	reg := NewRegistry()
	peer := &fakePeer{}
	reg.Bind("s1", peer, nil)

	if _, _, ok := reg.BindingOf("s1"); ok {
		t.Fatal("fresh session should have no room binding")
	}
	if _, ok := reg.ConnOf("s1"); !ok {
		t.Fatal("fresh session should still expose its connection")
	}

	if !reg.UpdateBinding("s1", core.Binding{RoomID: "kitchen", UserID: "u1", UserName: "alice"}) {
		t.Fatal("binding a live session failed")
	}
	b, conn, ok := reg.BindingOf("s1")
	if !ok || b.RoomID != "kitchen" || conn != peer {
		t.Fatalf("binding = %+v ok=%v", b, ok)
	}

	// Last bind wins.
	reg.UpdateBinding("s1", core.Binding{RoomID: "garage", UserID: "u1", UserName: "alice"})
	b, _, _ = reg.BindingOf("s1")
	if b.RoomID != "garage" {
		t.Fatalf("room = %q, want garage", b.RoomID)
	}

	reg.Unbind("s1", nil)
	if reg.Count() != 0 {
		t.Fatalf("count = %d after unbind", reg.Count())
	}
	if reg.UpdateBinding("s1", core.Binding{RoomID: "kitchen"}) {
		t.Fatal("binding an unbound session should fail")
	}
}

func TestRegistryMembersOfRoom(t *testing.T) {
	reg := NewRegistry()
	for _, s := range []struct {
		sid  core.SessionID
		room domain.RoomID
	}{
		{"s1", "kitchen"},
		{"s2", "kitchen"},
		{"s3", "garage"},
	} {
		reg.Bind(s.sid, &fakePeer{}, nil)
		reg.UpdateBinding(s.sid, core.Binding{RoomID: s.room})
	}

	if got := len(reg.MembersOfRoom("kitchen")); got != 2 {
		t.Fatalf("kitchen members = %d, want 2", got)
	}
	if got := len(reg.MembersOfRoom("attic")); got != 0 {
		t.Fatalf("attic members = %d, want 0", got)
	}
}

func TestRegistryUnbindInvokesCancel(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	peer := &fakePeer{}
	reg.Bind("s1", peer, cancel)

	reg.Unbind("s1", peer)
	select {
	case <-ctx.Done():
	default:
		t.Fatal("stored cancel was not invoked on unbind")
	}
}

func TestRegistryBindDisplacesStaleSession(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	stale := &fakePeer{}
	reg.Bind("s1", stale, cancel)

	fresh := &fakePeer{}
	reg.Bind("s1", fresh, nil)

	if !stale.isClosed() {
		t.Fatal("displaced endpoint not closed")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("displaced session's cancel not invoked")
	}
	if conn, ok := reg.ConnOf("s1"); !ok || conn != fresh {
		t.Fatal("entry does not point at the replacement")
	}
	if reg.Count() != 1 {
		t.Fatalf("count = %d, want 1", reg.Count())
	}
}

func TestRegistryUnbindIgnoresStaleConn(t *testing.T) {
	reg := NewRegistry()
	stale := &fakePeer{}
	reg.Bind("s1", stale, nil)
	fresh := &fakePeer{}
	reg.Bind("s1", fresh, nil)

	// The stale socket's deferred cleanup fires after the rebind.
	reg.Unbind("s1", stale)
	if reg.Count() != 1 {
		t.Fatal("stale unbind removed the replacement")
	}

	reg.Unbind("s1", fresh)
	if reg.Count() != 0 {
		t.Fatal("owner unbind did not remove the entry")
	}
}
