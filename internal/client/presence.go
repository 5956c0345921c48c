package client

import (
	"sync"
	"time"

	"github.com/hearthhq/hearth/internal/domain"
)

// TypingTracker keeps the set of remote users currently typing. Each
// observation arms a fresh expiry timer for that user; a repeat
// observation replaces the pending timer instead of stacking a second
// one, so a user stays listed for ttl past their latest signal.
type TypingTracker struct {
	self     domain.UserID
	ttl      time.Duration
	onChange func()

	mu      sync.Mutex
	entries map[domain.UserID]*typingEntry
	order   []domain.UserID
	stopped bool
}

type typingEntry struct {
	name  string
	timer *time.Timer
}

// NewTypingTracker ignores signals attributed to self. onChange fires
// after every mutation of the active set and may be nil.
func NewTypingTracker(self domain.UserID, ttl time.Duration, onChange func()) *TypingTracker {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &TypingTracker{
		self:     self,
		ttl:      ttl,
		onChange: onChange,
		entries:  make(map[domain.UserID]*typingEntry),
	}
}

// Observe records a typing signal from userID.
func (t *TypingTracker) Observe(userID domain.UserID, userName string) {
	if userID == t.self {
		return
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if e, ok := t.entries[userID]; ok {
		e.timer.Stop()
		e.name = userName
		e.timer = time.AfterFunc(t.ttl, func() { t.Clear(userID) })
		t.mu.Unlock()
		return
	}
	t.entries[userID] = &typingEntry{
		name:  userName,
		timer: time.AfterFunc(t.ttl, func() { t.Clear(userID) }),
	}
	t.order = append(t.order, userID)
	t.mu.Unlock()
	t.notify()
}

// Clear drops userID from the active set, either on expiry or because
// a message from them arrived.
func (t *TypingTracker) Clear(userID domain.UserID) {
	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(t.entries, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	t.notify()
}

// ActiveNames returns the display names of users currently typing, in
// first-observed order.
func (t *TypingTracker) ActiveNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.order))
	for _, id := range t.order {
		names = append(names, t.entries[id].name)
	}
	return names
}

// Stop cancels all pending timers. The tracker accepts no further
// observations.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
	t.order = nil
}

func (t *TypingTracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
