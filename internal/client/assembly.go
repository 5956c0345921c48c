package client

import (
	"sort"
	"strings"
	"sync"

	"github.com/hearthhq/hearth/internal/domain"
)

// MessageView is a message decorated with per-viewer facts the raw row
// does not carry.
type MessageView struct {
	domain.Message
	IsOwn  bool
	IsRead bool
	// Parent is resolved when the referenced message is inside the
	// loaded window, nil otherwise.
	Parent *domain.Message
}

// Assembly merges the event streams of a room into one consistent,
// render-ready message list. It deduplicates the local echo against the
// transport delivery and derives ownership and read state per viewer.
type Assembly struct {
	mu       sync.Mutex
	persona  domain.ProfileID
	viewer   domain.UserID
	byID     map[domain.MessageID]int
	messages []domain.Message
	lastRead domain.MessageID
}

func NewAssembly(viewer domain.UserID) *Assembly {
	return &Assembly{
		viewer: viewer,
		byID:   make(map[domain.MessageID]int),
	}
}

// SetPersona sets the profile the viewer is speaking as. Ownership is
// judged against the persona, not the account, so two personas of one
// account render each other's messages as foreign.
func (a *Assembly) SetPersona(id domain.ProfileID) {
	a.mu.Lock()
	a.persona = id
	a.mu.Unlock()
}

// SetHistory replaces the loaded window wholesale.
func (a *Assembly) SetHistory(msgs []domain.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages[:0], msgs...)
	a.reindex()
}

// Ingest appends a message unless a row with the same ID is already
// present. Returns true when the list changed. This is where the local
// echo and the broadcast copy of the same message collapse into one.
func (a *Assembly) Ingest(msg domain.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byID[msg.ID]; ok {
		return false
	}
	a.byID[msg.ID] = len(a.messages)
	a.messages = append(a.messages, msg)
	return true
}

// ApplyUpdate overwrites the stored row for an edited, deleted or
// pinned message. Unknown IDs are ignored.
func (a *Assembly) ApplyUpdate(msg domain.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.byID[msg.ID]
	if !ok {
		return false
	}
	// Reactions arrive on their own stream; keep the aggregate.
	msg.Reactions = a.messages[i].Reactions
	a.messages[i] = msg
	return true
}

// AddReaction applies the viewer's vote to the local aggregate first,
// then persists; a persist failure reverts the tentative vote. The
// authoritative aggregate arrives later through SetReactions and
// overwrites whichever state this left behind.
func (a *Assembly) AddReaction(id domain.MessageID, emoji, viewerName string, persist func() error) error {
	changed := a.setOwnReaction(id, emoji, viewerName, true)
	if persist == nil {
		return nil
	}
	if err := persist(); err != nil {
		if changed {
			a.setOwnReaction(id, emoji, viewerName, false)
		}
		return err
	}
	return nil
}

// RemoveReaction is the inverse two-phase operation: drop the vote
// locally, persist, restore on failure.
func (a *Assembly) RemoveReaction(id domain.MessageID, emoji, viewerName string, persist func() error) error {
	changed := a.setOwnReaction(id, emoji, viewerName, false)
	if persist == nil {
		return nil
	}
	if err := persist(); err != nil {
		if changed {
			a.setOwnReaction(id, emoji, viewerName, true)
		}
		return err
	}
	return nil
}

// setOwnReaction toggles the viewer's vote in one message's aggregate
// and reports whether anything changed, so a rollback only reverts a
// vote this call actually applied.
func (a *Assembly) setOwnReaction(id domain.MessageID, emoji, viewerName string, on bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.byID[id]
	if !ok {
		return false
	}
	m := &a.messages[i]
	s := m.Reactions[emoji]
	if on {
		if s.Reacted {
			return false
		}
		s.Count++
		s.Reacted = true
		if viewerName != "" {
			s.Reactors = append(s.Reactors, viewerName)
		}
		if m.Reactions == nil {
			m.Reactions = make(map[string]domain.ReactionSummary)
		}
		m.Reactions[emoji] = s
		return true
	}
	if !s.Reacted {
		return false
	}
	s.Count--
	s.Reacted = false
	for j, n := range s.Reactors {
		if n == viewerName {
			s.Reactors = append(s.Reactors[:j], s.Reactors[j+1:]...)
			break
		}
	}
	if s.Count <= 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = s
	}
	return true
}

// SetReactions replaces the aggregate of one message from the full fact
// list.
func (a *Assembly) SetReactions(id domain.MessageID, facts []domain.ReactionFact) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.byID[id]
	if !ok {
		return
	}
	a.messages[i].Reactions = domain.SummarizeReactions(facts, a.viewer)
}

// MarkRead advances the read cursor. IDs sort with creation time, so a
// single cursor splits the list into read and unread halves; the cursor
// never moves backwards.
func (a *Assembly) MarkRead(id domain.MessageID) {
	a.mu.Lock()
	if id > a.lastRead {
		a.lastRead = id
	}
	a.mu.Unlock()
}

// UnreadCount reports messages past the read cursor not sent by the
// viewer's persona.
func (a *Assembly) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, m := range a.messages {
		if m.ID > a.lastRead && !a.owns(m) {
			n++
		}
	}
	return n
}

// Messages returns the render-ready views, oldest first. A non-empty
// conversationID narrows the list to that thread.
func (a *Assembly) Messages(conversationID domain.ConversationID) []MessageView {
	a.mu.Lock()
	defer a.mu.Unlock()
	views := make([]MessageView, 0, len(a.messages))
	for _, m := range a.messages {
		if conversationID != "" && m.ConversationID != conversationID {
			continue
		}
		v := MessageView{
			Message: m,
			IsOwn:   a.owns(m),
			IsRead:  a.lastRead != "" && m.ID <= a.lastRead,
		}
		if m.ParentID != "" {
			if pi, ok := a.byID[m.ParentID]; ok {
				parent := a.messages[pi]
				v.Parent = &parent
			}
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// Search returns messages whose content contains the query, case
// insensitive. Tombstoned messages never match.
func (a *Assembly) Search(query string) []domain.Message {
	q := strings.ToLower(query)
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.Message
	for _, m := range a.messages {
		if m.IsDeleted {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
		}
	}
	return out
}

func (a *Assembly) owns(m domain.Message) bool {
	return a.persona != "" && m.SenderProfileID == a.persona
}

func (a *Assembly) reindex() {
	a.byID = make(map[domain.MessageID]int, len(a.messages))
	for i, m := range a.messages {
		a.byID[m.ID] = i
	}
}
