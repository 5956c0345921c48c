package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/hearthhq/hearth/internal/domain"
)

// SQLiteStore persists chat state in an embedded SQLite database. It is
// the durable backend of the socket relay; it has no native change feed,
// so it implements Store only.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and creates the schema. If dbPath is
// empty, defaults to "./data/hearth.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/hearth.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		conversation_id TEXT DEFAULT '',
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		sender_profile_id TEXT DEFAULT '',
		content TEXT NOT NULL,
		parent_id TEXT DEFAULT '',
		is_edited INTEGER DEFAULT 0,
		edited_at INTEGER,
		is_deleted INTEGER DEFAULT 0,
		is_pinned INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id);

	CREATE TABLE IF NOT EXISTS typing_indicators (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS reactions (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		user_name TEXT DEFAULT '',
		PRIMARY KEY (message_id, user_id, emoji)
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		avatar TEXT DEFAULT '',
		online INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_by TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func (s *SQLiteStore) InsertMessage(ctx context.Context, in InsertMessage) (domain.Message, error) {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, conversation_id, sender_id, sender_name, sender_profile_id, content, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.RoomID), string(msg.ConversationID), string(msg.SenderID),
		msg.SenderName, string(msg.SenderProfileID), msg.Content, string(msg.ParentID), toMillis(msg.CreatedAt))
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *SQLiteStore) ReadMessages(ctx context.Context, roomID domain.RoomID, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	// ULIDs sort with creation time, so ordering by id descending picks
	// the newest window; the slice is reversed to ascending below.
	query := `
		SELECT id, room_id, conversation_id, sender_id, sender_name, sender_profile_id,
		       content, parent_id, is_edited, edited_at, is_deleted, is_pinned, created_at
		FROM messages WHERE room_id = ?`
	args := []any{string(roomID)}
	if conversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, string(conversationID))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (domain.Message, error) {
	var (
		m        domain.Message
		id       string
		roomID   string
		convID   string
		senderID string
		profID   string
		parentID string
		editedAt sql.NullInt64
		created  int64
	)
	err := r.Scan(&id, &roomID, &convID, &senderID, &m.SenderName, &profID,
		&m.Content, &parentID, &m.IsEdited, &editedAt, &m.IsDeleted, &m.IsPinned, &created)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = domain.MessageID(id)
	m.RoomID = domain.RoomID(roomID)
	m.ConversationID = domain.ConversationID(convID)
	m.SenderID = domain.UserID(senderID)
	m.SenderProfileID = domain.ProfileID(profID)
	m.ParentID = domain.MessageID(parentID)
	m.CreatedAt = fromMillis(created)
	if editedAt.Valid {
		t := fromMillis(editedAt.Int64)
		m.EditedAt = &t
	}
	return m, nil
}

func (s *SQLiteStore) getMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) (domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, conversation_id, sender_id, sender_name, sender_profile_id,
		       content, parent_id, is_edited, edited_at, is_deleted, is_pinned, created_at
		FROM messages WHERE room_id = ? AND id = ?`, string(roomID), string(id))
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) UpdateMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrEmptyContent
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, is_edited = 1, edited_at = ?
		WHERE room_id = ? AND id = ?`,
		content, toMillis(time.Now()), string(roomID), string(id))
	if err != nil {
		return domain.Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Message{}, ErrNotFound
	}
	return s.getMessage(ctx, roomID, id)
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1, content = ?
		WHERE room_id = ? AND id = ?`,
		domain.DeletedPlaceholder, string(roomID), string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PinMessage(ctx context.Context, roomID domain.RoomID, id domain.MessageID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_pinned = NOT is_pinned
		WHERE room_id = ? AND id = ?`, string(roomID), string(id))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}
	m, err := s.getMessage(ctx, roomID, id)
	if err != nil {
		return false, err
	}
	return m.IsPinned, nil
}

func (s *SQLiteStore) UpsertTypingIndicator(ctx context.Context, ind domain.TypingIndicator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO typing_indicators (room_id, user_id, user_name, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET user_name = excluded.user_name, expires_at = excluded.expires_at`,
		string(ind.RoomID), string(ind.UserID), ind.UserName, toMillis(ind.ExpiresAt))
	return err
}

func (s *SQLiteStore) DeleteTypingIndicator(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM typing_indicators WHERE room_id = ? AND user_id = ?`,
		string(roomID), string(userID))
	return err
}

func (s *SQLiteStore) InsertReaction(ctx context.Context, fact domain.ReactionFact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, user_id, emoji, user_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, user_id, emoji) DO NOTHING`,
		string(fact.MessageID), string(fact.UserID), fact.Emoji, fact.UserName)
	return err
}

func (s *SQLiteStore) DeleteReaction(ctx context.Context, fact domain.ReactionFact) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		string(fact.MessageID), string(fact.UserID), fact.Emoji)
	return err
}

func (s *SQLiteStore) ReadReactions(ctx context.Context, messageIDs []domain.MessageID) ([]domain.ReactionFact, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(messageIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = string(id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, user_id, emoji, user_name FROM reactions
		WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReactionFact
	for rows.Next() {
		var f domain.ReactionFact
		var msgID, userID string
		if err := rows.Scan(&msgID, &userID, &f.Emoji, &f.UserName); err != nil {
			return nil, err
		}
		f.MessageID = domain.MessageID(msgID)
		f.UserID = domain.UserID(userID)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id domain.ProfileID) (domain.Profile, error) {
	var p domain.Profile
	var pid, userID, roomID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, room_id, display_name, avatar, online FROM profiles WHERE id = ?`,
		string(id)).Scan(&pid, &userID, &roomID, &p.DisplayName, &p.Avatar, &p.Online)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	p.ID = domain.ProfileID(pid)
	p.UserID = domain.UserID(userID)
	p.RoomID = domain.RoomID(roomID)
	return p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, roomID domain.RoomID) ([]domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, room_id, display_name, avatar, online FROM profiles
		WHERE room_id = ? ORDER BY display_name`, string(roomID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		var p domain.Profile
		var pid, userID, rid string
		if err := rows.Scan(&pid, &userID, &rid, &p.DisplayName, &p.Avatar, &p.Online); err != nil {
			return nil, err
		}
		p.ID = domain.ProfileID(pid)
		p.UserID = domain.UserID(userID)
		p.RoomID = domain.RoomID(rid)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutProfile(ctx context.Context, p domain.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, user_id, room_id, display_name, avatar, online)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name,
			avatar = excluded.avatar, online = excluded.online`,
		string(p.ID), string(p.UserID), string(p.RoomID), p.DisplayName, p.Avatar, p.Online)
	return err
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, room_id, title, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(conv.ID), string(conv.RoomID), conv.Title, string(conv.CreatedBy), toMillis(conv.CreatedAt))
	return err
}

func (s *SQLiteStore) ListConversations(ctx context.Context, roomID domain.RoomID) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, title, created_by, created_at FROM conversations
		WHERE room_id = ? ORDER BY created_at DESC`, string(roomID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var id, rid, createdBy string
		var created int64
		if err := rows.Scan(&id, &rid, &c.Title, &createdBy, &created); err != nil {
			return nil, err
		}
		c.ID = domain.ConversationID(id)
		c.RoomID = domain.RoomID(rid)
		c.CreatedBy = domain.ProfileID(createdBy)
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }
