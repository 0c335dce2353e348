// Package store persists conversations and messages in SQLite. All
// mutating calls happen on the consumer goroutine, so the store carries no
// locking of its own.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/batalabs/chatd/internal/config"
	"github.com/batalabs/chatd/internal/domain"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database for conversation and message persistence.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database in the chatd data directory.
func OpenStore() (*Store, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	dsn := filepath.Join(dir, "chatd.db")

	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewFromDB creates a Store from an existing *sql.DB and runs migrations.
// This is useful for testing with an in-memory database.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT 'New conversation',
			kind TEXT NOT NULL DEFAULT 'chat',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			sequence INTEGER NOT NULL
		);
	`); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversations_kind ON conversations(kind, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sequence);
	`)
	return err
}

// ---------------------------------------------------------------------------
// Conversation CRUD
// ---------------------------------------------------------------------------

// CreateConversation inserts a new conversation of the given kind.
func (s *Store) CreateConversation(kind domain.ConversationKind, title string) (*domain.Conversation, error) {
	if title == "" {
		title = "New conversation"
	}
	conv := &domain.Conversation{
		ID:        domain.NewUUID(),
		Title:     title,
		Kind:      kind,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, title, kind, created_at, updated_at)
		 VALUES (?, ?, ?, datetime(?), datetime(?))`,
		conv.ID, conv.Title, string(conv.Kind),
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID, without its messages.
func (s *Store) GetConversation(id string) (*domain.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, title, kind, created_at, updated_at FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// ListConversations returns the most recently updated conversations of a
// kind, up to limit.
func (s *Store) ListConversations(kind domain.ConversationKind, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, title, kind, created_at, updated_at FROM conversations
		 WHERE kind = ? ORDER BY updated_at DESC LIMIT ?`, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var kindStr, createdStr, updatedStr string
		if err := rows.Scan(&c.ID, &c.Title, &kindStr, &createdStr, &updatedStr); err != nil {
			return nil, err
		}
		c.Kind = domain.ConversationKind(kindStr)
		c.CreatedAt = parseStoredTime(createdStr)
		c.UpdatedAt = parseStoredTime(updatedStr)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation and its messages (via ON
// DELETE CASCADE).
func (s *Store) DeleteConversation(id string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// RenameConversation sets the title of a conversation.
func (s *Store) RenameConversation(id, title string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET title = ?, updated_at = datetime('now') WHERE id = ?`,
		title, id)
	return err
}

// ConversationExists reports whether a conversation row is present.
func (s *Store) ConversationExists(id string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	return err == nil
}

// ---------------------------------------------------------------------------
// Message CRUD
// ---------------------------------------------------------------------------

// AppendMessage stores a message at the end of a conversation.
func (s *Store) AppendMessage(conversationID string, m domain.Message) error {
	var seq int
	row := s.db.QueryRow(
		`SELECT COALESCE(MAX(sequence), 0) FROM messages WHERE conversation_id = ?`, conversationID)
	if err := row.Scan(&seq); err != nil {
		return err
	}
	seq++

	metaJSON, err := json.Marshal(m.Meta)
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, meta, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		domain.NewUUID(), conversationID, m.Role, m.Content, string(metaJSON), seq)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE conversations SET updated_at = datetime('now') WHERE id = ?`, conversationID)
	return err
}

// GetMessages returns all messages for a conversation, ordered by
// sequence. Rows with empty content are dropped; messages persisted
// without token accounting get an estimated count.
func (s *Store) GetMessages(conversationID string) ([]domain.Message, error) {
	rows, err := s.db.Query(
		`SELECT role, content, meta FROM messages WHERE conversation_id = ? ORDER BY sequence`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var metaJSON string
		if err := rows.Scan(&m.Role, &m.Content, &metaJSON); err != nil {
			return nil, err
		}
		if m.Content == "" {
			continue
		}
		if err := json.Unmarshal([]byte(metaJSON), &m.Meta); err != nil {
			fmt.Fprintf(os.Stderr, "store: parse message meta: %v\n", err)
			m.Meta = domain.MessageMeta{}
		}
		domain.NormalizeMeta(&m)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LoadConversation retrieves a conversation with its full message history.
func (s *Store) LoadConversation(id string) (*domain.Conversation, error) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.GetMessages(id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// ---------------------------------------------------------------------------
// Scan helpers
// ---------------------------------------------------------------------------

func scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	var kindStr, createdStr, updatedStr string
	if err := row.Scan(&c.ID, &c.Title, &kindStr, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	c.Kind = domain.ConversationKind(kindStr)
	c.CreatedAt = parseStoredTime(createdStr)
	c.UpdatedAt = parseStoredTime(updatedStr)
	return &c, nil
}

// parseStoredTime handles both SQLite datetime('now') output and RFC3339
// timestamps written at insert.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
