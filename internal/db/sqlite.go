package db

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/RichardoC/relaychat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    tokens INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS messages_by_conversation ON messages(conversation_id, id);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts4(
    content,
    tokenize=porter
);

-- Keep the full-text index in step with the messages table
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(docid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    DELETE FROM messages_fts WHERE docid = old.id;
END;`

var ErrNotFound = errors.New("not found")

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY between concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) CreateConversation(id, title string) (*models.Conversation, error) {
	query := `
        INSERT INTO conversations (id, title, created_at)
        VALUES (?, ?, ?)`

	conv := &models.Conversation{ID: id, Title: title, CreatedAt: now()}
	if _, err := db.db.Exec(query, conv.ID, conv.Title, conv.CreatedAt); err != nil {
		return nil, err
	}
	return conv, nil
}

func (db *Database) GetConversation(id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := db.db.QueryRow(`SELECT id, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (db *Database) SaveMessage(msg *models.StoredMessage) error {
	query := `
        INSERT INTO messages (conversation_id, role, content, tokens, created_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id`

	msg.CreatedAt = now()
	return db.db.QueryRow(query, msg.ConvID, string(msg.Role), msg.Content, msg.Tokens, msg.CreatedAt).
		Scan(&msg.ID)
}

// GetConversationHistory returns up to limit of the newest messages of a
// conversation, oldest first.
func (db *Database) GetConversationHistory(conversationID string, limit int) ([]models.StoredMessage, error) {
	query := `
        SELECT id, conversation_id, role, content, tokens, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY id DESC
        LIMIT ?`

	rows, err := db.db.Query(query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (db *Database) GetConversations() ([]models.Conversation, error) {
	query := `
        SELECT id, title, created_at
        FROM conversations
        ORDER BY created_at DESC, rowid DESC`

	rows, err := db.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// SearchMessages runs a full-text search over stored message content. The
// query is matched as a phrase so user input never hits FTS syntax.
func (db *Database) SearchMessages(query string, limit int) ([]models.StoredMessage, error) {
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`

	rows, err := db.db.Query(`
		SELECT m.id, m.conversation_id, m.role, m.content, m.tokens, m.created_at
		FROM messages m
		JOIN messages_fts fts ON m.id = fts.docid
		WHERE fts.content MATCH ?
		ORDER BY m.id DESC
		LIMIT ?`, phrase, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return scanMessages(rows)
}

func (db *Database) DeleteConversation(id string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}

	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (db *Database) UpdateConversationTitle(id string, title string) error {
	res, err := db.db.Exec("UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// now is truncated to microseconds so stored and returned times compare equal.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func scanMessages(rows *sql.Rows) ([]models.StoredMessage, error) {
	defer rows.Close()

	messages := make([]models.StoredMessage, 0)
	for rows.Next() {
		var msg models.StoredMessage
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConvID, &role, &msg.Content, &msg.Tokens, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
