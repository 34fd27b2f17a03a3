package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/fedcli/internal/domain"
)

// timeFormat is fixed width so stored values sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Cache is the sqlite-backed local store.
type Cache struct {
	db   *sql.DB
	path string

	mu     sync.RWMutex
	closed bool
}

// Verify Cache implements Store
var _ Store = (*Cache)(nil)

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	c := &Cache{db: db, path: path}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		conversation_id TEXT PRIMARY KEY,
		counterparty_name TEXT NOT NULL,
		last_message_time TEXT,
		status TEXT NOT NULL,
		assigned_agent_id TEXT,
		waiting_for_reply INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		operation TEXT NOT NULL,
		command TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		user_id TEXT,
		role TEXT,
		conversation_id TEXT,
		session_id TEXT,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_audit_started ON audit_events(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_events(category);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Path is the database file.
func (c *Cache) Path() string {
	return c.path
}

// Ping verifies the database is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.db.PingContext(ctx)
}

// Close closes the database. Later calls return nil.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *Cache) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// ─── Summaries ───

const metaSummariesFetched = "summaries_fetched_at"

// ReplaceSummaries stores list as the current snapshot, dropping rows for
// conversations no longer listed.
func (c *Cache) ReplaceSummaries(ctx context.Context, list []domain.ChatSummary, fetchedAt time.Time) error {
	if err := c.check(); err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO summaries (conversation_id, counterparty_name, last_message_time, status, assigned_agent_id, waiting_for_reply)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range list {
		if _, err := stmt.ExecContext(ctx,
			s.ConversationID, s.CounterpartyName, nullTime(s.LastMessageTime.Time),
			string(s.Status), s.AssignedAgentID, s.WaitingForReply,
		); err != nil {
			return fmt.Errorf("insert summary %s: %w", s.ConversationID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaSummariesFetched, fetchedAt.UTC().Format(timeFormat)); err != nil {
		return err
	}
	return tx.Commit()
}

// Summaries returns the last stored snapshot in inbox order and when it was
// fetched. A cache that never stored one returns a NotFoundError.
func (c *Cache) Summaries(ctx context.Context) ([]domain.ChatSummary, time.Time, error) {
	if err := c.check(); err != nil {
		return nil, time.Time{}, err
	}

	var fetched string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaSummariesFetched).Scan(&fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, NewNotFoundError("summary snapshot", "latest")
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	fetchedAt, _ := time.Parse(timeFormat, fetched)

	rows, err := c.db.QueryContext(ctx, `
		SELECT conversation_id, counterparty_name, last_message_time, status, assigned_agent_id, waiting_for_reply
		FROM summaries
	`)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	list := []domain.ChatSummary{}
	for rows.Next() {
		var (
			s        domain.ChatSummary
			lastTime sql.NullString
			agent    sql.NullString
			status   string
		)
		if err := rows.Scan(&s.ConversationID, &s.CounterpartyName, &lastTime, &status, &agent, &s.WaitingForReply); err != nil {
			return nil, time.Time{}, err
		}
		s.Status = domain.AssignmentStatus(status)
		s.LastMessageTime = domain.LocalTime{Time: parseTime(lastTime)}
		if agent.Valid {
			id := agent.String
			s.AssignedAgentID = &id
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	domain.SortSummaries(list)
	return list, fetchedAt, nil
}

// ─── Messages ───

// SaveMessages stores messages, ignoring ids already present. Messages
// without an id get a generated one.
func (c *Cache) SaveMessages(ctx context.Context, msgs ...domain.ChatMessage) error {
	if err := c.check(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO messages (id, conversation_id, sender_id, sender_role, content, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			id, m.ConversationID, m.SenderID, string(m.SenderRole), m.Content, nullTime(m.Timestamp.Time),
		); err != nil {
			return fmt.Errorf("insert message %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Messages returns the stored messages of a conversation, oldest first.
// filter.Limit keeps the most recent N.
func (c *Cache) Messages(ctx context.Context, conversationID string, filter Filter) ([]domain.ChatMessage, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, conversation_id, sender_id, sender_role, content, timestamp
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp DESC, rowid DESC`
	args := []any{conversationID}
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var (
			m    domain.ChatMessage
			role string
			ts   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &role, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.SenderRole = domain.Role(role)
		m.Timestamp = domain.LocalTime{Time: parseTime(ts)}
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

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return time.Time{}
	}
	return t.In(time.Local)
}
