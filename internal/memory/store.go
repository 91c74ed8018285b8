package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMessageNotFound is returned when a message lookup misses.
var ErrMessageNotFound = errors.New("message not found")

// Message is one stored conversation message.
type Message struct {
	ID        int64
	ChatID    string
	Role      string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// SearchHit is a full-text search result. Lower rank is a better match
// (FTS5 rank ordering).
type SearchHit struct {
	Message
	Rank float64
}

// Store persists conversation messages in SQLite and serves recency and
// full-text recall queries over them.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath and applies any
// pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.InfoS(context.Background(), "Opened message store",
		"path", dbPath)

	return &Store{db: db}, nil
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMessage appends a message to the history and returns its id.
func (s *Store) SaveMessage(ctx context.Context, chatID, role,
	content string, metadata map[string]any) (int64, error) {

	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, role, content, metadata,
		                      created_at)
		VALUES (?, ?, ?, ?, ?)
	`, chatID, role, content, string(meta), time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to save message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}

	log.DebugS(ctx, "Saved message",
		"id", id,
		"chat_id", chatID,
		"role", role)

	return id, nil
}

// GetMessage returns a single message by id, or ErrMessageNotFound.
func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, role, content, metadata, created_at
		FROM messages
		WHERE id = ?
	`, id)

	msg, err := scanMessage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: id=%d", ErrMessageNotFound,
			id)
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// RecentMessages returns the last limit messages of a chat in chronological
// order (oldest first), ready for context assembly.
func (s *Store) RecentMessages(ctx context.Context, chatID string,
	limit int) ([]Message, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, metadata, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w",
			err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w",
				err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// The query walks newest-first so LIMIT keeps the tail; flip back to
	// chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// ContextWindow returns the most recent messages of a chat that fit within
// both the message and character budgets, oldest first. Messages are dropped
// whole from the front; the newest message is always included even when it
// alone exceeds maxChars.
func (s *Store) ContextWindow(ctx context.Context, chatID string,
	maxMessages, maxChars int) ([]Message, error) {

	msgs, err := s.RecentMessages(ctx, chatID, maxMessages)
	if err != nil {
		return nil, err
	}

	total := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		total += len(msgs[i].Content)
		if total > maxChars && i < len(msgs)-1 {
			return msgs[i+1:], nil
		}
	}

	return msgs, nil
}

// Search performs a ranked full-text search across all messages. The query is
// plain user text; it is tokenized and quoted before being handed to FTS5, so
// operator characters cannot break the match expression.
func (s *Store) Search(ctx context.Context, query string,
	limit int) ([]SearchHit, error) {

	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.role, m.content, m.metadata,
		       m.created_at, fts.rank
		FROM messages m
		JOIN messages_fts fts ON m.id = fts.rowid
		WHERE messages_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			hit  SearchHit
			meta string
			ts   int64
		)
		err := rows.Scan(
			&hit.ID, &hit.ChatID, &hit.Role, &hit.Content, &meta,
			&ts, &hit.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search "+
				"result: %w", err)
		}
		hit.Metadata = decodeMetadata(meta)
		hit.CreatedAt = time.Unix(0, ts)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w",
			err)
	}

	return hits, nil
}

// CountMessages returns the number of stored messages for a chat.
func (s *Store) CountMessages(ctx context.Context, chatID string) (int,
	error) {

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE chat_id = ?
	`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return n, nil
}

// ftsQuery turns free-form user text into a safe FTS5 match expression: each
// whitespace-separated token is double-quoted (embedded quotes doubled) and
// the tokens are joined with the implicit AND.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}

	return strings.Join(quoted, " ")
}

// scanMessage reads one messages row via the given scan function.
func scanMessage(scan func(dest ...any) error) (Message, error) {
	var (
		msg  Message
		meta string
		ts   int64
	)
	err := scan(
		&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &meta, &ts,
	)
	if err != nil {
		return Message{}, err
	}

	msg.Metadata = decodeMetadata(meta)
	msg.CreatedAt = time.Unix(0, ts)

	return msg, nil
}

// decodeMetadata parses the stored metadata JSON, tolerating legacy empty
// values.
func decodeMetadata(raw string) map[string]any {
	metadata := map[string]any{}
	if raw == "" {
		return metadata
	}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return map[string]any{}
	}

	return metadata
}
