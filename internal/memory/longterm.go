package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/phuslu/log"
	_ "modernc.org/sqlite"

	"localcog/internal/domain"
)

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 200

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	ts DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
`

// LongTerm is the durable conversation log, one row per turn.
type LongTerm struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenLongTerm opens or creates the SQLite log at path.
func OpenLongTerm(path string, busyTimeoutMS int, logger *log.Logger) (*LongTerm, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	// modernc.org/sqlite registers the "sqlite" driver name
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas below are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("conversation log opened")
	return &LongTerm{db: db, logger: logger}, nil
}

// Add records one turn.
func (m *LongTerm) Add(ctx context.Context, session string, role domain.Role, content string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, role, content) VALUES (?, ?, ?)`,
		session, string(role), content)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Recent returns the last limit turns of the session, oldest first.
func (m *LongTerm) Recent(ctx context.Context, session string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT role, content, ts FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		session, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			role, content string
			ts            sql.NullString
		)
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, domain.Turn{Role: domain.Role(role), Content: content, At: parseTimestamp(ts.String)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	slices.Reverse(turns)
	return turns, nil
}

func (m *LongTerm) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
