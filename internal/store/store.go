package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	KindUser   = "user"
	KindServer = "server"
)

// ErrNameNotFound is returned by the resolvers when no name was recorded for an id.
var ErrNameNotFound = errors.New("name not found")

// Record is one logged chat message. ServerID identifies the chat or guild.
type Record struct {
	ID        int64
	AuthorID  int64
	ServerID  int64
	Text      string
	CreatedAt time.Time
}

// Stats is a compact snapshot used by status reporting.
type Stats struct {
	Messages int
	Servers  int
	Authors  int
	Names    int
}

// Log is an append-only message log backed by SQLite.
type Log struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	l := &Log{db: db}
	if err := l.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Log) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			server_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_server ON logs(server_id, id)`,
		`CREATE TABLE IF NOT EXISTS names (
			kind TEXT NOT NULL,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (kind, id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Add appends a message. A zero CreatedAt is stamped with the current time.
func (l *Log) Add(ctx context.Context, rec Record) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO logs (user_id, server_id, message, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.AuthorID, rec.ServerID, rec.Text, created.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add message id: %w", err)
	}
	return id, nil
}

// ListByServer returns a server's messages in insertion order.
func (l *Log) ListByServer(ctx context.Context, serverID int64) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, server_id, message, created_at
		FROM logs
		WHERE server_id = ?
		ORDER BY id ASC
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.AuthorID, &rec.ServerID, &rec.Text, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// RememberName records the latest display name seen for a user or server.
func (l *Log) RememberName(ctx context.Context, kind string, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO names (kind, id, name) VALUES (?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			name = excluded.name,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, kind, id, name)
	if err != nil {
		return fmt.Errorf("remember %s name: %w", kind, err)
	}
	return nil
}

func (l *Log) lookupName(ctx context.Context, kind string, id int64) (string, error) {
	var name string
	err := l.db.QueryRowContext(ctx, `SELECT name FROM names WHERE kind = ? AND id = ?`, kind, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s %d: %w", kind, id, ErrNameNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s name: %w", kind, err)
	}
	return name, nil
}

// ResolveUser and ResolveServer match convo.ResolveFunc.
func (l *Log) ResolveUser(ctx context.Context, id int64) (string, error) {
	return l.lookupName(ctx, KindUser, id)
}

func (l *Log) ResolveServer(ctx context.Context, id int64) (string, error) {
	return l.lookupName(ctx, KindServer, id)
}

// Servers lists every server id that has logged messages.
func (l *Log) Servers(ctx context.Context) ([]int64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT server_id FROM logs ORDER BY server_id`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *Log) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT server_id), COUNT(DISTINCT user_id) FROM logs
	`).Scan(&s.Messages, &s.Servers, &s.Authors)
	if err != nil {
		return s, fmt.Errorf("count messages: %w", err)
	}
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM names`).Scan(&s.Names); err != nil {
		return s, fmt.Errorf("count names: %w", err)
	}
	return s, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
