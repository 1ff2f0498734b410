// Package archive persists completed message exchanges in SQLite. The
// bus feeds it through a completion hook; nothing on the routing path
// reads from it.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoCodeAlone/switchboard/comms"
)

const schema = `
CREATE TABLE IF NOT EXISTS completions (
	key          TEXT PRIMARY KEY,
	sender       TEXT NOT NULL DEFAULT '',
	recipients   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	latency_ms   INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL,
	response     TEXT NOT NULL,
	completed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completions_completed_at
	ON completions (completed_at);
`

// Store is the durable archive of completed exchanges.
type Store interface {
	Record(c *comms.Completion) error
	Recent(limit int) ([]*comms.Completion, error)
	Get(key string) (*comms.Completion, error)
	Close() error
}

// SQLiteStore persists completions in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the completions table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Record writes one completed exchange. Re-recording the same key
// overwrites the earlier row.
func (s *SQLiteStore) Record(c *comms.Completion) error {
	if c == nil || c.Message == nil {
		return fmt.Errorf("record: nil completion")
	}
	msg, _ := json.Marshal(c.Message)
	resp, _ := json.Marshal(c.Response)

	status := ""
	latency := int64(0)
	if c.Response != nil {
		status = string(c.Response.Status)
		latency = c.Response.LatencyMS
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO completions
			(key, sender, recipients, status, latency_ms, message, response, completed_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		c.Message.Key, c.Message.From, strings.Join(c.Message.To, ","),
		status, latency,
		string(msg), string(resp),
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

// Get retrieves a completion by message key.
func (s *SQLiteStore) Get(key string) (*comms.Completion, error) {
	row := s.db.QueryRow(
		`SELECT message, response, completed_at FROM completions WHERE key = ?`, key)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("completion %s not found", key)
	}
	return c, err
}

// Recent returns completions most recent first. limit <= 0 returns all.
func (s *SQLiteStore) Recent(limit int) ([]*comms.Completion, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT message, response, completed_at FROM completions
		ORDER BY completed_at DESC, key`)
	if limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}

	rows, err := s.db.Query(q.String())
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []*comms.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanCompletion.
type scanner interface {
	Scan(dest ...any) error
}

func scanCompletion(s scanner) (*comms.Completion, error) {
	var c comms.Completion
	var msgJSON, respJSON string

	if err := s.Scan(&msgJSON, &respJSON, &c.CompletedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(msgJSON), &c.Message)
	_ = json.Unmarshal([]byte(respJSON), &c.Response)
	return &c, nil
}
