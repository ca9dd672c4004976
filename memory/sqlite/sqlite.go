// Package sqlite provides a durable long-term memory provider backed by
// SQLite through mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/agentrelay/memory"
)

// Store persists facts per conversation key.
type Store struct {
	db           *sql.DB
	summaryFacts int
}

// Options configures a Store.
type Options struct {
	// SummaryFacts is the number of most recent facts rendered by ContextSummary.
	SummaryFacts int
}

// New opens (and migrates) the database at dsn. Use ":memory:" or a
// "file:...?mode=memory" DSN for ephemeral stores.
func New(dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{SummaryFacts: memory.DefaultSummaryFacts}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	s := &Store{db: db, summaryFacts: opts.SummaryFacts}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_key TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_conversation ON facts(conversation_key, id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remember stores a fact for the conversation.
func (s *Store) Remember(ctx context.Context, key, fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return fmt.Errorf("empty fact")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (conversation_key, content, created_at) VALUES (?, ?, ?)`,
		key, fact, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// Recall returns up to limit facts containing query (case-insensitive), newest first.
func (s *Store) Recall(ctx context.Context, key, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM facts
		 WHERE conversation_key = ? AND (? = '' OR instr(lower(content), lower(?)) > 0)
		 ORDER BY id DESC LIMIT ?`,
		key, query, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	return scanContents(rows)
}

// ContextSummary renders the most recent facts, oldest first.
func (s *Store) ContextSummary(ctx context.Context, key string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM (
			SELECT id, content FROM facts WHERE conversation_key = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		key, s.summaryFacts)
	if err != nil {
		return "", fmt.Errorf("query facts: %w", err)
	}
	facts, err := scanContents(rows)
	if err != nil {
		return "", err
	}
	return memory.Summarize(facts), nil
}

// Forget removes every fact of a conversation and returns how many were deleted.
func (s *Store) Forget(ctx context.Context, key string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE conversation_key = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}
	return res.RowsAffected()
}

func scanContents(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, rows.Err()
}
