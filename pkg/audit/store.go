// Package audit persists one structured record per executed shell command.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Entry is one command execution record
type Entry struct {
	ID         int64     `json:"id,omitempty"`
	Command    string    `json:"command"`
	Status     string    `json:"status"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	TraceID    string    `json:"trace_id,omitempty"`
	SessionPID int       `json:"session_pid,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Config holds audit store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Store is a sqlite-backed command log
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens the audit database, creating the schema if needed
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("db_path", cfg.DBPath).Msg("Audit store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			duration_ms INTEGER NOT NULL,
			trace_id TEXT,
			session_pid INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_commands_created ON commands(created_at);
		CREATE INDEX IF NOT EXISTS idx_commands_status ON commands(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record appends one entry to the log
func (s *Store) Record(ctx context.Context, e Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var exitCode sql.NullInt64
	if e.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commands (command, status, exit_code, duration_ms, trace_id, session_pid, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Command, e.Status, exitCode, e.DurationMs, e.TraceID, e.SessionPID, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, status, exit_code, duration_ms, trace_id, session_pid, created_at
		 FROM commands ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var exitCode sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Command, &e.Status, &exitCode, &e.DurationMs, &e.TraceID, &e.SessionPID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan command row: %w", err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			e.ExitCode = &code
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns the number of recorded commands per status
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM commands GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count commands: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}
