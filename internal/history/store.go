package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brainless/shellargs/internal/runner"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("history entry not found")

const dbFile = "history.sqlite"

// Entry is one recorded command execution
type Entry struct {
	ID         string        `json:"id"`
	Command    string        `json:"command"`
	Args       []string      `json:"args"`
	WorkingDir string        `json:"working_dir"`
	StatusCode int           `json:"status_code"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Store persists run results in SQLite
type Store struct {
	db *sql.DB
}

// Open creates the data directory if needed and opens the history database
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		args TEXT NOT NULL,
		working_dir TEXT,
		status_code INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a run result
func (s *Store) Record(ctx context.Context, res *runner.Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}

	args, err := json.Marshal(res.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, args, working_dir, status_code, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Command, string(args), res.WorkingDir, res.StatusCode,
		res.StartedAt.UnixNano(), int64(res.Duration))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", res.ID, err)
	}
	return nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, command, args, working_dir, status_code, started_at, duration_ns
		FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

// Get returns a single entry by run ID
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, command, args, working_dir, status_code, started_at, duration_ns
		 FROM runs WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e          Entry
		args       string
		workingDir sql.NullString
		startedAt  int64
		duration   int64
	)
	if err := row.Scan(&e.ID, &e.Command, &args, &workingDir, &e.StatusCode, &startedAt, &duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan history entry: %w", err)
	}
	if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
		return nil, fmt.Errorf("failed to decode args for %s: %w", e.ID, err)
	}
	e.WorkingDir = workingDir.String
	e.StartedAt = time.Unix(0, startedAt)
	e.Duration = time.Duration(duration)
	return &e, nil
}
