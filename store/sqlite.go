package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store persisted in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path, creating parent
// directories as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL lets readers proceed while a run is being recorded; the busy
	// timeout makes concurrent writers wait instead of failing.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL DEFAULT '',
			state       TEXT NOT NULL DEFAULT 'RUNNING',
			request     TEXT NOT NULL DEFAULT '',
			turns       INTEGER NOT NULL DEFAULT 0,
			error       TEXT,
			started_at  DATETIME NOT NULL,
			ended_at    DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL REFERENCES runs(id),
			step         INTEGER NOT NULL,
			supervisor   TEXT NOT NULL,
			next         TEXT NOT NULL,
			reasoning    TEXT,
			instructions TEXT,
			created_at   DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id, id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL,
			run_id      TEXT NOT NULL REFERENCES runs(id),
			author      TEXT NOT NULL,
			content     TEXT NOT NULL,
			tool_uses   TEXT,
			created_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Publish implements core.EventSink by recording ev.
func (s *SQLiteStore) Publish(ctx context.Context, ev core.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Every event creates its run on first sight so that runs failing before
	// the seed (moderation) are recorded too.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, started_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		ev.RunID, ev.SessionID, ev.Timestamp); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	switch ev.Type {
	case core.EventRunStarted:
		if ev.Message != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE runs SET request = ?, started_at = ? WHERE id = ?`,
				ev.Message.Content, ev.Timestamp, ev.RunID); err != nil {
				return fmt.Errorf("save request: %w", err)
			}
			if err := insertMessage(ctx, tx, ev.RunID, *ev.Message); err != nil {
				return err
			}
		}
	case core.EventDecision:
		if ev.Decision != nil {
			d := decisionFromEvent(ev)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO decisions (run_id, step, supervisor, next, reasoning, instructions, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ev.RunID, d.Step, d.Supervisor, d.Next, d.Reasoning, d.Instructions, d.CreatedAt); err != nil {
				return fmt.Errorf("save decision: %w", err)
			}
		}
	case core.EventMessage:
		if ev.Message != nil {
			if err := insertMessage(ctx, tx, ev.RunID, *ev.Message); err != nil {
				return err
			}
		}
	case core.EventRunEnded:
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET state = ?, turns = ?, error = ?, ended_at = ? WHERE id = ?`,
			ev.State, ev.Step, ev.ErrorMessage, ev.Timestamp, ev.RunID); err != nil {
			return fmt.Errorf("save run end: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, runID string, m core.Message) error {
	var toolUses *string
	if len(m.ToolUses) > 0 {
		b, err := sonic.MarshalString(m.ToolUses)
		if err != nil {
			return fmt.Errorf("marshal tool uses: %w", err)
		}
		toolUses = &b
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, run_id, author, content, tool_uses, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, runID, m.Author, m.Content, toolUses, m.Timestamp); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

const runColumns = `id, session_id, state, request, turns, error, started_at, ended_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	r := &Run{}
	var errText *string
	if err := scanner.Scan(&r.ID, &r.SessionID, &r.State, &r.Request, &r.Turns, &errText, &r.StartedAt, &r.EndedAt); err != nil {
		return nil, err
	}
	if errText != nil {
		r.Error = *errText
	}
	return r, nil
}

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if r.Decisions, err = s.decisions(ctx, runID); err != nil {
		return nil, err
	}
	if r.Messages, err = s.messages(ctx, runID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) decisions(ctx context.Context, runID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, supervisor, next, reasoning, instructions, created_at
		FROM decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("get decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d                       Decision
			reasoning, instructions *string
		)
		if err := rows.Scan(&d.Step, &d.Supervisor, &d.Next, &reasoning, &instructions, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if reasoning != nil {
			d.Reasoning = *reasoning
		}
		if instructions != nil {
			d.Instructions = *instructions
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) messages(ctx context.Context, runID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, content, tool_uses, created_at
		FROM messages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			m        core.Message
			toolUses *string
		)
		if err := rows.Scan(&m.ID, &m.Author, &m.Content, &toolUses, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolUses != nil {
			if err := sonic.UnmarshalString(*toolUses, &m.ToolUses); err != nil {
				return nil, fmt.Errorf("decode tool uses: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context, sessionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its decisions and messages.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	n, err := s.deleteRuns(ctx, `id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneBefore deletes ended runs that started before t and returns how many
// were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	n, err := s.deleteRuns(ctx, `ended_at IS NOT NULL AND started_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return n, nil
}

// deleteRuns removes the runs matching where, children first, in one
// transaction.
func (s *SQLiteStore) deleteRuns(ctx context.Context, where string, arg any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	sub := `SELECT id FROM runs WHERE ` + where
	for _, table := range []string{"decisions", "messages"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id IN (`+sub+`)`, arg); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE `+where, arg)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
