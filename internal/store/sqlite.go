package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"url-status-report/internal/checker"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
    session_id  TEXT NOT NULL,
    position    INTEGER NOT NULL,
    domain      TEXT NOT NULL,
    status_code INTEGER,
    message     TEXT NOT NULL,
    PRIMARY KEY (session_id, position)
);
CREATE TABLE IF NOT EXISTS reports (
    session_id TEXT PRIMARY KEY,
    body       BLOB NOT NULL
);
`

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA encoding = 'UTF-8'", "PRAGMA journal_mode = WAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Results(ctx context.Context, sessionID string) ([]checker.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, status_code, message FROM results WHERE session_id = ? ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	records := []checker.Record{}
	for rows.Next() {
		var (
			rec  checker.Record
			code sql.NullInt64
		)
		if err := rows.Scan(&rec.Domain, &code, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if code.Valid {
			rec.StatusCode = int(code.Int64)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLite) ReplaceResults(ctx context.Context, sessionID string, records []checker.Record) error {
	return s.withTx(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear results: %w", err)
		}
		return insertResults(ctx, tx, sessionID, 0, records)
	})
}

func (s *SQLite) AppendResults(ctx context.Context, sessionID string, records ...checker.Record) error {
	return s.withTx(ctx, sessionID, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM results WHERE session_id = ?`,
			sessionID).Scan(&next)
		if err != nil {
			return fmt.Errorf("next position: %w", err)
		}
		return insertResults(ctx, tx, sessionID, next, records)
	})
}

func (s *SQLite) Report(ctx context.Context, sessionID string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE session_id = ?`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	return body, nil
}

func (s *SQLite) SaveReport(ctx context.Context, sessionID string, report []byte) error {
	return s.withTx(ctx, sessionID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO reports (session_id, body) VALUES (?, ?)
ON CONFLICT(session_id) DO UPDATE SET body = excluded.body`,
			sessionID, report)
		if err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Sweep(ctx context.Context, before time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := before.UnixNano()
	for _, table := range []string{"results", "reports"} {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE session_id IN (SELECT session_id FROM sessions WHERE updated_at < ?)`, table),
			cutoff)
		if err != nil {
			return 0, fmt.Errorf("sweep %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction and marks the session as written.
func (s *SQLite) withTx(ctx context.Context, sessionID string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (session_id, updated_at) VALUES (?, ?)
ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertResults(ctx context.Context, tx *sql.Tx, sessionID string, start int, records []checker.Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (session_id, position, domain, status_code, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		code := sql.NullInt64{Int64: int64(rec.StatusCode), Valid: rec.HasStatus()}
		if _, err := stmt.ExecContext(ctx, sessionID, start+i, rec.Domain, code, rec.Message); err != nil {
			return fmt.Errorf("insert result %d: %w", start+i, err)
		}
	}
	return nil
}
