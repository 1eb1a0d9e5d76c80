// Package sqlitestore is a history.Store kept in a SQLite database, one row
// per record. Unlike the file store, mutations touch only the affected rows.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"go.klb.dev/clipwatch/internal/history"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS records (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	payload BLOB NOT NULL
)`

// Store persists records of type T as JSON rows ordered by seq.
type Store[T any] struct {
	db   *sql.DB
	path string
}

var _ history.Store[struct{}] = (*Store[struct{}])(nil)

// Open opens or creates the database at path.
func Open[T any](ctx context.Context, path string) (*Store[T], error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &history.IOError{Op: "open", Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store[T]{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return s.ioErr("open", err)
	}
	switch {
	case version > schemaVersion:
		return &history.SerializationError{
			Op:  "open",
			Err: fmt.Errorf("%w: %d", history.ErrUnsupportedVersion, version),
		}
	case version == schemaVersion:
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return s.ioErr("migrate", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return s.ioErr("migrate", err)
	}
	return nil
}

func (s *Store[T]) ioErr(op string, err error) error {
	return &history.IOError{Op: op, Path: s.path, Err: err}
}

func (s *Store[T]) Load(ctx context.Context) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM records ORDER BY seq")
	if err != nil {
		return nil, s.ioErr("read", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, s.ioErr("read", err)
		}
		var r T
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, &history.SerializationError{Op: "decode", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.ioErr("read", err)
	}
	return out, nil
}

func (s *Store[T]) Save(ctx context.Context, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payloads := make([][]byte, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return &history.SerializationError{Op: "encode", Err: err}
		}
		payloads = append(payloads, b)
	}
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.ioErr("write", err)
	}
	defer tx.Rollback()
	for _, p := range payloads {
		if _, err := tx.ExecContext(ctx, "INSERT INTO records (payload) VALUES (?)", p); err != nil {
			return s.ioErr("write", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.ioErr("commit", err)
	}
	return nil
}

func (s *Store[T]) Put(ctx context.Context, record T) error {
	return s.Save(ctx, []T{record})
}

func (s *Store[T]) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return s.ioErr("clear", err)
	}
	return nil
}

func (s *Store[T]) ShrinkTo(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE seq NOT IN (SELECT seq FROM records ORDER BY seq DESC LIMIT ?)", n)
	if err != nil {
		return s.ioErr("shrink", err)
	}
	return nil
}

func (s *Store[T]) Close() error { return s.db.Close() }
