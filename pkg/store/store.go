// Package store persists the session settings and the plugin table.
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
)

// ErrNoSession is returned when no session row exists for a transport.
var ErrNoSession = errors.New("no session configured")

// Session is the per-transport configuration written by onboarding.
type Session struct {
	Transport string
	Secret    string
	Prefix    string
	Language  string
	OwnerID   string
	UpdatedAt time.Time
}

// PluginRecord remembers a loaded plugin across restarts.
type PluginRecord struct {
	Name     string
	Path     string
	Checksum string
	LoadedAt time.Time
}

type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS session (
		transport  TEXT PRIMARY KEY,
		secret     TEXT NOT NULL,
		prefix     TEXT NOT NULL,
		language   TEXT NOT NULL,
		owner_id   TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plugins (
		name      TEXT PRIMARY KEY,
		path      TEXT NOT NULL,
		checksum  TEXT NOT NULL,
		loaded_at INTEGER NOT NULL,
		position  INTEGER NOT NULL DEFAULT 0
	)`,
}

// columns added after the first release, created on open when missing.
var addedColumns = []struct{ table, name, decl string }{
	{"plugins", "position", "INTEGER NOT NULL DEFAULT 0"},
}

// Open opens (and creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	for _, col := range addedColumns {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, col.table, col.name).Scan(&n)
		if err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
		if n > 0 {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, col.table, col.name, col.decl)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Session returns the session row for transport.
func (s *Store) Session(ctx context.Context, transport string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT transport, secret, prefix, language, owner_id, updated_at FROM session WHERE transport = ?`, transport)
	var (
		sess    Session
		updated int64
	)
	err := row.Scan(&sess.Transport, &sess.Secret, &sess.Prefix, &sess.Language, &sess.OwnerID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNoSession, transport)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	sess.UpdatedAt = time.UnixMilli(updated)
	return sess, nil
}

// SaveSession inserts or replaces the session row of sess.Transport.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if sess.Transport == "" {
		return errors.New("save session: empty transport")
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (transport, secret, prefix, language, owner_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transport) DO UPDATE SET
			secret = excluded.secret,
			prefix = excluded.prefix,
			language = excluded.language,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at`,
		sess.Transport, sess.Secret, sess.Prefix, sess.Language, sess.OwnerID, sess.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SetLanguage changes the language of an existing session.
func (s *Store) SetLanguage(ctx context.Context, transport, language string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session SET language = ?, updated_at = ? WHERE transport = ?`,
		language, time.Now().UnixMilli(), transport)
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSession, transport)
	}
	return nil
}

// RecordPlugin upserts a plugin record. A new name is placed after every
// recorded plugin; reloading an existing name keeps its position.
func (s *Store) RecordPlugin(ctx context.Context, name, path, checksum string, loadedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugins (name, path, checksum, loaded_at, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM plugins))
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			checksum = excluded.checksum,
			loaded_at = excluded.loaded_at`,
		name, path, checksum, loadedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record plugin %q: %w", name, err)
	}
	return nil
}

// ForgetPlugin deletes a plugin record. Unknown names are not an error.
func (s *Store) ForgetPlugin(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE name = ?`, name); err != nil {
		return fmt.Errorf("forget plugin %q: %w", name, err)
	}
	return nil
}

// Plugins lists plugin records in the order they were first recorded.
// Rows written before positions existed sort first, by load time.
func (s *Store) Plugins(ctx context.Context) ([]PluginRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, path, checksum, loaded_at FROM plugins ORDER BY position, loaded_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	defer rows.Close()

	var out []PluginRecord
	for rows.Next() {
		var (
			rec    PluginRecord
			loaded int64
		)
		if err := rows.Scan(&rec.Name, &rec.Path, &rec.Checksum, &loaded); err != nil {
			return nil, fmt.Errorf("scan plugin: %w", err)
		}
		rec.LoadedAt = time.UnixMilli(loaded)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Snapshot writes a consistent copy of the database to path, replacing
// any file already there.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
