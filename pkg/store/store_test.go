package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "newera.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.Session(ctx, "telegram")
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.SaveSession(ctx, Session{
		Transport: "telegram", Secret: "123:abc", Prefix: ".", Language: "ru", OwnerID: "42",
	}))
	sess, err := s.Session(ctx, "telegram")
	require.NoError(t, err)
	assert.Equal(t, "123:abc", sess.Secret)
	assert.Equal(t, "42", sess.OwnerID)
	assert.False(t, sess.UpdatedAt.IsZero())

	require.NoError(t, s.SetLanguage(ctx, "telegram", "en"))
	sess, err = s.Session(ctx, "telegram")
	require.NoError(t, err)
	assert.Equal(t, "en", sess.Language)
	assert.Equal(t, ".", sess.Prefix)

	assert.ErrorIs(t, s.SetLanguage(ctx, "console", "en"), ErrNoSession)
	assert.Error(t, s.SaveSession(ctx, Session{}))
}

func TestPluginRecords(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.RecordPlugin(ctx, "weather", "/p/weather.lua", "aa", base.Add(time.Second)))
	require.NoError(t, s.RecordPlugin(ctx, "echo", "/p/echo.lua", "bb", base))
	require.NoError(t, s.RecordPlugin(ctx, "echo", "/p/echo.lua", "cc", base))

	recs, err := s.Plugins(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "weather", recs[0].Name)
	assert.Equal(t, "echo", recs[1].Name)
	assert.Equal(t, "cc", recs[1].Checksum)
	assert.True(t, recs[1].LoadedAt.Equal(base))

	require.NoError(t, s.ForgetPlugin(ctx, "echo"))
	require.NoError(t, s.ForgetPlugin(ctx, "missing"))
	recs, err = s.Plugins(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "weather", recs[0].Name)
}

func pluginNames(t *testing.T, s *Store) []string {
	t.Helper()
	recs, err := s.Plugins(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		names = append(names, rec.Name)
	}
	return names
}

func TestPluginOrderSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newera.db")
	s, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.RecordPlugin(ctx, "alpha", "/p/alpha.lua", "a1", now))
	require.NoError(t, s.RecordPlugin(ctx, "beta", "/p/beta.lua", "b1", now))
	require.NoError(t, s.RecordPlugin(ctx, "gamma", "/p/gamma.lua", "g1", now.Add(time.Second)))
	// Reloading alpha must not move it behind the others.
	require.NoError(t, s.RecordPlugin(ctx, "alpha", "/p/alpha.lua", "a2", now.Add(time.Hour)))
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, pluginNames(t, s))

	// A name recorded again after being forgotten goes to the end.
	require.NoError(t, s.ForgetPlugin(ctx, "beta"))
	require.NoError(t, s.RecordPlugin(ctx, "beta", "/p/beta.lua", "b2", now))
	assert.Equal(t, []string{"alpha", "gamma", "beta"}, pluginNames(t, s))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"alpha", "gamma", "beta"}, pluginNames(t, s))
}

func TestOpenAddsPositionToOldPluginTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newera.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE plugins (
		name      TEXT PRIMARY KEY,
		path      TEXT NOT NULL,
		checksum  TEXT NOT NULL,
		loaded_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO plugins VALUES ('late', '/p/late.lua', 'l', 2000), ('early', '/p/early.lua', 'e', 1000)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"early", "late"}, pluginNames(t, s))

	require.NoError(t, s.RecordPlugin(context.Background(), "newest", "/p/newest.lua", "n", time.UnixMilli(500)))
	assert.Equal(t, []string{"early", "late", "newest"}, pluginNames(t, s))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newera.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(context.Background(), Session{Transport: "console", Prefix: "!", Language: "en"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	sess, err := s.Session(context.Background(), "console")
	require.NoError(t, err)
	assert.Equal(t, "!", sess.Prefix)
}

func TestSnapshot(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.RecordPlugin(ctx, "echo", "/p/echo.lua", "abc", time.Now()))

	path := filepath.Join(t.TempDir(), "snap", "copy.db")
	require.NoError(t, s.Snapshot(ctx, path))
	// A second snapshot replaces the first.
	require.NoError(t, s.Snapshot(ctx, path))

	copied, err := Open(path)
	require.NoError(t, err)
	defer copied.Close()
	recs, err := copied.Plugins(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "echo", recs[0].Name)
}
