package backup

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "backup_20260304_050607.zip", Name(ts))
}

func TestCreate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plugins", "echo.lua"), "-- echo")
	writeFile(t, filepath.Join(root, "plugins", "nested", "x.lua"), "-- x")
	writeFile(t, filepath.Join(root, "config.json"), "{}")

	out := filepath.Join(root, "backups")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	name, err := Create(context.Background(), out, []Source{
		{Path: filepath.Join(root, "plugins"), Name: "plugins"},
		{Path: filepath.Join(root, "config.json"), Name: "config.json"},
		{Path: filepath.Join(root, "missing"), Name: "missing"},
	}, ts)
	require.NoError(t, err)
	assert.Equal(t, "backup_20260102_030405.zip", name)

	assert.Equal(t, []string{"config.json", "plugins/echo.lua", "plugins/nested/x.lua"},
		zipNames(t, filepath.Join(out, name)))

	// Same second twice must not overwrite.
	second, err := Create(context.Background(), out, nil, ts)
	require.NoError(t, err)
	assert.Equal(t, "backup_20260102_030405_01.zip", second)
	assert.Equal(t, []string{"config.json", "plugins/echo.lua", "plugins/nested/x.lua"},
		zipNames(t, filepath.Join(out, name)))

	names, err := List(out)
	require.NoError(t, err)
	assert.Equal(t, []string{name, second}, names)
}

func TestCreateThenRestore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plugins", "echo.lua"), "return 1")

	name, err := Create(context.Background(), filepath.Join(root, "backups"), []Source{
		{Path: filepath.Join(root, "plugins"), Name: "plugins"},
	}, time.Now())
	require.NoError(t, err)

	target := filepath.Join(root, "restored")
	n, err := Restore(filepath.Join(root, "backups", name), target)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(target, "plugins", "echo.lua"))
	require.NoError(t, err)
	assert.Equal(t, "return 1", string(data))
}

func TestRestoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Restore(archive, filepath.Join(dir, "out"))
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestoreInvalidArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not.zip")
	writeFile(t, path, "plain text")
	_, err := Restore(path, filepath.Join(dir, "out"))
	assert.ErrorContains(t, err, "invalid ZIP")
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, Name(base.Add(time.Duration(i)*time.Hour))), "z")
	}
	writeFile(t, filepath.Join(dir, "notes.txt"), "keep me")

	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	names, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		Name(base.Add(3 * time.Hour)),
		Name(base.Add(4 * time.Hour)),
	}, names)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	removed, err = Prune(dir, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestListMissingDir(t *testing.T) {
	names, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCleanDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.lua"), "a")
	writeFile(t, filepath.Join(dir, "b.bin"), "b")
	writeFile(t, filepath.Join(dir, "sub", "c"), "c")

	n, err := CleanDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.DirExists(t, filepath.Join(dir, "sub"))
	assert.FileExists(t, filepath.Join(dir, "sub", "c"))

	n, err = CleanDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a cron", func(context.Context) {})
	assert.Error(t, err)

	s, err := NewScheduler("0 3 * * *", func(context.Context) {})
	require.NoError(t, err)
	from := time.Date(2026, 5, 1, 4, 0, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	s, err := NewScheduler("@daily", func(context.Context) {})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
