// Package backup archives the bot's plugins and settings.
package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

const (
	namePrefix = "backup_"
	nameSuffix = ".zip"
	timeLayout = "20060102_150405"

	// maxSameSecond bounds the suffixed names tried when several backups
	// are taken within one second.
	maxSameSecond = 99
)

// Source is a file or directory to archive under Name.
type Source struct {
	Path string
	Name string
}

// Name returns the archive name for a backup taken at t.
func Name(t time.Time) string {
	return namePrefix + t.Format(timeLayout) + nameSuffix
}

// Create writes a zip of sources into dir and returns its file name.
// Missing sources are skipped. An existing archive is never overwritten: a
// second backup within the same second gets a numbered name that sorts
// after the first.
func Create(ctx context.Context, dir string, sources []Source, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name, f, err := createArchive(dir, now)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	path := filepath.Join(dir, name)
	zw := zip.NewWriter(f)

	files := 0
	for _, src := range sources {
		n, err := addSource(ctx, zw, src)
		if err != nil {
			_ = zw.Close()
			_ = f.Close()
			_ = os.Remove(path)
			return "", err
		}
		files += n
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("finish backup: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("finish backup: %w", err)
	}

	logger.InfoCF("backup", "Backup created", map[string]any{
		"path":  path,
		"files": files,
	})
	return name, nil
}

func createArchive(dir string, now time.Time) (string, *os.File, error) {
	stamp := now.Format(timeLayout)
	for i := 0; i <= maxSameSecond; i++ {
		name := namePrefix + stamp + nameSuffix
		if i > 0 {
			name = fmt.Sprintf("%s%s_%02d%s", namePrefix, stamp, i, nameSuffix)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return name, f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("too many backups at %s", stamp)
}

func addSource(ctx context.Context, zw *zip.Writer, src Source) (int, error) {
	info, err := os.Stat(src.Path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 1, addFile(zw, src.Path, src.Name, info)
	}

	count := 0
	err = filepath.WalkDir(src.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src.Path, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		return addFile(zw, path, filepath.ToSlash(filepath.Join(src.Name, rel)), info)
	})
	return count, err
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// List returns backup file names in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, namePrefix) && strings.HasSuffix(n, nameSuffix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Prune deletes the oldest backups so that at most keep remain. keep <= 0
// keeps everything.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	names, err := List(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(names)-removed > keep {
		if err := os.Remove(filepath.Join(dir, names[removed])); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// CleanDir removes every regular file directly inside dir and reports how
// many were removed. Subdirectories are left alone.
func CleanDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			logger.DebugCF("backup", "Failed to remove temp file", map[string]any{
				"file":  e.Name(),
				"error": err.Error(),
			})
			continue
		}
		count++
	}
	return count, nil
}
