package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

// Restore extracts a backup archive into targetDir and returns the number
// of files written. Entries escaping targetDir and symlinks are rejected.
func Restore(archive, targetDir string) (int, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("invalid ZIP: %w", err)
	}
	defer reader.Close()

	logger.DebugCF("backup", "Restoring backup", map[string]any{
		"archive":    archive,
		"target_dir": targetDir,
		"entries":    len(reader.File),
	})

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return 0, fmt.Errorf("create target dir: %w", err)
	}
	root := filepath.Clean(targetDir)

	written := 0
	for _, f := range reader.File {
		clean := filepath.Clean(filepath.FromSlash(f.Name))
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return written, fmt.Errorf("zip entry has unsafe path: %q", f.Name)
		}
		dest := filepath.Join(root, clean)
		if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return written, fmt.Errorf("zip entry escapes target dir: %q", f.Name)
		}
		mode := f.FileInfo().Mode()
		if mode&os.ModeSymlink != 0 {
			return written, fmt.Errorf("zip contains symlink %q", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return written, err
		}
		if err := extractFile(f, dest); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create file %q: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("extract %q: %w", f.Name, err)
	}
	return out.Close()
}
