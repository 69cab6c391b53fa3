package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

// SanitizeFilename strips directories and traversal sequences from filename.
func SanitizeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.ReplaceAll(base, "..", "")
	base = strings.ReplaceAll(base, "/", "_")
	if base == "" || base == "." {
		base = "file"
	}
	return base
}

// UniqueName prefixes a sanitized filename with a short random id.
func UniqueName(filename string) string {
	return uuid.New().String()[:8] + "_" + SanitizeFilename(filename)
}

// DownloadOptions holds optional parameters for DownloadFile.
type DownloadOptions struct {
	Client       *http.Client
	Timeout      time.Duration
	MaxBytes     int64
	LoggerPrefix string
}

// DownloadFile fetches url into dir under a unique name derived from
// filename and returns the local path.
func DownloadFile(ctx context.Context, url, dir, filename string, opts DownloadOptions) (string, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.LoggerPrefix == "" {
		opts.LoggerPrefix = "utils"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	localPath := filepath.Join(dir, UniqueName(filename))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local file: %w", err)
	}

	var body io.Reader = resp.Body
	if opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && opts.MaxBytes > 0 && n > opts.MaxBytes {
		err = fmt.Errorf("file exceeds %d bytes", opts.MaxBytes)
	}
	if err != nil {
		_ = os.Remove(localPath)
		return "", fmt.Errorf("write local file: %w", err)
	}

	logger.DebugCF(opts.LoggerPrefix, "File downloaded", map[string]any{
		"path":  localPath,
		"bytes": n,
	})
	return localPath, nil
}
