package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transports understood by the run command.
const (
	TransportTelegram = "telegram"
	TransportConsole  = "console"
)

type Config struct {
	Transport string          `json:"transport" env:"NEWERA_TRANSPORT"`
	Telegram  TelegramConfig  `json:"telegram"`
	Paths     PathsConfig     `json:"paths"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Plugins   PluginsConfig   `json:"plugins"`
	Backup    BackupConfig    `json:"backup"`
	Log       LogConfig       `json:"log"`
	Defaults  SessionDefaults `json:"defaults"`
	mu        sync.RWMutex
}

// TelegramConfig configures the Bot API transport. Token seeds the session
// secret when onboarding runs non-interactively.
type TelegramConfig struct {
	Token    string  `json:"token,omitempty" env:"NEWERA_TELEGRAM_TOKEN"`
	Proxy    string  `json:"proxy,omitempty" env:"NEWERA_TELEGRAM_PROXY"`
	BaseURL  string  `json:"base_url,omitempty" env:"NEWERA_TELEGRAM_BASE_URL"`
	EditRate float64 `json:"edit_rate" env:"NEWERA_TELEGRAM_EDIT_RATE"`
}

type PathsConfig struct {
	DataDir string `json:"data_dir" env:"NEWERA_DATA_DIR"`
}

type DispatchConfig struct {
	QueueSize             int `json:"queue_size" env:"NEWERA_DISPATCH_QUEUE_SIZE"`
	HandlerTimeoutSeconds int `json:"handler_timeout_seconds" env:"NEWERA_DISPATCH_HANDLER_TIMEOUT"`
}

type PluginsConfig struct {
	Autoload           bool  `json:"autoload" env:"NEWERA_PLUGINS_AUTOLOAD"`
	CallTimeoutSeconds int   `json:"call_timeout_seconds" env:"NEWERA_PLUGINS_CALL_TIMEOUT"`
	MaxSourceBytes     int64 `json:"max_source_bytes" env:"NEWERA_PLUGINS_MAX_SOURCE_BYTES"`
}

type BackupConfig struct {
	Schedule string `json:"schedule,omitempty" env:"NEWERA_BACKUP_SCHEDULE"`
	Keep     int    `json:"keep" env:"NEWERA_BACKUP_KEEP"`
}

type LogConfig struct {
	Level  string `json:"level" env:"NEWERA_LOG_LEVEL"`
	File   string `json:"file,omitempty" env:"NEWERA_LOG_FILE"`
	Redact bool   `json:"redact" env:"NEWERA_LOG_REDACT"`
}

// SessionDefaults are offered by the first-run wizard.
type SessionDefaults struct {
	Prefix   string `json:"prefix" env:"NEWERA_PREFIX"`
	Language string `json:"language" env:"NEWERA_LANGUAGE"`
	OwnerID  string `json:"owner_id,omitempty" env:"NEWERA_OWNER_ID"`
}

func DefaultConfig() *Config {
	return &Config{
		Transport: TransportTelegram,
		Telegram: TelegramConfig{
			EditRate: 1,
		},
		Paths: PathsConfig{
			DataDir: "~/.newera/data",
		},
		Dispatch: DispatchConfig{
			QueueSize: 64,
		},
		Plugins: PluginsConfig{
			Autoload:           true,
			CallTimeoutSeconds: 10,
			MaxSourceBytes:     1 << 20,
		},
		Backup: BackupConfig{
			Keep: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Redact: true,
		},
		Defaults: SessionDefaults{
			Prefix:   ".",
			Language: "ru",
		},
	}
}

// LoadConfig layers the JSON file, a .env file next to the working
// directory and the process environment over DefaultConfig. A missing file
// is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportTelegram, TransportConsole:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if c.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("dispatch.queue_size must be positive")
	}
	if c.Dispatch.HandlerTimeoutSeconds < 0 {
		return fmt.Errorf("dispatch.handler_timeout_seconds must not be negative")
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// PluginCallTimeout bounds a single call into plugin code.
func (c *Config) PluginCallTimeout() time.Duration {
	return time.Duration(c.Plugins.CallTimeoutSeconds) * time.Second
}

// HandlerTimeout returns the per-handler deadline, zero meaning none.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Dispatch.HandlerTimeoutSeconds) * time.Second
}

func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Paths.DataDir)
}

func (c *Config) PluginsPath() string { return filepath.Join(c.DataPath(), "plugins") }
func (c *Config) BackupsPath() string { return filepath.Join(c.DataPath(), "backups") }
func (c *Config) TempPath() string    { return filepath.Join(c.DataPath(), "tmp") }
func (c *Config) DBPath() string      { return filepath.Join(c.DataPath(), "newera.db") }

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
