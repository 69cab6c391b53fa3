package internal

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

func TestGetConfigPathHonoursEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	t.Setenv(config.EnvNewEraConfig, path)
	assert.Equal(t, path, GetConfigPath())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(config.EnvNewEraConfig, filepath.Join(t.TempDir(), "none.json"))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Defaults.Prefix)
}

func TestSetupLoggingDebug(t *testing.T) {
	prev := logger.GetLevel()
	defer logger.SetLevel(prev)

	cfg := config.DefaultConfig()
	require.NoError(t, SetupLogging(cfg, true))
	assert.Equal(t, logger.DEBUG, logger.GetLevel())

	cfg.Log.Level = "warn"
	require.NoError(t, SetupLogging(cfg, false))
	assert.Equal(t, logger.WARN, logger.GetLevel())
}

func TestExitError(t *testing.T) {
	inner := errors.New("gone")
	err := error(&ExitError{Code: 1, Err: inner})
	assert.ErrorIs(t, err, inner)
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.Equal(t, "exit 3", (&ExitError{Code: 3}).Error())
}

func TestBanner(t *testing.T) {
	assert.Contains(t, Banner(), "NewEraV4Fix")
	assert.Contains(t, Banner(), FormatVersion())
}
