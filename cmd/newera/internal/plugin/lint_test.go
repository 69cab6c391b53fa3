package plugin

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
)

func writePlugin(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func runLint(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewPluginCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	configPath := filepath.Join(t.TempDir(), "config.json")
	cmd.SetArgs(append([]string{"lint", "--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewLintSubcommand(t *testing.T) {
	cmd := newLintSubcommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lint <file.lua>", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.False(t, cmd.HasSubCommands())

	configFlag := cmd.Flags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, internal.GetConfigPath(), configFlag.DefValue)
}

func TestPluginLint_Valid(t *testing.T) {
	path := writePlugin(t, "greet.lua", `
function register(bot)
  bot.command("hi", function() return "hello" end, "say hello")
  return { hi = "say hello" }
end`)
	out, err := runLint(t, path)
	require.NoError(t, err)
	assert.Contains(t, out, "plugin greet: ok")
	assert.Contains(t, out, "command hi")
	assert.Contains(t, out, "manifest hi: say hello")
}

func TestPluginLint_CompileError(t *testing.T) {
	path := writePlugin(t, "broken.lua", "function register(")
	_, err := runLint(t, path)
	assert.ErrorContains(t, err, "plugin lint")
}

func TestPluginLint_ShadowsBuiltin(t *testing.T) {
	path := writePlugin(t, "shadow.lua", `
function register(bot)
  bot.command("help", function() return "x" end)
end`)
	_, err := runLint(t, path)
	assert.ErrorContains(t, err, "shadows a built-in")
}

func TestPluginLint_WrongExtension(t *testing.T) {
	path := writePlugin(t, "notes.txt", "x")
	_, err := runLint(t, path)
	assert.ErrorContains(t, err, "expected a .lua file")
}
