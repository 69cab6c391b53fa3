package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.True(t, cmd.HasAlias("r"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("console"))
	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)
}

func TestNewChannel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = t.TempDir()
	mb := bus.NewMessageBus()

	ch, err := newChannel(cfg, store.Session{Transport: config.TransportConsole, Prefix: "."}, mb)
	require.NoError(t, err)
	assert.Equal(t, config.TransportConsole, ch.Name())

	_, err = newChannel(cfg, store.Session{Transport: config.TransportTelegram, Secret: "1:x", OwnerID: "me"}, mb)
	assert.ErrorContains(t, err, "invalid owner id")

	_, err = newChannel(cfg, store.Session{Transport: "irc"}, mb)
	assert.Error(t, err)
}
