package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
)

func TestOwnerEventFiltersSender(t *testing.T) {
	msg := &telego.Message{
		MessageID: 10,
		Chat:      telego.Chat{ID: -100},
		From:      &telego.User{ID: 7},
		Text:      ".help",
	}
	_, ok := ownerEvent(msg, 8)
	assert.False(t, ok)
	_, ok = ownerEvent(&telego.Message{Text: "x"}, 8)
	assert.False(t, ok)
	_, ok = ownerEvent(nil, 8)
	assert.False(t, ok)

	evt, ok := ownerEvent(msg, 7)
	require.True(t, ok)
	assert.Equal(t, bus.Event{ChatID: "-100", MessageID: "10", SenderID: "7", Text: ".help"}, evt)
}

func TestOwnerEventCarriesReplyDocument(t *testing.T) {
	msg := &telego.Message{
		MessageID: 11,
		Chat:      telego.Chat{ID: 5},
		From:      &telego.User{ID: 7},
		Text:      ".lm",
		ReplyToMessage: &telego.Message{
			MessageID: 9,
			Document:  &telego.Document{FileID: "F1", FileName: "echo.lua", FileSize: 42, MimeType: "text/plain"},
		},
	}
	evt, ok := ownerEvent(msg, 7)
	require.True(t, ok)
	assert.True(t, evt.IsReply)
	assert.Equal(t, "9", evt.ReplyTo)
	require.NotNil(t, evt.ReplyDocument)
	assert.Equal(t, bus.Document{FileID: "F1", FileName: "echo.lua", Size: 42, MIMEType: "text/plain"}, *evt.ReplyDocument)
}

func TestOwnerEventUsesCaption(t *testing.T) {
	evt, ok := ownerEvent(&telego.Message{From: &telego.User{ID: 1}, Caption: ".info"}, 1)
	require.True(t, ok)
	assert.Equal(t, ".info", evt.Text)
}

func TestNewTelegramChannelValidates(t *testing.T) {
	mb := bus.NewMessageBus()
	_, err := NewTelegramChannel(config.TelegramConfig{}, "", 1, mb)
	assert.ErrorIs(t, err, ErrTransport)
	_, err = NewTelegramChannel(config.TelegramConfig{}, "123:abc", 0, mb)
	assert.ErrorIs(t, err, ErrTransport)
	_, err = NewTelegramChannel(config.TelegramConfig{Proxy: "://bad"}, "123:abc", 1, mb)
	assert.Error(t, err)
}

const testBotToken = "123456:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// fakeBotAPI serves getFile and the file download for one document.
func fakeBotAPI(t *testing.T, body string, advertised int64) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"file_id":"doc","file_unique_id":"u","file_size":%d,"file_path":"documents/mod.lua"}}`, advertised)
		case r.URL.Path == "/file/bot"+testBotToken+"/documents/mod.lua":
			fetches.Add(1)
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func TestTelegramDownloadHonoursLimit(t *testing.T) {
	body := strings.Repeat("-", 64)
	ctx := context.Background()

	newChannel := func(t *testing.T, srv *httptest.Server, limit int64) *TelegramChannel {
		t.Helper()
		ch, err := NewTelegramChannel(config.TelegramConfig{BaseURL: srv.URL}, testBotToken, 1, bus.NewMessageBus())
		require.NoError(t, err)
		ch.SetMaxDownloadBytes(limit)
		return ch
	}

	t.Run("within limit", func(t *testing.T) {
		srv, fetches := fakeBotAPI(t, body, 64)
		dir := t.TempDir()
		path, err := newChannel(t, srv, 128).Download(ctx, bus.Document{FileID: "doc", FileName: "mod.lua"}, dir)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("document size over limit", func(t *testing.T) {
		srv, fetches := fakeBotAPI(t, body, 64)
		_, err := newChannel(t, srv, 16).Download(ctx, bus.Document{FileID: "doc", FileName: "mod.lua", Size: 64}, t.TempDir())
		assert.ErrorIs(t, err, ErrTransport)
		assert.Zero(t, fetches.Load())
	})

	t.Run("advertised file size over limit", func(t *testing.T) {
		srv, fetches := fakeBotAPI(t, body, 64)
		_, err := newChannel(t, srv, 16).Download(ctx, bus.Document{FileID: "doc", FileName: "mod.lua"}, t.TempDir())
		assert.ErrorIs(t, err, ErrTransport)
		assert.Zero(t, fetches.Load())
	})

	t.Run("unadvertised body over limit", func(t *testing.T) {
		srv, _ := fakeBotAPI(t, body, 0)
		dir := t.TempDir()
		_, err := newChannel(t, srv, 16).Download(ctx, bus.Document{FileID: "doc", FileName: "mod.lua"}, dir)
		assert.ErrorIs(t, err, ErrTransport)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("no limit", func(t *testing.T) {
		srv, _ := fakeBotAPI(t, body, 64)
		path, err := newChannel(t, srv, 0).Download(ctx, bus.Document{FileID: "doc", FileName: "mod.lua", Size: 64}, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, ".lua", filepath.Ext(path))
	})
}
