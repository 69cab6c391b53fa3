package builtin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands/builtin"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
	luart "github.com/Karniz-UI/NewEraV4Fix/pkg/plugin/lua"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/sysinfo"
)

const echoPlugin = `
function register(bot)
  bot.command("echo", function(evt)
    return evt.args[1]
  end, "repeat the text")
end
`

type fakeRuntime struct {
	mu        sync.Mutex
	lang      string
	manager   *plugin.Manager
	files     map[string]string
	tmp       string
	backupErr error
	restarts  int
	stops     int
	cleaned   int
}

func (f *fakeRuntime) Language() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lang
}

func (f *fakeRuntime) SetLanguage(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lang = code
	return nil
}

func (f *fakeRuntime) Plugins() builtin.Plugins { return f.manager }

func (f *fakeRuntime) SystemInfo() sysinfo.Info {
	return sysinfo.Info{Uptime: "00:01:02", RAM: "12.5%", Host: "box"}
}

func (f *fakeRuntime) Self(context.Context) (bus.Identity, error) {
	return bus.Identity{ID: "42", Username: "owner"}, nil
}

func (f *fakeRuntime) Download(_ context.Context, doc bus.Document) (string, error) {
	content, ok := f.files[doc.FileID]
	if !ok {
		return "", errors.New("no such file")
	}
	path := filepath.Join(f.tmp, doc.FileName)
	return path, os.WriteFile(path, []byte(content), 0o600)
}

func (f *fakeRuntime) Backup(context.Context) (string, error) {
	if f.backupErr != nil {
		return "", f.backupErr
	}
	return "backup_20260101_000000.zip", nil
}

func (f *fakeRuntime) Clean(context.Context) (int, error) { return f.cleaned, nil }

func (f *fakeRuntime) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
}

func (f *fakeRuntime) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

type lastReply struct {
	mu   sync.Mutex
	text map[string]string
}

func (l *lastReply) Edit(_ context.Context, evt bus.Event, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text[evt.ID] = text
	return nil
}

func (l *lastReply) get(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text[id]
}

type harness struct {
	reg     *commands.Registry
	rt      *fakeRuntime
	replies *lastReply
	d       *commands.Dispatcher
	dir     string
	n       int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	reg := commands.NewRegistry(".")
	rt := &fakeRuntime{
		lang:  "en",
		files: map[string]string{},
		tmp:   filepath.Join(root, "tmp"),
	}
	require.NoError(t, os.MkdirAll(rt.tmp, 0o700))
	rt.manager = plugin.NewManager(plugin.Options{
		Dir:      filepath.Join(root, "plugins"),
		Runtime:  luart.NewRuntime(2 * time.Second),
		Registry: reg,
		Session:  rt,
	})
	require.NoError(t, builtin.Register(reg, rt))

	replies := &lastReply{text: map[string]string{}}
	d := commands.NewDispatcher(reg, replies, commands.WithFaultFormatter(builtin.FaultFormatter(reg, rt)))
	return &harness{reg: reg, rt: rt, replies: replies, d: d, dir: filepath.Join(root, "plugins")}
}

func (h *harness) send(t *testing.T, evt bus.Event) (bool, string) {
	t.Helper()
	h.n++
	evt.ID = "e" + string(rune('a'+h.n))
	matched, _ := h.d.Handle(context.Background(), evt)
	return matched, h.replies.get(evt.ID)
}

func (h *harness) loadReply(t *testing.T, fileName, src string) string {
	t.Helper()
	h.rt.files[fileName] = src
	_, reply := h.send(t, bus.Event{
		Text:          ".lm",
		IsReply:       true,
		ReplyDocument: &bus.Document{FileID: fileName, FileName: fileName},
	})
	return reply
}

func TestRegisterAllBuiltins(t *testing.T) {
	h := newHarness(t)
	var names []string
	for _, def := range h.reg.List(commands.BuiltinOwner) {
		names = append(names, def.Name)
		assert.Equal(t, commands.BuiltinOwner, def.Owner)
	}
	assert.Equal(t, builtin.Names, names)
}

func TestHelpUsesPrefixAndLanguage(t *testing.T) {
	h := newHarness(t)
	_, reply := h.send(t, bus.Event{Text: ".help"})
	assert.Contains(t, reply, "`.ulm <name>`")
	assert.Contains(t, reply, "ru/en")

	h.rt.lang = "ru"
	_, reply = h.send(t, bus.Event{Text: ".help"})
	assert.Contains(t, reply, "Выгрузить модуль")
}

func TestInfoRendersBox(t *testing.T) {
	h := newHarness(t)
	_, reply := h.send(t, bus.Event{Text: ".info"})
	assert.Contains(t, reply, builtin.Title)
	assert.Contains(t, reply, "@owner")
	assert.Contains(t, reply, "12.5%")
	assert.Contains(t, reply, "box")
}

func TestEchoScenario(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Module echo loaded", h.loadReply(t, "echo.lua", echoPlugin))

	_, reply := h.send(t, bus.Event{Text: ".echo hi"})
	assert.Equal(t, "hi", reply)

	_, reply = h.send(t, bus.Event{Text: ".modules"})
	assert.Contains(t, reply, "**echo**: `.echo`")

	_, reply = h.send(t, bus.Event{Text: ".ulm echo"})
	assert.Equal(t, "Module echo unloaded", reply)

	matched, _ := h.send(t, bus.Event{Text: ".echo hi"})
	assert.False(t, matched)

	_, reply = h.send(t, bus.Event{Text: ".modules"})
	assert.Equal(t, "No modules loaded", reply)
	assert.NoFileExists(t, filepath.Join(h.dir, "echo.lua"))

	entries, err := os.ReadDir(h.rt.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "downloaded file must be removed")
}

func TestLoadModuleValidation(t *testing.T) {
	h := newHarness(t)

	_, reply := h.send(t, bus.Event{Text: ".lm"})
	assert.Equal(t, "Reply to a module file", reply)

	_, reply = h.send(t, bus.Event{Text: ".lm", IsReply: true})
	assert.Equal(t, "That is not a file", reply)

	_, reply = h.send(t, bus.Event{
		Text:          ".lm",
		IsReply:       true,
		ReplyDocument: &bus.Document{FileID: "x", FileName: "notes.txt"},
	})
	assert.Equal(t, "A .lua file is required", reply)

	_, reply = h.send(t, bus.Event{
		Text:          ".lm",
		IsReply:       true,
		ReplyDocument: &bus.Document{FileID: "missing", FileName: "gone.lua"},
	})
	assert.Equal(t, "Failed to load gone: download failed", reply)
}

func TestLoadModuleReasons(t *testing.T) {
	h := newHarness(t)

	reply := h.loadReply(t, "broken.lua", "function register(")
	assert.True(t, strings.HasPrefix(reply, "Failed to load broken: compile error"), reply)

	reply = h.loadReply(t, "empty.lua", "local x = 1")
	assert.Equal(t, "Failed to load empty: no register function", reply)

	reply = h.loadReply(t, "bad.name.lua", echoPlugin)
	assert.Equal(t, "Failed to load bad.name: invalid name", reply)

	reply = h.loadReply(t, "shadow.lua", `
function register(bot)
  bot.command("help", function() return "mine" end)
end`)
	assert.True(t, strings.HasPrefix(reply, "Failed to load shadow: command already taken"), reply)

	_, reply = h.send(t, bus.Event{Text: ".help"})
	assert.Contains(t, reply, "Show commands")
	assert.Empty(t, h.rt.manager.List())
}

func TestUnloadUnknown(t *testing.T) {
	h := newHarness(t)
	_, reply := h.send(t, bus.Event{Text: ".ulm ghost"})
	assert.Equal(t, "Module ghost not found", reply)

	matched, _ := h.send(t, bus.Event{Text: ".ulm"})
	assert.False(t, matched)
}

func TestSetLanguage(t *testing.T) {
	h := newHarness(t)
	_, reply := h.send(t, bus.Event{Text: ".setlang ru"})
	assert.Equal(t, "Язык изменен на RU", reply)
	assert.Equal(t, "ru", h.rt.Language())

	matched, _ := h.send(t, bus.Event{Text: ".setlang de"})
	assert.False(t, matched)
	assert.Equal(t, "ru", h.rt.Language())
}

func TestLifecycleCommands(t *testing.T) {
	h := newHarness(t)
	_, reply := h.send(t, bus.Event{Text: ".restart"})
	assert.Equal(t, "Restarting...", reply)
	_, reply = h.send(t, bus.Event{Text: ".stop"})
	assert.Equal(t, "Stopping...", reply)
	assert.Equal(t, 1, h.rt.restarts)
	assert.Equal(t, 1, h.rt.stops)
}

func TestBackupAndClean(t *testing.T) {
	h := newHarness(t)
	_, reply := h.send(t, bus.Event{Text: ".backup"})
	assert.Equal(t, "Backup created: backup_20260101_000000.zip", reply)

	h.rt.backupErr = errors.New("disk full")
	_, reply = h.send(t, bus.Event{Text: ".backup"})
	assert.Equal(t, "Backup failed", reply)

	h.rt.cleaned = 3
	_, reply = h.send(t, bus.Event{Text: ".clean"})
	assert.Equal(t, "Temp files cleaned: 3 files", reply)
}

func TestFaultFormatter(t *testing.T) {
	h := newHarness(t)
	format := builtin.FaultFormatter(h.reg, h.rt)
	msg := format(bus.Event{}, "echo", errors.New("boom"))
	assert.Equal(t, "Command .echo failed\n`boom`", msg)

	msg = format(bus.Event{}, `^hello$`, errors.New("boom"))
	assert.True(t, strings.HasPrefix(msg, "Command ^hello$ failed"))
}
