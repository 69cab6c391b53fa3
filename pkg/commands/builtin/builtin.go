package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/i18n"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/sysinfo"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/utils"
)

// Title heads the info box.
const Title = "NewEraV4Fix"

const maxErrorDetail = 300

var commandName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// Names lists the built-in commands in help order.
var Names = []string{"help", "info", "lm", "ulm", "modules", "setlang", "restart", "stop", "backup", "clean"}

type commandSet struct {
	reg *commands.Registry
	rt  Runtime
}

// Definitions returns every built-in bound to rt.
func Definitions(reg *commands.Registry, rt Runtime) []commands.Definition {
	c := &commandSet{reg: reg, rt: rt}
	return []commands.Definition{
		{Name: "help", Description: "Show commands", Handler: c.help},
		{Name: "info", Description: "System information", Handler: c.info},
		{Name: "lm", Description: "Load module (reply to file)", Handler: c.loadModule},
		{Name: "ulm", Args: `\s+(\S+)`, Usage: "ulm <name>", Description: "Unload module", Handler: c.unloadModule},
		{Name: "modules", Description: "Modules list", Handler: c.modules},
		{Name: "setlang", Args: languageArgs(), Usage: "setlang <" + strings.Join(i18n.Codes(), "|") + ">", Description: "Change language", Handler: c.setLanguage},
		{Name: "restart", Description: "Restart", Handler: c.restart},
		{Name: "stop", Description: "Stop", Handler: c.stop},
		{Name: "backup", Description: "Create backup", Handler: c.backup},
		{Name: "clean", Description: "Clean temp files", Handler: c.clean},
	}
}

// Register adds the built-ins to reg under commands.BuiltinOwner.
func Register(reg *commands.Registry, rt Runtime) error {
	return reg.RegisterAll(commands.BuiltinOwner, Definitions(reg, rt))
}

// FaultFormatter renders handler failures in the current language.
func FaultFormatter(reg *commands.Registry, rt Runtime) commands.FaultFormatter {
	return func(_ bus.Event, command string, err error) string {
		name := command
		if commandName.MatchString(command) {
			name = reg.Prefix() + command
		}
		return i18n.Text(rt.Language(), i18n.CommandFailed, name) +
			"\n`" + utils.Truncate(err.Error(), maxErrorDetail) + "`"
	}
}

func languageArgs() string {
	codes := i18n.Codes()
	quoted := make([]string, len(codes))
	for i, code := range codes {
		quoted[i] = regexp.QuoteMeta(code)
	}
	return `\s+(` + strings.Join(quoted, "|") + `)`
}

func (c *commandSet) text(key string, args ...any) string {
	return i18n.Text(c.rt.Language(), key, args...)
}

func (c *commandSet) help(_ context.Context, req commands.Request) error {
	return req.Reply(i18n.Help(c.rt.Language(), c.reg.Prefix()))
}

func (c *commandSet) info(ctx context.Context, req commands.Request) error {
	user := sysinfo.Unknown
	if self, err := c.rt.Self(ctx); err == nil {
		user = self.Display()
	} else {
		logger.WarnCF("builtin", "Cannot resolve own identity", map[string]any{"error": err.Error()})
	}
	labels := sysinfo.Labels{
		Uptime: c.text(i18n.Uptime),
		User:   c.text(i18n.User),
		RAM:    c.text(i18n.RAM),
		Host:   c.text(i18n.Host),
	}
	return req.Reply(sysinfo.Render(Title, labels, user, c.rt.SystemInfo()))
}

func (c *commandSet) loadModule(ctx context.Context, req commands.Request) error {
	evt := req.Event
	if !evt.IsReply {
		return req.Reply(c.text(i18n.ReplyToFile))
	}
	if evt.ReplyDocument == nil || evt.ReplyDocument.FileName == "" {
		return req.Reply(c.text(i18n.NotAFile))
	}

	ext := c.rt.Plugins().Extension()
	doc := *evt.ReplyDocument
	fileName := filepath.Base(doc.FileName)
	if !strings.EqualFold(filepath.Ext(fileName), ext) {
		return req.Reply(c.text(i18n.NeedLuaFile, ext))
	}
	name := fileName[:len(fileName)-len(ext)]

	if err := req.Reply(c.text(i18n.ModuleLoading)); err != nil {
		return err
	}

	path, err := c.rt.Download(ctx, doc)
	if err != nil {
		logger.WarnCF("builtin", "Module download failed", map[string]any{
			"file":  doc.FileName,
			"error": err.Error(),
		})
		return req.Reply(c.text(i18n.ModuleLoadFailed, name, c.text(i18n.ReasonDownload)))
	}
	defer os.Remove(path)

	src, err := os.ReadFile(path)
	if err != nil {
		return req.Reply(c.text(i18n.ModuleLoadFailed, name, c.text(i18n.ReasonDownload)))
	}

	info, err := c.rt.Plugins().Load(ctx, src, name)
	if err != nil {
		return req.Reply(c.text(i18n.ModuleLoadFailed, name, c.reason(err)))
	}
	return req.Reply(c.text(i18n.ModuleLoaded, info.Name))
}

// reason maps a load failure to its localized explanation.
func (c *commandSet) reason(err error) string {
	detail := "\n`" + utils.Truncate(err.Error(), maxErrorDetail) + "`"
	switch {
	case errors.Is(err, plugin.ErrInvalidName):
		return c.text(i18n.ReasonInvalidName)
	case errors.Is(err, plugin.ErrNotAPlugin):
		return c.text(i18n.ReasonNotAPlugin)
	case errors.Is(err, commands.ErrCollision):
		return c.text(i18n.ReasonCollision) + detail
	case errors.Is(err, plugin.ErrCompile):
		return c.text(i18n.ReasonCompile) + detail
	default:
		return utils.Truncate(err.Error(), maxErrorDetail)
	}
}

func (c *commandSet) unloadModule(ctx context.Context, req commands.Request) error {
	name := strings.TrimSpace(req.Arg(0))
	if c.rt.Plugins().Unload(ctx, name) {
		return req.Reply(c.text(i18n.ModuleUnloaded, name))
	}
	return req.Reply(c.text(i18n.ModuleNotFound, name))
}

func (c *commandSet) modules(_ context.Context, req commands.Request) error {
	loaded := c.rt.Plugins().List()
	if len(loaded) == 0 {
		return req.Reply(c.text(i18n.NoModules))
	}

	var b strings.Builder
	b.WriteString(c.text(i18n.ModulesList))
	b.WriteString("\n")
	for _, info := range loaded {
		var triggers []string
		for _, def := range c.reg.List(info.Name) {
			if def.Name != "" {
				triggers = append(triggers, "`"+c.reg.Prefix()+def.Name+"`")
			} else {
				triggers = append(triggers, "`"+def.Pattern+"`")
			}
		}
		fmt.Fprintf(&b, "\n• **%s**", info.Name)
		if len(triggers) > 0 {
			b.WriteString(": " + strings.Join(triggers, ", "))
		}
	}
	return req.Reply(b.String())
}

func (c *commandSet) setLanguage(ctx context.Context, req commands.Request) error {
	code := req.Arg(0)
	if err := c.rt.SetLanguage(ctx, code); err != nil {
		return err
	}
	return req.Reply(i18n.Text(code, i18n.LangChanged, strings.ToUpper(code)))
}

func (c *commandSet) restart(_ context.Context, req commands.Request) error {
	if err := req.Reply(c.text(i18n.Restarting)); err != nil {
		logger.WarnCF("builtin", "Failed to announce restart", map[string]any{"error": err.Error()})
	}
	c.rt.Restart()
	return nil
}

func (c *commandSet) stop(_ context.Context, req commands.Request) error {
	if err := req.Reply(c.text(i18n.Stopping)); err != nil {
		logger.WarnCF("builtin", "Failed to announce stop", map[string]any{"error": err.Error()})
	}
	c.rt.Stop()
	return nil
}

func (c *commandSet) backup(ctx context.Context, req commands.Request) error {
	name, err := c.rt.Backup(ctx)
	if err != nil {
		logger.ErrorCF("builtin", "Backup failed", map[string]any{"error": err.Error()})
		return req.Reply(c.text(i18n.BackupFailed))
	}
	return req.Reply(c.text(i18n.BackupCreated, name))
}

func (c *commandSet) clean(ctx context.Context, req commands.Request) error {
	n, err := c.rt.Clean(ctx)
	if err != nil {
		return err
	}
	return req.Reply(c.text(i18n.TempCleaned, n))
}
