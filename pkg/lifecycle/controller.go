// Package lifecycle owns the running bot: its registry, plugin table,
// dispatcher and transport, from startup to stop or restart.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/backup"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/channels"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands/builtin"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/i18n"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
	luart "github.com/Karniz-UI/NewEraV4Fix/pkg/plugin/lua"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/sysinfo"
)

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeStop Outcome = iota
	OutcomeRestart
	OutcomeDisconnected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStop:
		return "stop"
	case OutcomeRestart:
		return "restart"
	case OutcomeDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ExitCode is the process status for o.
func (o Outcome) ExitCode() int {
	if o == OutcomeDisconnected {
		return 1
	}
	return 0
}

// Options wires a Controller. Config, Session, Store, Channel and Bus are
// required.
type Options struct {
	Config  *config.Config
	Session store.Session
	Store   *store.Store
	Channel channels.Channel
	Bus     *bus.MessageBus
	// ConfigPath is archived by backups when set.
	ConfigPath string
	// Runtime defaults to the sandboxed Lua runtime.
	Runtime plugin.Runtime
}

// Controller is the single owner of process state. It implements
// builtin.Runtime.
type Controller struct {
	cfg        *config.Config
	transport  string
	store      *store.Store
	channel    channels.Channel
	bus        *bus.MessageBus
	configPath string
	started    time.Time

	registry   *commands.Registry
	manager    *plugin.Manager
	dispatcher *commands.Dispatcher

	mu        sync.Mutex
	lang      string
	cancel    context.CancelFunc
	outcome   Outcome
	requested bool

	// backupMu serializes Backup and Clean across the builtin track and
	// the backup schedule.
	backupMu sync.Mutex

	shutdownOnce sync.Once
}

func New(opts Options) (*Controller, error) {
	if opts.Config == nil || opts.Store == nil || opts.Channel == nil || opts.Bus == nil {
		return nil, errors.New("lifecycle: config, store, channel and bus are required")
	}
	cfg := opts.Config
	prefix := opts.Session.Prefix
	if prefix == "" {
		prefix = cfg.Defaults.Prefix
	}

	rt := opts.Runtime
	if rt == nil {
		rt = luart.NewRuntime(cfg.PluginCallTimeout())
	}

	c := &Controller{
		cfg:        cfg,
		transport:  opts.Session.Transport,
		store:      opts.Store,
		channel:    opts.Channel,
		bus:        opts.Bus,
		configPath: opts.ConfigPath,
		started:    time.Now(),
		lang:       i18n.Normalize(opts.Session.Language),
		registry:   commands.NewRegistry(prefix),
	}
	if c.transport == "" {
		c.transport = opts.Channel.Name()
	}

	c.manager = plugin.NewManager(plugin.Options{
		Dir:            cfg.PluginsPath(),
		Runtime:        rt,
		Registry:       c.registry,
		Session:        opts.Channel,
		Recorder:       opts.Store,
		MaxSourceBytes: cfg.Plugins.MaxSourceBytes,
	})
	if err := builtin.Register(c.registry, c); err != nil {
		return nil, fmt.Errorf("register built-ins: %w", err)
	}
	c.dispatcher = commands.NewDispatcher(c.registry, opts.Channel,
		commands.WithQueueSize(cfg.Dispatch.QueueSize),
		commands.WithHandlerTimeout(cfg.HandlerTimeout()),
		commands.WithFaultFormatter(builtin.FaultFormatter(c.registry, c)),
	)
	return c, nil
}

func (c *Controller) Registry() *commands.Registry { return c.registry }

func (c *Controller) Manager() *plugin.Manager { return c.manager }

// Run connects the transport and dispatches owner events until stop,
// restart, a transport disconnect or ctx cancellation. Cancelling ctx
// counts as stop.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.channel.Start(runCtx); err != nil {
		return OutcomeDisconnected, fmt.Errorf("start %s: %w", c.channel.Name(), err)
	}
	logger.InfoCF("lifecycle", "Transport connected", map[string]any{
		"transport": c.channel.Name(),
		"prefix":    c.registry.Prefix(),
		"language":  c.Language(),
	})

	if c.cfg.Plugins.Autoload {
		c.autoload(runCtx)
	}
	c.startBackups(runCtx)

	go func() {
		select {
		case <-c.channel.Done():
			c.finish(OutcomeDisconnected)
		case <-runCtx.Done():
		}
	}()

	err := c.dispatcher.Run(runCtx, c.bus)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	c.mu.Lock()
	outcome := c.outcome
	c.mu.Unlock()
	logger.InfoCF("lifecycle", "Run loop ended", map[string]any{"outcome": outcome.String()})
	return outcome, err
}

// finish records the first requested outcome and ends the run loop.
func (c *Controller) finish(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.requested {
		c.requested = true
		c.outcome = o
	}
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) autoload(ctx context.Context) {
	records, err := c.store.Plugins(ctx)
	if err != nil {
		logger.WarnCF("lifecycle", "Cannot read plugin records", map[string]any{"error": err.Error()})
	}
	preferred := make([]string, 0, len(records))
	for _, rec := range records {
		preferred = append(preferred, rec.Name)
	}

	loaded, err := c.manager.Autoload(ctx, preferred)
	fields := map[string]any{"loaded": len(loaded)}
	if err != nil {
		fields["error"] = err.Error()
		logger.WarnCF("lifecycle", "Some plugins failed to autoload", fields)
		return
	}
	logger.InfoCF("lifecycle", "Plugins autoloaded", fields)
}

func (c *Controller) startBackups(ctx context.Context) {
	if c.cfg.Backup.Schedule == "" {
		return
	}
	sched, err := backup.NewScheduler(c.cfg.Backup.Schedule, func(ctx context.Context) {
		if _, err := c.Backup(ctx); err != nil {
			logger.ErrorCF("lifecycle", "Scheduled backup failed", map[string]any{"error": err.Error()})
		}
	})
	if err != nil {
		logger.WarnCF("lifecycle", "Backup schedule ignored", map[string]any{"error": err.Error()})
		return
	}
	go sched.Run(ctx)
}

// Shutdown tears down plugins, disconnects the transport and closes the
// store. It must run before a restart re-executes the process.
func (c *Controller) Shutdown(ctx context.Context) {
	c.shutdownOnce.Do(func() {
		c.manager.Close(ctx)
		if err := c.channel.Disconnect(ctx); err != nil {
			logger.WarnCF("lifecycle", "Disconnect failed", map[string]any{"error": err.Error()})
		}
		c.bus.Close()
		if err := c.store.Close(); err != nil {
			logger.WarnCF("lifecycle", "Store close failed", map[string]any{"error": err.Error()})
		}
		logger.InfoC("lifecycle", "Shutdown complete")
	})
}

func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

// SetLanguage persists code to the session row before switching.
func (c *Controller) SetLanguage(ctx context.Context, code string) error {
	if !i18n.Supported(code) {
		return fmt.Errorf("unsupported language %q", code)
	}
	if err := c.store.SetLanguage(ctx, c.transport, code); err != nil {
		return err
	}
	c.mu.Lock()
	c.lang = code
	c.mu.Unlock()
	return nil
}

func (c *Controller) Plugins() builtin.Plugins { return c.manager }

func (c *Controller) SystemInfo() sysinfo.Info { return sysinfo.Collect(c.started) }

func (c *Controller) Self(ctx context.Context) (bus.Identity, error) {
	return c.channel.Self(ctx)
}

func (c *Controller) Download(ctx context.Context, doc bus.Document) (string, error) {
	dir := c.cfg.TempPath()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return c.channel.Download(ctx, doc, dir)
}

// Backup archives the plugin directory, a database snapshot and the config
// file, then prunes old archives.
func (c *Controller) Backup(ctx context.Context) (string, error) {
	c.backupMu.Lock()
	defer c.backupMu.Unlock()

	if err := os.MkdirAll(c.cfg.TempPath(), 0o700); err != nil {
		return "", fmt.Errorf("snapshot dir: %w", err)
	}
	work, err := os.MkdirTemp(c.cfg.TempPath(), "snapshot-")
	if err != nil {
		return "", fmt.Errorf("snapshot dir: %w", err)
	}
	defer os.RemoveAll(work)

	snapshot := filepath.Join(work, filepath.Base(c.cfg.DBPath()))
	if err := c.store.Snapshot(ctx, snapshot); err != nil {
		return "", err
	}

	sources := []backup.Source{
		{Path: c.cfg.PluginsPath(), Name: "plugins"},
		{Path: snapshot, Name: filepath.Base(c.cfg.DBPath())},
	}
	if c.configPath != "" {
		sources = append(sources, backup.Source{Path: c.configPath, Name: filepath.Base(c.configPath)})
	}

	name, err := backup.Create(ctx, c.cfg.BackupsPath(), sources, time.Now())
	if err != nil {
		return "", err
	}
	if removed, err := backup.Prune(c.cfg.BackupsPath(), c.cfg.Backup.Keep); err != nil {
		logger.WarnCF("lifecycle", "Backup prune failed", map[string]any{"error": err.Error()})
	} else if removed > 0 {
		logger.DebugCF("lifecycle", "Old backups pruned", map[string]any{"removed": removed})
	}
	return name, nil
}

// Clean empties the temp dir. It waits for a running backup so the
// snapshot being archived is never removed.
func (c *Controller) Clean(context.Context) (int, error) {
	c.backupMu.Lock()
	defer c.backupMu.Unlock()
	return backup.CleanDir(c.cfg.TempPath())
}

func (c *Controller) Restart() { c.finish(OutcomeRestart) }

func (c *Controller) Stop() { c.finish(OutcomeStop) }
