package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/utils"
)

// Recorder persists the plugin table. *store.Store satisfies it.
type Recorder interface {
	RecordPlugin(ctx context.Context, name, path, checksum string, loadedAt time.Time) error
	ForgetPlugin(ctx context.Context, name string) error
}

// Options configures a Manager.
type Options struct {
	Dir      string
	Runtime  Runtime
	Registry *commands.Registry
	Session  Session
	Recorder Recorder
	// MaxSourceBytes rejects larger sources. Zero means no limit.
	MaxSourceBytes int64
}

type loaded struct {
	info Info
	unit Unit
	host *Host
}

// Manager owns the table of loaded plugins. Loads and unloads are
// serialized.
type Manager struct {
	mu      sync.Mutex
	opts    Options
	plugins map[string]*loaded
	order   []string
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts:    opts,
		plugins: make(map[string]*loaded),
	}
}

// Extension returns the artifact file extension.
func (m *Manager) Extension() string {
	return m.opts.Runtime.Extension()
}

// Dir returns the artifact directory.
func (m *Manager) Dir() string {
	return m.opts.Dir
}

// Load admits src as plugin name. Loading a name that is already loaded
// replaces it once the new source has registered successfully.
func (m *Manager) Load(ctx context.Context, src []byte, name string) (Info, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	if limit := m.opts.MaxSourceBytes; limit > 0 && int64(len(src)) > limit {
		return Info{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrCompile, name, len(src), limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for other := range m.plugins {
		if other != name && strings.EqualFold(other, name) {
			return Info{}, fmt.Errorf("%w: %q clashes with loaded plugin %q", ErrInvalidName, name, other)
		}
	}

	path := m.artifactPath(name)
	restore, err := writeArtifact(path, src)
	if err != nil {
		return Info{}, fmt.Errorf("store plugin %q: %w", name, err)
	}

	unit, err := m.opts.Runtime.Compile(ctx, name, src)
	if err != nil {
		restore()
		if !errors.Is(err, ErrCompile) {
			err = fmt.Errorf("%w: %w", ErrCompile, err)
		}
		m.logRejected(name, err)
		return Info{}, err
	}

	host := newHost(name, m.opts.Registry.Prefix(), m.opts.Session)
	manifest, err := safeRegister(ctx, unit, host)
	if err != nil {
		host.seal()
		_ = unit.Close()
		restore()
		m.logRejected(name, err)
		return Info{}, err
	}
	defs := host.seal()

	prev, reloading := m.plugins[name]
	if reloading {
		err = m.opts.Registry.Replace(name, defs)
	} else {
		err = m.opts.Registry.RegisterAll(name, defs)
	}
	if err != nil {
		m.teardown(ctx, name, unit, host)
		restore()
		m.logRejected(name, err)
		return Info{}, fmt.Errorf("register plugin %q: %w", name, err)
	}

	sum := sha256.Sum256(src)
	p := &loaded{
		info: Info{
			Name:     name,
			Path:     path,
			Checksum: hex.EncodeToString(sum[:]),
			LoadedAt: time.Now(),
			Manifest: manifest,
			Commands: triggers(defs),
		},
		unit: unit,
		host: host,
	}
	m.plugins[name] = p
	if !reloading {
		m.order = append(m.order, name)
	}

	if reloading {
		m.teardown(ctx, name, prev.unit, prev.host)
	}

	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.RecordPlugin(ctx, name, path, p.info.Checksum, p.info.LoadedAt); err != nil {
			logger.WarnCF("plugin", "Failed to record plugin", map[string]any{
				"plugin": name,
				"error":  err.Error(),
			})
		}
	}

	logger.InfoCF("plugin", "Plugin loaded", map[string]any{
		"plugin":   name,
		"commands": len(defs),
		"reload":   reloading,
		"checksum": p.info.Checksum[:12],
	})
	return cloneInfo(p.info), nil
}

// Unload removes plugin name and its artifact. It reports false when no
// such plugin is loaded.
func (m *Manager) Unload(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plugins[name]
	if !ok {
		return false
	}

	m.runTeardown(ctx, name, p.unit, p.host)
	removed := m.opts.Registry.UnregisterAll(name)
	m.closeUnit(name, p.unit)
	delete(m.plugins, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })

	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.ForgetPlugin(ctx, name); err != nil {
			logger.WarnCF("plugin", "Failed to forget plugin", map[string]any{
				"plugin": name,
				"error":  err.Error(),
			})
		}
	}
	if err := os.Remove(p.info.Path); err != nil && !os.IsNotExist(err) {
		logger.WarnCF("plugin", "Failed to delete plugin artifact", map[string]any{
			"plugin": name,
			"path":   p.info.Path,
			"error":  err.Error(),
		})
	}

	logger.InfoCF("plugin", "Plugin unloaded", map[string]any{
		"plugin":   name,
		"commands": removed,
	})
	return true
}

// Get returns the plugin called name.
func (m *Manager) Get(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plugins[name]
	if !ok {
		return Info{}, false
	}
	return cloneInfo(p.info), true
}

// List returns loaded plugins in load order.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, cloneInfo(m.plugins[name].info))
	}
	return out
}

// Autoload loads every artifact found in the plugin directory. Names in
// preferred go first, in that order; the rest follow alphabetically.
// Failures are logged, and returned joined, but do not stop the others.
func (m *Manager) Autoload(ctx context.Context, preferred []string) ([]string, error) {
	ext := m.Extension()
	entries, err := os.ReadDir(m.opts.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	found := make(map[string]bool)
	var rest []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		found[name] = true
		if !slices.Contains(preferred, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	var names []string
	for _, name := range preferred {
		if found[name] && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	names = append(names, rest...)

	var (
		loadedNames []string
		errs        []error
	)
	for _, name := range names {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		src, err := os.ReadFile(m.artifactPath(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("read plugin %q: %w", name, err))
			continue
		}
		if _, err := m.Load(ctx, src, name); err != nil {
			errs = append(errs, err)
			continue
		}
		loadedNames = append(loadedNames, name)
	}
	return loadedNames, errors.Join(errs...)
}

// Close tears down every plugin, newest first, and keeps the artifacts.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		p := m.plugins[name]
		m.opts.Registry.UnregisterAll(name)
		m.teardown(ctx, name, p.unit, p.host)
		delete(m.plugins, name)
	}
	m.order = nil
}

func (m *Manager) artifactPath(name string) string {
	return filepath.Join(m.opts.Dir, name+m.Extension())
}

func (m *Manager) teardown(ctx context.Context, name string, unit Unit, host *Host) {
	m.runTeardown(ctx, name, unit, host)
	m.closeUnit(name, unit)
}

func (m *Manager) runTeardown(ctx context.Context, name string, unit Unit, host *Host) {
	if unit.HasTeardown() {
		if err := safeCall(func() error { return unit.Unregister(ctx, host) }); err != nil {
			logger.WarnCF("plugin", "Plugin teardown failed", map[string]any{
				"plugin": name,
				"error":  err.Error(),
			})
		}
	}
}

func (m *Manager) closeUnit(name string, unit Unit) {
	if err := unit.Close(); err != nil {
		logger.WarnCF("plugin", "Failed to close plugin", map[string]any{
			"plugin": name,
			"error":  err.Error(),
		})
	}
}

func (m *Manager) logRejected(name string, err error) {
	logger.WarnCF("plugin", "Plugin rejected", map[string]any{
		"plugin": name,
		"error":  err.Error(),
	})
}

func safeRegister(ctx context.Context, unit Unit, host *Host) (manifest Manifest, err error) {
	err = safeCall(func() error {
		var rerr error
		manifest, rerr = unit.Register(ctx, host)
		return rerr
	})
	if err != nil && !errors.Is(err, ErrNotAPlugin) && !errors.Is(err, ErrCompile) {
		err = fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if manifest == nil {
		manifest = Manifest{}
	}
	return manifest, err
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugCF("plugin", "Plugin panic stack", map[string]any{"stack": string(debug.Stack())})
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// writeArtifact replaces path with src and returns a function that puts
// the previous content back.
func writeArtifact(path string, src []byte) (func(), error) {
	prev, err := os.ReadFile(path)
	hadPrev := err == nil
	if err := utils.WriteFileAtomic(path, src, 0o644, 0o755); err != nil {
		return nil, err
	}

	return func() {
		var rerr error
		if hadPrev {
			rerr = os.WriteFile(path, prev, 0o644)
		} else {
			rerr = os.Remove(path)
		}
		if rerr != nil && !os.IsNotExist(rerr) {
			logger.WarnCF("plugin", "Failed to roll back plugin artifact", map[string]any{
				"path":  path,
				"error": rerr.Error(),
			})
		}
	}, nil
}

func triggers(defs []commands.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Trigger())
	}
	return out
}

func cloneInfo(info Info) Info {
	info.Commands = slices.Clone(info.Commands)
	manifest := make(Manifest, len(info.Manifest))
	for k, v := range info.Manifest {
		manifest[k] = v
	}
	info.Manifest = manifest
	return info
}
