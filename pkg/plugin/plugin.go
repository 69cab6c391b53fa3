// Package plugin admits externally supplied scripts at runtime and binds
// their commands into the command registry.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
)

var (
	// ErrInvalidName is returned for names that are malformed, reserved
	// or clash with a loaded plugin spelled differently.
	ErrInvalidName = errors.New("invalid plugin name")
	// ErrCompile is returned when the source fails to compile or raises
	// while it is being admitted.
	ErrCompile = errors.New("plugin compile error")
	// ErrNotAPlugin is returned when the source has no register entry point.
	ErrNotAPlugin = errors.New("not a plugin")
	// ErrSealed is returned by Host methods once register has returned.
	ErrSealed = errors.New("plugin registrations are sealed")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Manifest maps command names to descriptions, as declared by a plugin.
type Manifest map[string]string

// Runtime compiles plugin sources into units.
type Runtime interface {
	// Extension is the artifact file extension, including the dot.
	Extension() string
	// Compile compiles src and runs its top level. Failures wrap ErrCompile.
	Compile(ctx context.Context, name string, src []byte) (Unit, error)
}

// Unit is one admitted plugin with its own interpreter.
type Unit interface {
	// Register calls the entry point. It returns ErrNotAPlugin when the
	// entry point is missing and wraps ErrCompile when it raises.
	Register(ctx context.Context, host *Host) (Manifest, error)
	HasTeardown() bool
	Unregister(ctx context.Context, host *Host) error
	Close() error
}

// Session is the part of the transport a plugin may reach directly.
type Session interface {
	Self(ctx context.Context) (bus.Identity, error)
}

// Host is handed to a plugin's register entry point. Registrations are
// staged and become visible only when the load commits.
type Host struct {
	name    string
	prefix  string
	session Session

	mu     sync.Mutex
	staged []commands.Definition
	sealed bool
}

func newHost(name, prefix string, session Session) *Host {
	return &Host{name: name, prefix: prefix, session: session}
}

// Name returns the plugin name.
func (h *Host) Name() string { return h.name }

// Prefix returns the command prefix.
func (h *Host) Prefix() string { return h.prefix }

// Self returns the identity of the signed-in account.
func (h *Host) Self(ctx context.Context) (bus.Identity, error) {
	if h.session == nil {
		return bus.Identity{}, errors.New("no session")
	}
	return h.session.Self(ctx)
}

// Command stages a prefixed command. args is a regular expression
// fragment matched after the name.
func (h *Host) Command(name, args, description string, fn commands.Handler) error {
	return h.stage(commands.Definition{
		Name:        name,
		Args:        args,
		Description: description,
		Handler:     fn,
	})
}

// Subscribe stages a raw pattern subscription.
func (h *Host) Subscribe(pattern string, fn commands.Handler) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("%w: pattern %q: %v", commands.ErrInvalidDefinition, pattern, err)
	}
	return h.stage(commands.Definition{Pattern: pattern, Handler: fn})
}

func (h *Host) stage(def commands.Definition) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return ErrSealed
	}
	def.Owner = h.name
	h.staged = append(h.staged, def)
	return nil
}

func (h *Host) seal() []commands.Definition {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sealed = true
	return append([]commands.Definition(nil), h.staged...)
}

// Info describes a loaded plugin.
type Info struct {
	Name     string
	Path     string
	Checksum string
	LoadedAt time.Time
	Manifest Manifest
	// Commands lists the triggers the plugin registered.
	Commands []string
}

// ValidateName checks the syntactic rules for a plugin name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.EqualFold(name, commands.BuiltinOwner) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}
