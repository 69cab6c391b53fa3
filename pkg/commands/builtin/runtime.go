// Package builtin holds the administrative commands compiled into the core.
package builtin

import (
	"context"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/sysinfo"
)

// Plugins is the part of the plugin manager the built-ins drive.
// *plugin.Manager satisfies it.
type Plugins interface {
	Load(ctx context.Context, src []byte, name string) (plugin.Info, error)
	Unload(ctx context.Context, name string) bool
	List() []plugin.Info
	Extension() string
}

// Runtime gives built-ins access to process state owned by the lifecycle
// controller.
type Runtime interface {
	Language() string
	SetLanguage(ctx context.Context, code string) error
	Plugins() Plugins
	SystemInfo() sysinfo.Info
	Self(ctx context.Context) (bus.Identity, error)
	// Download fetches a document into the temp dir and returns its path.
	Download(ctx context.Context, doc bus.Document) (string, error)
	// Backup writes an archive and returns its file name.
	Backup(ctx context.Context) (string, error)
	// Clean empties the temp dir and returns how many files went away.
	Clean(ctx context.Context) (int, error)
	// Restart and Stop end the run loop. They return immediately.
	Restart()
	Stop()
}
