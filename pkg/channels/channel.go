// Package channels connects the bot to a messaging transport.
package channels

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
)

// ErrTransport wraps failures reported by the underlying transport.
var ErrTransport = errors.New("transport error")

// Channel is one transport session. Start publishes owner messages to the
// bus until ctx is cancelled, Disconnect is called or the transport fails;
// Done is closed when that happens.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Edit(ctx context.Context, evt bus.Event, text string) error
	Download(ctx context.Context, doc bus.Document, dir string) (string, error)
	Self(ctx context.Context) (bus.Identity, error)
	Disconnect(ctx context.Context) error
	Done() <-chan struct{}
}

// BaseChannel carries the state shared by all transports.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	running atomic.Bool

	doneOnce sync.Once
	done     chan struct{}
}

func NewBaseChannel(name string, mb *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: mb, done: make(chan struct{})}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) setRunning(v bool) { c.running.Store(v) }

// Done is closed once the channel stops delivering events.
func (c *BaseChannel) Done() <-chan struct{} { return c.done }

func (c *BaseChannel) markDone() {
	c.setRunning(false)
	c.doneOnce.Do(func() { close(c.done) })
}

// publish hands evt to the dispatcher.
func (c *BaseChannel) publish(ctx context.Context, evt bus.Event) bool {
	evt.Channel = c.name
	return c.bus.PublishInbound(ctx, evt)
}
