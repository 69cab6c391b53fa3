package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

// Track names the serial queue a command runs on. Commands on different
// tracks run concurrently; commands on one track run in arrival order.
type Track string

const (
	TrackBuiltin Track = "builtin"
	TrackPlugin  Track = "plugin"
)

// Source yields owner events. *bus.MessageBus satisfies it.
type Source interface {
	ConsumeInbound(ctx context.Context) (bus.Event, bool)
}

// Replier edits the triggering message of an event.
type Replier interface {
	Edit(ctx context.Context, evt bus.Event, text string) error
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, evt bus.Event, text string) error

func (f ReplierFunc) Edit(ctx context.Context, evt bus.Event, text string) error {
	return f(ctx, evt, text)
}

// FaultFormatter renders the reply shown when a handler fails.
type FaultFormatter func(evt bus.Event, command string, err error) string

type Option func(*Dispatcher)

// WithQueueSize bounds each track's backlog. Dispatch blocks while a
// track is full.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithHandlerTimeout bounds every handler call. Zero disables the bound.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithFaultFormatter overrides the failure reply text.
func WithFaultFormatter(f FaultFormatter) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.fault = f
		}
	}
}

type job struct {
	evt   bus.Event
	match Match
}

// Dispatcher routes owner events to registered handlers.
type Dispatcher struct {
	reg       *Registry
	replier   Replier
	queueSize int
	timeout   time.Duration
	fault     FaultFormatter
}

func NewDispatcher(reg *Registry, replier Replier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:       reg,
		replier:   replier,
		queueSize: 64,
		fault: func(_ bus.Event, command string, err error) string {
			return fmt.Sprintf("Command %s failed: %v", command, err)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeText applies the text normalization used before matching.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimRight(text, " \t\n\r")
}

// TrackFor returns the track a definition runs on.
func TrackFor(def Definition) Track {
	if def.Owner == BuiltinOwner {
		return TrackBuiltin
	}
	return TrackPlugin
}

// Run consumes events until ctx is done or the source is closed. Jobs
// already queued when the source closes still run; jobs queued when ctx
// is cancelled are dropped.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	tracks := map[Track]chan job{
		TrackBuiltin: make(chan job, d.queueSize),
		TrackPlugin:  make(chan job, d.queueSize),
	}

	var wg sync.WaitGroup
	for name, queue := range tracks {
		wg.Add(1)
		go func(name Track, queue <-chan job) {
			defer wg.Done()
			d.work(ctx, name, queue)
		}(name, queue)
	}

	defer func() {
		for _, queue := range tracks {
			close(queue)
		}
		wg.Wait()
	}()

	for {
		evt, ok := src.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		match, ok := d.reg.Resolve(NormalizeText(evt.Text))
		if !ok {
			continue
		}
		track := TrackFor(match.Definition)
		select {
		case tracks[track] <- job{evt: evt, match: match}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, track Track, queue <-chan job) {
	for j := range queue {
		if ctx.Err() != nil {
			logger.DebugCF("dispatch", "Dropping queued command on shutdown", map[string]any{
				"track":   string(track),
				"command": j.match.Definition.Trigger(),
				"event":   j.evt.ID,
			})
			continue
		}
		if track == TrackPlugin {
			// The owner may have been unloaded or reloaded while queued.
			match, ok := d.reg.Resolve(NormalizeText(j.evt.Text))
			if !ok || TrackFor(match.Definition) != TrackPlugin {
				logger.DebugCF("dispatch", "Dropping command unregistered while queued", map[string]any{
					"command": j.match.Definition.Trigger(),
					"owner":   j.match.Definition.Owner,
					"event":   j.evt.ID,
				})
				continue
			}
			j.match = match
		}
		d.Invoke(ctx, j.evt, j.match)
	}
}

// Handle resolves and runs evt synchronously. It reports whether any
// definition matched.
func (d *Dispatcher) Handle(ctx context.Context, evt bus.Event) (bool, error) {
	match, ok := d.reg.Resolve(NormalizeText(evt.Text))
	if !ok {
		return false, nil
	}
	return true, d.Invoke(ctx, evt, match)
}

// Invoke runs one matched handler. Handler errors and panics are logged,
// answered with the fault reply and returned wrapped in ErrHandlerFault.
func (d *Dispatcher) Invoke(ctx context.Context, evt bus.Event, match Match) error {
	def := match.Definition
	hctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req := Request{
		Event:   evt,
		Command: def.Trigger(),
		Args:    match.Args,
		Reply: func(text string) error {
			return d.replier.Edit(hctx, evt, text)
		},
	}

	start := time.Now()
	err := callHandler(hctx, def.Handler, req)
	if err == nil {
		logger.DebugCF("dispatch", "Command handled", map[string]any{
			"command":  def.Trigger(),
			"owner":    def.Owner,
			"event":    evt.ID,
			"duration": time.Since(start).String(),
		})
		return nil
	}

	if errors.Is(err, ErrHandlerGone) {
		logger.DebugCF("dispatch", "Command owner unloaded before it ran", map[string]any{
			"command": def.Trigger(),
			"owner":   def.Owner,
			"event":   evt.ID,
		})
		return nil
	}

	logger.ErrorCF("dispatch", "Command failed", map[string]any{
		"command": def.Trigger(),
		"owner":   def.Owner,
		"event":   evt.ID,
		"error":   err.Error(),
	})
	if replyErr := d.replier.Edit(ctx, evt, d.fault(evt, def.Trigger(), err)); replyErr != nil {
		logger.WarnCF("dispatch", "Failed to deliver fault reply", map[string]any{
			"command": def.Trigger(),
			"error":   replyErr.Error(),
		})
	}
	return err
}

func callHandler(ctx context.Context, h Handler, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugCF("dispatch", "Handler panic stack", map[string]any{
				"command": req.Command,
				"stack":   string(debug.Stack()),
			})
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFault, r)
		}
	}()
	if err := h(ctx, req); err != nil {
		if errors.Is(err, ErrHandlerFault) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrHandlerFault, err)
	}
	return nil
}
