package commands

import (
	"context"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
)

// BuiltinOwner owns every command shipped with the core. No plugin may
// use it as a name.
const BuiltinOwner = "builtin"

// Handler runs one matched command.
type Handler func(ctx context.Context, req Request) error

// Request is what a handler sees for one event.
type Request struct {
	Event bus.Event
	// Command is the Name of the matched definition, or its Pattern for
	// raw subscriptions.
	Command string
	// Args holds the capture groups of the trigger, in order.
	Args []string
	// Reply edits the triggering message in place. Calling it again
	// replaces the previous text.
	Reply func(text string) error
}

// Arg returns capture group i or "" when it does not exist.
func (r Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// Definition binds a trigger to a handler.
//
// A named command matches prefix+Name followed by Args, which is a regular
// expression fragment (empty means the command takes no arguments). A
// definition with no Name is a raw subscription and matches Pattern as is.
type Definition struct {
	Name        string
	Args        string
	Pattern     string
	Description string
	Usage       string
	Owner       string
	Handler     Handler
}

// Trigger returns the user-facing identity of the definition.
func (d Definition) Trigger() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Pattern
}
