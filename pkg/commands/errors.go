package commands

import "errors"

var (
	// ErrCollision is returned when a trigger is already owned by
	// another registration.
	ErrCollision = errors.New("command collision")
	// ErrInvalidDefinition is returned for definitions that cannot be
	// compiled into a trigger.
	ErrInvalidDefinition = errors.New("invalid command definition")
	// ErrHandlerFault wraps panics and errors raised by handlers.
	ErrHandlerFault = errors.New("command handler fault")
	// ErrHandlerGone is returned by handlers whose owner was unloaded
	// after the command was queued. The dispatcher drops such commands
	// without a fault reply.
	ErrHandlerGone = errors.New("command handler is gone")
)
