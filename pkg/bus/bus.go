package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus carries owner events from a transport to the dispatcher.
type MessageBus struct {
	inbound chan Event
	closed  bool
	mu      sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound: make(chan Event, size),
	}
}

// PublishInbound queues an event. It blocks while the buffer is full and
// returns false once the bus is closed or ctx is done.
func (mb *MessageBus) PublishInbound(ctx context.Context, evt Event) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	select {
	case mb.inbound <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// ConsumeInbound returns the next inbound event and whether the read succeeded.
// The bool is false when the context is cancelled or the channel is closed.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case evt, ok := <-mb.inbound:
		return evt, ok
	case <-ctx.Done():
		return Event{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
}
