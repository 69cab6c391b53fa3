package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishConsumeOrder(t *testing.T) {
	mb := NewMessageBusSize(4)
	ctx := context.Background()

	require.True(t, mb.PublishInbound(ctx, Event{ID: "1", Text: ".help"}))
	require.True(t, mb.PublishInbound(ctx, Event{ID: "2", Text: ".info"}))

	first, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	second, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "2", second.ID)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	assert.False(t, mb.PublishInbound(context.Background(), Event{ID: "late"}))
	_, ok := mb.ConsumeInbound(context.Background())
	assert.False(t, ok)
}

func TestConsumeHonoursContext(t *testing.T) {
	mb := NewMessageBus()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := mb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestPublishHonoursContextWhenFull(t *testing.T) {
	mb := NewMessageBusSize(1)
	require.True(t, mb.PublishInbound(context.Background(), Event{ID: "fill"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, mb.PublishInbound(ctx, Event{ID: "blocked"}))
}
