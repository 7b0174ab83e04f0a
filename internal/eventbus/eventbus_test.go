package eventbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"canvasflow/internal/eventbus"
)

type ping struct{ n int }
type pong struct{ s string }

func TestPublishByType(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var pings []int
	var pongs []string
	eventbus.Subscribe(func(_ context.Context, e ping) { pings = append(pings, e.n) })
	eventbus.Subscribe(func(_ context.Context, e pong) { pongs = append(pongs, e.s) })

	ctx := context.Background()
	eventbus.Publish(ctx, ping{1})
	eventbus.Publish(ctx, pong{"a"})
	eventbus.Publish(ctx, ping{2})

	assert.Equal(t, []int{1, 2}, pings)
	assert.Equal(t, []string{"a"}, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var first, second int
	unsub := eventbus.Subscribe(func(context.Context, ping) { first++ })
	eventbus.Subscribe(func(context.Context, ping) { second++ })

	eventbus.Publish(context.Background(), ping{})
	unsub()
	eventbus.Publish(context.Background(), ping{})

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestNoBusInstalled(t *testing.T) {
	eventbus.Use(nil)
	called := false
	unsub := eventbus.Subscribe(func(context.Context, ping) { called = true })
	eventbus.Publish(context.Background(), ping{})
	unsub()
	assert.False(t, called)
}
