package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/host"
)

func TestNotifier(t *testing.T) {
	n := host.NewNotifier(4)
	sent := []host.Notification{
		{Kind: host.GestureBegin, Index: 1},
		{Kind: host.ParamValue, Index: 1, Value: 0.5},
		{Kind: host.GestureEnd, Index: 1},
	}
	for _, v := range sent {
		assert.True(t, n.Post(v))
	}
	// capacity 4 holds 3 notifications.
	assert.False(t, n.Post(host.Notification{Kind: host.Changed, Flags: host.LatencyChanged}))

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan host.Notification, len(sent))
	done := make(chan struct{})
	go func() {
		n.Watch(ctx, time.Millisecond, func(v host.Notification) {
			received <- v
		})
		close(done)
	}()

	for _, expected := range sent {
		select {
		case v := <-received:
			assert.Equal(t, expected, v)
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}
	cancel()
	<-done
}

func TestNotifierDrainOnCancel(t *testing.T) {
	n := host.NewNotifier(8)
	n.Post(host.Notification{Kind: host.Changed, Flags: host.ParamInfoChanged | host.ProgramChanged})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var received []host.Notification
	n.Watch(ctx, time.Hour, func(v host.Notification) {
		received = append(received, v)
	})
	assert.Equal(t, 1, len(received))
	assert.Equal(t, "changed", received[0].Kind.String())
}
