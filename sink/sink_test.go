package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink(t *testing.T) {
	s := NewChannelSink(2)
	ev := testutil.NewEventBuilder().Run("r1").Message(1, "Writer", "draft").Build()

	require.NoError(t, s.Publish(context.Background(), ev))
	got := <-s.Events()
	assert.Equal(t, ev.ID, got.ID)

	s.Close()
	s.Close()
	require.ErrorIs(t, s.Publish(context.Background(), ev), ErrClosed)

	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestChannelSink_BlocksUntilContextDone(t *testing.T) {
	s := NewChannelSink(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Publish(ctx, testutil.NewEventBuilder().Build())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiSink(t *testing.T) {
	var first, second []core.EventType
	failing := FuncSink(func(context.Context, core.Event) error { return errors.New("down") })

	m := MultiSink{
		FuncSink(func(_ context.Context, ev core.Event) error { first = append(first, ev.Type); return nil }),
		nil,
		failing,
		FuncSink(func(_ context.Context, ev core.Event) error { second = append(second, ev.Type); return nil }),
	}

	err := m.Publish(context.Background(), testutil.NewEventBuilder().Ended("FINISHED", 2, "").Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []core.EventType{core.EventRunEnded}, first)
	assert.Equal(t, first, second, "a failing sink must not stop the others")
}

func TestChannelSink_TryPublish(t *testing.T) {
	s := NewChannelSink(1)
	ev := testutil.NewEventBuilder().Build()

	assert.True(t, s.TryPublish(ev))
	assert.False(t, s.TryPublish(ev), "buffer is full")

	<-s.Events()
	s.Close()
	assert.False(t, s.TryPublish(ev))
}
