package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/interfaces"
)

func TestSubscribeNilHandler(t *testing.T) {
	s := NewService(arbor.NewLogger())
	assert.Error(t, s.Subscribe(interfaces.EventJobLog, nil))
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var calls atomic.Int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	}
	require.NoError(t, s.Subscribe(interfaces.EventJobCompleted, handler))
	require.NoError(t, s.Subscribe(interfaces.EventJobCompleted, handler))

	require.NoError(t, s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobCompleted}))

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPublishIgnoresUnrelatedEventTypes(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var calls atomic.Int32
	require.NoError(t, s.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobLog}))
	assert.Equal(t, int32(0), calls.Load())
}

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var done atomic.Bool
	require.NoError(t, s.Subscribe(interfaces.EventJobLog, func(ctx context.Context, event interfaces.Event) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	}))

	require.NoError(t, s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobLog}))
	assert.True(t, done.Load())
}

func TestCloseDropsSubscribers(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var calls atomic.Int32
	require.NoError(t, s.Subscribe(interfaces.EventJobLog, func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, s.Close())
	require.NoError(t, s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobLog}))
	assert.Equal(t, int32(0), calls.Load())
}
