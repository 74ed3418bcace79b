package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsDispatchInOrder(t *testing.T) {
	es := NewEventSystem(8)

	var got []uint32
	es.Register(EVENT_CODE_RESIZED, func(context EventContext) {
		got = append(got, context.Data.(*ResizeEvent).Width)
	})
	quit := 0
	es.Register(EVENT_CODE_APPLICATION_QUIT, func(EventContext) { quit++ })

	require.NoError(t, es.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &ResizeEvent{Width: 10}}))
	require.NoError(t, es.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &ResizeEvent{Width: 20}}))
	require.NoError(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	require.NoError(t, es.Fire(EventContext{Type: EVENT_CODE_CONFIG_RELOADED}))

	assert.Empty(t, got)
	assert.Equal(t, 4, es.Dispatch())
	assert.Equal(t, []uint32{10, 20}, got)
	assert.Equal(t, 1, quit)
	assert.Equal(t, 0, es.Dispatch())
}

func TestEventsFireFromGoroutines(t *testing.T) {
	es := NewEventSystem(100)
	count := 0
	es.Register(EVENT_CODE_APPLICATION_QUIT, func(EventContext) { count++ })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, es.Dispatch())
	assert.Equal(t, 100, count)
}

func TestEventsQueueFullAndShutdown(t *testing.T) {
	es := NewEventSystem(1)
	require.NoError(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	assert.ErrorIs(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}), ErrEventQueueFull)

	require.NoError(t, es.Shutdown())
	assert.Equal(t, 0, es.Dispatch())
	assert.Error(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
}
