package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewEventBus()

	var order []string
	listenerA, listenerB := new(int), new(int)
	require.True(t, bus.Register(EVENT_CODE_DEVICE_LOST, listenerA, func(EventContext) bool {
		order = append(order, "a")
		return false
	}))
	require.True(t, bus.Register(EVENT_CODE_DEVICE_LOST, listenerB, func(EventContext) bool {
		order = append(order, "b")
		return false
	}))

	assert.False(t, bus.Fire(EventContext{Type: EVENT_CODE_DEVICE_LOST}))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestEventBusRejectsDuplicateListener(t *testing.T) {
	bus := NewEventBus()
	listener := new(int)

	require.True(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, listener, func(EventContext) bool { return false }))
	assert.False(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, listener, func(EventContext) bool { return false }))

	// The same listener may subscribe to a different code.
	assert.True(t, bus.Register(EVENT_CODE_DEVICE_LOST, listener, func(EventContext) bool { return false }))
}

func TestEventBusHandledEventStopsPropagation(t *testing.T) {
	bus := NewEventBus()
	reached := false
	bus.Register(EVENT_CODE_SURFACE_EXPIRED, new(int), func(EventContext) bool { return true })
	bus.Register(EVENT_CODE_SURFACE_EXPIRED, new(int), func(EventContext) bool {
		reached = true
		return false
	})

	assert.True(t, bus.Fire(EventContext{Type: EVENT_CODE_SURFACE_EXPIRED}))
	assert.False(t, reached)
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	listener := new(int)
	calls := 0
	bus.Register(EVENT_CODE_CONFIG_RELOADED, listener, func(EventContext) bool {
		calls++
		return false
	})

	bus.Fire(EventContext{Type: EVENT_CODE_CONFIG_RELOADED})
	require.True(t, bus.Unregister(EVENT_CODE_CONFIG_RELOADED, listener))
	bus.Fire(EventContext{Type: EVENT_CODE_CONFIG_RELOADED})
	assert.Equal(t, 1, calls)

	assert.False(t, bus.Unregister(EVENT_CODE_CONFIG_RELOADED, listener))
}

func TestEventContextCarriesData(t *testing.T) {
	bus := NewEventBus()
	var got interface{}
	bus.Register(EVENT_CODE_DEVICE_LOST, new(int), func(ctx EventContext) bool {
		got = ctx.Data
		return true
	})
	bus.Fire(EventContext{Type: EVENT_CODE_DEVICE_LOST, Data: "details"})
	assert.Equal(t, "details", got)
}

func TestFixedStepAccumulator(t *testing.T) {
	acc := NewFixedStepAccumulator(0.01, 4)
	assert.Equal(t, 0.01, acc.Step())

	assert.Equal(t, 0, acc.Advance(0.004))
	// Remainder carries: 4ms + 7ms covers one step with 1ms left.
	assert.Equal(t, 1, acc.Advance(0.007))
	assert.Equal(t, 0, acc.Advance(0.0))

	// A long stall clamps at maxTicks and drops the excess.
	assert.Equal(t, 4, acc.Advance(1.0))
	assert.Equal(t, 0, acc.Advance(0.009))
}
