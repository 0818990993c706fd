package core

import (
	"sync"
)

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// The engine configuration file changed on disk and was reloaded.
	/* Context usage:
	 * cfg := context.Data.(*config.EngineConfig)
	 */
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x02

	// The graphics device was lost mid-frame.
	EVENT_CODE_DEVICE_LOST SystemEventCode = 0x03

	// The host recreated the graphics device after a loss.
	EVENT_CODE_DEVICE_RECREATED SystemEventCode = 0x04

	// Swap chain surface expired and must be rebuilt.
	EVENT_CODE_SURFACE_EXPIRED SystemEventCode = 0x05

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// Should return true if the event was handled and must not propagate further.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus is the process-wide event dispatch table. It is created once by
// the engine and injected into the subsystems that need it.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

// Register a listener/callback pair for the given code. Duplicate
// listener registrations for the same code are rejected.
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, e := range eb.registered[code] {
		if e.listener == listener {
			LogWarn("event listener already registered for code %d", code)
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes a previously registered listener. Returns false if no
// matching registration is found.
func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire dispatches the event to listeners of its code, in registration
// order. If a handler returns true the event is considered handled and is
// not passed to the remaining listeners.
func (eb *EventBus) Fire(context EventContext) bool {
	eb.mu.RLock()
	events := make([]*registeredEvent, len(eb.registered[context.Type]))
	copy(events, eb.registered[context.Type])
	eb.mu.RUnlock()

	for _, e := range events {
		if e.callback(context) {
			return true
		}
	}
	return false
}
