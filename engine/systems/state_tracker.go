package systems

import (
	"sync"

	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

type subresourceKey struct {
	key metadata.ResourceKey
	sub uint32
}

// ResourceStateTracker maintains the logical GPU state per resource (or
// per subresource). Command recorders consult it so a transition to the
// already-tracked state emits no barrier.
type ResourceStateTracker struct {
	mu sync.Mutex
	// Whole-resource states; the common case.
	states map[metadata.ResourceKey]metadata.ResourceState
	// Per-subresource overrides, created on first subresource access.
	subStates map[subresourceKey]metadata.ResourceState
}

func NewResourceStateTracker() *ResourceStateTracker {
	return &ResourceStateTracker{
		states:    make(map[metadata.ResourceKey]metadata.ResourceState),
		subStates: make(map[subresourceKey]metadata.ResourceState),
	}
}

func (st *ResourceStateTracker) GetState(key metadata.ResourceKey, subresource uint32) metadata.ResourceState {
	st.mu.Lock()
	defer st.mu.Unlock()
	if subresource != metadata.AllSubresources {
		if s, ok := st.subStates[subresourceKey{key, subresource}]; ok {
			return s
		}
	}
	return st.states[key]
}

func (st *ResourceStateTracker) SetState(key metadata.ResourceKey, subresource uint32, state metadata.ResourceState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if subresource == metadata.AllSubresources {
		st.states[key] = state
		// A whole-resource transition collapses subresource overrides.
		for sk := range st.subStates {
			if sk.key == key {
				delete(st.subStates, sk)
			}
		}
		return
	}
	st.subStates[subresourceKey{key, subresource}] = state
}

// IsInState reports whether the whole resource is tracked in the given
// state.
func (st *ResourceStateTracker) IsInState(key metadata.ResourceKey, state metadata.ResourceState) bool {
	return st.GetState(key, metadata.AllSubresources) == state
}

// Forget drops all tracked state for a resource, used on unregistration.
func (st *ResourceStateTracker) Forget(key metadata.ResourceKey) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, key)
	for sk := range st.subStates {
		if sk.key == key {
			delete(st.subStates, sk)
		}
	}
}
