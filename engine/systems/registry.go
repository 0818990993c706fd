package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

type registeredResource struct {
	resource renderer.NativeObject
	views    map[metadata.ViewDescription]*DescriptorHandle
	natives  map[metadata.ViewDescription]renderer.NativeObject
}

type ResourceRegistryConfig struct {
	// CurrentSlot reports the frame slot used when scheduling deferred
	// releases of a resource's descriptors.
	CurrentSlot func() metadata.FrameSlot
}

// ResourceRegistry maps resource identity to a registered resource plus a
// per-resource cache of view descriptions to descriptor handles. A
// resource has at most one registered identity at a time.
type ResourceRegistry struct {
	mu        sync.Mutex
	resources map[metadata.ResourceKey]*registeredResource

	allocator *DescriptorAllocator
	reclaimer *DeferredReclaimer
	graphics  renderer.Graphics
	slotOf    func() metadata.FrameSlot
}

func NewResourceRegistry(config *ResourceRegistryConfig, allocator *DescriptorAllocator, reclaimer *DeferredReclaimer, graphics renderer.Graphics) (*ResourceRegistry, error) {
	if allocator == nil {
		err := fmt.Errorf("func NewResourceRegistry - allocator must not be nil")
		core.LogError(err.Error())
		return nil, err
	}
	slotOf := config.CurrentSlot
	if slotOf == nil {
		slotOf = func() metadata.FrameSlot { return 0 }
	}
	return &ResourceRegistry{
		resources: make(map[metadata.ResourceKey]*registeredResource),
		allocator: allocator,
		reclaimer: reclaimer,
		graphics:  graphics,
		slotOf:    slotOf,
	}, nil
}

// Register binds a resource to its key. Fails if the key already exists.
func (rr *ResourceRegistry) Register(key metadata.ResourceKey, resource renderer.NativeObject) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, exists := rr.resources[key]; exists {
		err := fmt.Errorf("%w: key %#x already registered", core.ErrResourceRegistrationFailed, uint64(key))
		core.LogError(err.Error())
		return err
	}
	rr.resources[key] = &registeredResource{
		resource: resource,
		views:    make(map[metadata.ViewDescription]*DescriptorHandle),
		natives:  make(map[metadata.ViewDescription]renderer.NativeObject),
	}
	return nil
}

// Lookup returns the registered resource for a key.
func (rr *ResourceRegistry) Lookup(key metadata.ResourceKey) (renderer.NativeObject, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	r, ok := rr.resources[key]
	if !ok {
		return nil, false
	}
	return r.resource, true
}

// GetOrCreateView returns the cached handle for the view description,
// allocating a descriptor in the derived domain and populating the
// native view through the backend on first use.
func (rr *ResourceRegistry) GetOrCreateView(key metadata.ResourceKey, viewDesc metadata.ViewDescription) (*DescriptorHandle, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r, ok := rr.resources[key]
	if !ok {
		err := fmt.Errorf("%w: no resource with key %#x", core.ErrResourceRegistrationFailed, uint64(key))
		core.LogError(err.Error())
		return nil, err
	}
	if h, ok := r.views[viewDesc]; ok {
		return h, nil
	}

	h, err := rr.allocator.Allocate(viewDesc.ViewType, viewDesc.Visibility)
	if err != nil {
		return nil, err
	}
	if rr.graphics != nil {
		native, err := rr.graphics.CreateNativeView(r.resource, viewDesc)
		if err != nil {
			h.Release()
			return nil, err
		}
		r.natives[viewDesc] = native
	}
	r.views[viewDesc] = h
	return h, nil
}

// NativeView returns the backend view object cached for a description.
func (rr *ResourceRegistry) NativeView(key metadata.ResourceKey, viewDesc metadata.ViewDescription) (renderer.NativeObject, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	r, ok := rr.resources[key]
	if !ok {
		return nil, false
	}
	n, ok := r.natives[viewDesc]
	return n, ok
}

// Unregister drops the resource entry and schedules all its descriptor
// handles for deferred release on the current slot.
func (rr *ResourceRegistry) Unregister(key metadata.ResourceKey) error {
	rr.mu.Lock()
	r, ok := rr.resources[key]
	if ok {
		delete(rr.resources, key)
	}
	rr.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no resource with key %#x", core.ErrResourceRegistrationFailed, uint64(key))
	}

	handles := make([]*DescriptorHandle, 0, len(r.views))
	for _, h := range r.views {
		handles = append(handles, h)
	}
	if rr.reclaimer != nil {
		rr.reclaimer.Schedule(rr.slotOf(), func() {
			for _, h := range handles {
				h.Release()
			}
		})
	} else {
		for _, h := range handles {
			h.Release()
		}
	}
	return nil
}

// Count reports registered resources, for tests.
func (rr *ResourceRegistry) Count() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return len(rr.resources)
}

// Shutdown releases every cached view immediately.
func (rr *ResourceRegistry) Shutdown() error {
	rr.mu.Lock()
	resources := rr.resources
	rr.resources = make(map[metadata.ResourceKey]*registeredResource)
	rr.mu.Unlock()

	for _, r := range resources {
		for _, h := range r.views {
			h.Release()
		}
	}
	return nil
}
