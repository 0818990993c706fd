package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// DescriptorHandle is the owning wrapper around one bindless slot. It is
// either invalid or indexes exactly one segment whose (view type,
// visibility) matches its own. Release is idempotent.
type DescriptorHandle struct {
	allocator  *DescriptorAllocator
	segment    *DescriptorHeapSegment
	localIndex uint32
	viewType   metadata.ViewType
	visibility metadata.Visibility
	valid      bool
}

func (h *DescriptorHandle) IsValid() bool {
	return h != nil && h.valid
}

func (h *DescriptorHandle) ViewType() metadata.ViewType {
	return h.viewType
}

func (h *DescriptorHandle) Visibility() metadata.Visibility {
	return h.visibility
}

// ShaderVisibleIndex is stable for the lifetime of the handle.
func (h *DescriptorHandle) ShaderVisibleIndex() metadata.ShaderVisibleIndex {
	if !h.IsValid() {
		return metadata.InvalidShaderVisibleIndex
	}
	return h.segment.baseIndex + metadata.ShaderVisibleIndex(h.localIndex)
}

// Release returns the slot to its allocator. Safe to call more than
// once; only the first call has an effect.
func (h *DescriptorHandle) Release() {
	if !h.IsValid() {
		return
	}
	if err := h.allocator.Release(h); err != nil {
		core.LogError("descriptor release failed: %s", err.Error())
	}
}

// Move transfers ownership to a new handle, invalidating the receiver.
// The destination indexes exactly the same slot.
func (h *DescriptorHandle) Move() *DescriptorHandle {
	if !h.IsValid() {
		return &DescriptorHandle{}
	}
	moved := *h
	h.valid = false
	h.segment = nil
	h.allocator = nil
	return &moved
}

type descriptorDomain struct {
	heap     metadata.HeapDescription
	segments []*DescriptorHeapSegment
}

type allocatorDomainKey struct {
	viewType   metadata.ViewType
	visibility metadata.Visibility
}

type pendingDescriptorRelease struct {
	segment *DescriptorHeapSegment
	local   uint32
	fence   metadata.FenceValue
}

type DescriptorAllocatorConfig struct {
	Strategy metadata.DescriptorAllocationStrategy
	// FenceObserver reports the graphics queue fence value visible at
	// release time; released slots requeue after it retires. Optional:
	// without one, released slots requeue immediately.
	FenceObserver func() metadata.FenceValue
}

// DescriptorAllocator hands out bindless slots from lazily-created
// segments, one set per (view type, visibility) domain.
type DescriptorAllocator struct {
	strategy      metadata.DescriptorAllocationStrategy
	fenceObserver func() metadata.FenceValue

	mu       sync.Mutex
	domains  map[allocatorDomainKey]*descriptorDomain
	pending  []pendingDescriptorRelease
	graphics renderer.Graphics
}

func NewDescriptorAllocator(config *DescriptorAllocatorConfig, graphics renderer.Graphics) (*DescriptorAllocator, error) {
	if config.Strategy == nil {
		err := fmt.Errorf("func NewDescriptorAllocator - config.Strategy must not be nil")
		core.LogError(err.Error())
		return nil, err
	}
	return &DescriptorAllocator{
		strategy:      config.Strategy,
		fenceObserver: config.FenceObserver,
		domains:       make(map[allocatorDomainKey]*descriptorDomain),
		graphics:      graphics,
	}, nil
}

// Allocate returns a handle from the first non-full segment of the
// domain, creating a segment if the domain budget allows.
func (da *DescriptorAllocator) Allocate(viewType metadata.ViewType, visibility metadata.Visibility) (*DescriptorHandle, error) {
	da.mu.Lock()
	defer da.mu.Unlock()

	domain, err := da.domainLocked(viewType, visibility)
	if err != nil {
		return nil, err
	}

	for _, seg := range domain.segments {
		if local, err := seg.Allocate(); err == nil {
			return da.newHandle(seg, local, viewType, visibility), nil
		}
	}

	// All existing segments full; carve a new one if capacity remains.
	used := uint32(0)
	for _, seg := range domain.segments {
		used += seg.capacity
	}
	if used >= domain.heap.Capacity {
		err := fmt.Errorf("%w: domain (%s, %s) exhausted at %d descriptors",
			core.ErrDescriptorAllocationFailed, viewType, visibility, domain.heap.Capacity)
		core.LogError(err.Error())
		return nil, err
	}
	size := domain.heap.SegmentSize
	if remaining := domain.heap.Capacity - used; size > remaining {
		size = remaining
	}
	seg := newDescriptorHeapSegment(domain.heap.BaseShaderVisibleIndex+metadata.ShaderVisibleIndex(used), size)
	domain.segments = append(domain.segments, seg)

	local, err := seg.Allocate()
	if err != nil {
		return nil, fmt.Errorf("%w: fresh segment refused allocation", core.ErrDescriptorAllocationFailed)
	}
	return da.newHandle(seg, local, viewType, visibility), nil
}

func (da *DescriptorAllocator) newHandle(seg *DescriptorHeapSegment, local uint32, viewType metadata.ViewType, visibility metadata.Visibility) *DescriptorHandle {
	return &DescriptorHandle{
		allocator:  da,
		segment:    seg,
		localIndex: local,
		viewType:   viewType,
		visibility: visibility,
		valid:      true,
	}
}

func (da *DescriptorAllocator) domainLocked(viewType metadata.ViewType, visibility metadata.Visibility) (*descriptorDomain, error) {
	key := allocatorDomainKey{viewType, visibility}
	if d, ok := da.domains[key]; ok {
		return d, nil
	}
	heap, err := da.strategy.GetHeapDescription(viewType, visibility)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrDescriptorAllocationFailed, err.Error())
	}
	d := &descriptorDomain{heap: heap}
	da.domains[key] = d
	return d, nil
}

// Release validates the handle belongs to this allocator, drops the
// segment's allocation immediately, and defers the free-list requeue
// until the fence observed now retires, so in-flight GPU work keeps its
// descriptor.
func (da *DescriptorAllocator) Release(h *DescriptorHandle) error {
	if !h.IsValid() {
		return nil
	}
	if h.allocator != da {
		return fmt.Errorf("descriptor handle released on foreign allocator")
	}
	if err := h.segment.beginRelease(h.localIndex); err != nil {
		return err
	}
	h.valid = false

	if da.fenceObserver == nil {
		h.segment.requeue(h.localIndex)
		return nil
	}
	observed := da.fenceObserver()

	da.mu.Lock()
	da.pending = append(da.pending, pendingDescriptorRelease{
		segment: h.segment,
		local:   h.localIndex,
		fence:   observed,
	})
	da.mu.Unlock()
	return nil
}

// RetireCompleted requeues released slots whose observed fence has
// retired. Called at frame start.
func (da *DescriptorAllocator) RetireCompleted(completed metadata.FenceValue) {
	da.mu.Lock()
	remaining := da.pending[:0]
	var ready []pendingDescriptorRelease
	for _, p := range da.pending {
		if p.fence <= completed {
			ready = append(ready, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	da.pending = remaining
	da.mu.Unlock()

	for _, p := range ready {
		p.segment.requeue(p.local)
	}
}

// GetShaderVisibleIndex returns base_index + local_index for the handle.
func (da *DescriptorAllocator) GetShaderVisibleIndex(h *DescriptorHandle) metadata.ShaderVisibleIndex {
	return h.ShaderVisibleIndex()
}

// CopyDescriptor copies the native descriptor between two handles of the
// same view type.
func (da *DescriptorAllocator) CopyDescriptor(dst, src *DescriptorHandle) error {
	if !dst.IsValid() || !src.IsValid() {
		return fmt.Errorf("%w: copy with invalid handle", core.ErrDescriptorAllocationFailed)
	}
	if dst.viewType != src.viewType {
		return fmt.Errorf("%w: view type mismatch %s != %s",
			core.ErrDescriptorAllocationFailed, dst.viewType, src.viewType)
	}
	if da.graphics == nil {
		return nil
	}
	return da.graphics.CopyDescriptor(dst.ShaderVisibleIndex(), src.ShaderVisibleIndex(), dst.viewType)
}

// SegmentsForDomain exposes the domain's segments for tests.
func (da *DescriptorAllocator) SegmentsForDomain(viewType metadata.ViewType, visibility metadata.Visibility) []*DescriptorHeapSegment {
	da.mu.Lock()
	defer da.mu.Unlock()
	if d, ok := da.domains[allocatorDomainKey{viewType, visibility}]; ok {
		return d.segments
	}
	return nil
}
