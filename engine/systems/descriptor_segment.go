package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

var ErrSegmentFull = fmt.Errorf("descriptor segment full")

// DescriptorHeapSegment owns a contiguous range [baseIndex, baseIndex +
// capacity) of one (view type, visibility) domain. Allocation pops the
// free list, falling back to the bump cursor; both paths are O(1) under
// the per-segment mutex.
type DescriptorHeapSegment struct {
	mu sync.Mutex

	baseIndex      metadata.ShaderVisibleIndex
	capacity       uint32
	allocatedCount uint32
	bumpCursor     uint32

	// One bit per slot; set while allocated. Guards double release.
	allocationBitmap []uint64
	freeList         []uint32
}

func newDescriptorHeapSegment(baseIndex metadata.ShaderVisibleIndex, capacity uint32) *DescriptorHeapSegment {
	return &DescriptorHeapSegment{
		baseIndex:        baseIndex,
		capacity:         capacity,
		allocationBitmap: make([]uint64, (capacity+63)/64),
	}
}

func (s *DescriptorHeapSegment) BaseIndex() metadata.ShaderVisibleIndex {
	return s.baseIndex
}

func (s *DescriptorHeapSegment) Capacity() uint32 {
	return s.capacity
}

func (s *DescriptorHeapSegment) AllocatedCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocatedCount
}

func (s *DescriptorHeapSegment) IsFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocatedCount == s.capacity && len(s.freeList) == 0
}

// Allocate returns a local index within the segment, or ErrSegmentFull.
func (s *DescriptorHeapSegment) Allocate() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var local uint32
	if n := len(s.freeList); n > 0 {
		local = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
	} else if s.bumpCursor < s.capacity {
		local = s.bumpCursor
		s.bumpCursor++
	} else {
		return 0, ErrSegmentFull
	}

	s.allocationBitmap[local/64] |= 1 << (local % 64)
	s.allocatedCount++
	return local, nil
}

// Release validates the local index is in range and currently allocated,
// then returns it to the free list. Double release is rejected.
func (s *DescriptorHeapSegment) Release(local uint32) error {
	if err := s.beginRelease(local); err != nil {
		return err
	}
	s.requeue(local)
	return nil
}

// beginRelease clears the allocation bit and drops the count, but keeps
// the index off the free list until the releasing fence retires. Double
// release is rejected here.
func (s *DescriptorHeapSegment) beginRelease(local uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if local >= s.capacity {
		return fmt.Errorf("descriptor local index %d out of range (capacity %d)", local, s.capacity)
	}
	bit := uint64(1) << (local % 64)
	if s.allocationBitmap[local/64]&bit == 0 {
		return fmt.Errorf("descriptor local index %d released twice", local)
	}
	s.allocationBitmap[local/64] &^= bit
	s.allocatedCount--
	return nil
}

// requeue makes a released local index available to Allocate again.
// Called once the fence observed at release has retired.
func (s *DescriptorHeapSegment) requeue(local uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeList = append(s.freeList, local)
}

// isAllocated reports the bitmap state for tests.
func (s *DescriptorHeapSegment) isAllocated(local uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocationBitmap[local/64]&(1<<(local%64)) != 0
}
