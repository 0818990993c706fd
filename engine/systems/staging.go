package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// StagingAllocation is a CPU-writable window into an upload buffer. It is
// valid until the fence stamped at submission retires.
type StagingAllocation struct {
	Buffer renderer.Buffer
	Offset uint64
	Size   uint64
	Mapped []byte
}

type StagingStats struct {
	Capacity      uint64
	InFlightBytes uint64
	GrowEvents    uint32
}

// StagingProvider hands out transient upload memory. Allocations made
// between submits are tagged with the submission fence by
// NotifySubmitted and recycled once RetireCompleted observes that fence.
type StagingProvider interface {
	Allocate(size uint64, debugName string) (*StagingAllocation, error)
	NotifySubmitted(fence metadata.FenceValue)
	RetireCompleted(completed metadata.FenceValue)
	// OnSlotAdvance tells slot-partitioned providers which partition
	// serves the next allocations.
	OnSlotAdvance(slot metadata.FrameSlot)
	Stats() StagingStats
	Close() error
}

type stagingRange struct {
	begin uint64
	end   uint64
	// 0 until NotifySubmitted stamps the submission fence.
	fence metadata.FenceValue
}

type retiredBuffer struct {
	buffer  renderer.Buffer
	pending []stagingRange
}

// stagingArena is one growable linear staging buffer with fence-tracked
// ranges. All three provider policies are built on it.
type stagingArena struct {
	graphics renderer.Graphics
	name     string

	buffer   renderer.Buffer
	mapped   []byte
	capacity uint64
	head     uint64
	pending  []stagingRange
	// Replaced buffers kept alive until their ranges retire.
	graveyard  []retiredBuffer
	growEvents uint32
	// Multiplier applied on growth beyond the requested size.
	slack float64
}

func newStagingArena(graphics renderer.Graphics, name string, capacity uint64, slack float64) (*stagingArena, error) {
	a := &stagingArena{graphics: graphics, name: name, slack: slack}
	if err := a.recreate(capacity); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *stagingArena) recreate(capacity uint64) error {
	buf, err := a.graphics.CreateBuffer(renderer.BufferDesc{
		Name:      a.name,
		Size:      capacity,
		CPUAccess: true,
		Usage:     metadata.ResourceStateCopySource,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", metadata.ErrStagingAllocFailed, err.Error())
	}
	mapped, err := buf.Map(0, capacity)
	if err != nil {
		return fmt.Errorf("%w: %s", metadata.ErrStagingAllocFailed, err.Error())
	}
	a.buffer = buf
	a.mapped = mapped
	a.capacity = capacity
	a.head = 0
	a.pending = nil
	return nil
}

func (a *stagingArena) allocate(size uint64, debugName string) (*StagingAllocation, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-size staging request %q", metadata.ErrInvalidRequest, debugName)
	}
	offset := math.AlignUp(a.head, metadata.AlignmentBufferCopy)
	if offset+size > a.capacity {
		if err := a.grow(offset + size); err != nil {
			return nil, err
		}
		offset = 0
	}
	a.head = offset + size
	a.pending = append(a.pending, stagingRange{begin: offset, end: offset + size})
	return &StagingAllocation{
		Buffer: a.buffer,
		Offset: offset,
		Size:   size,
		Mapped: a.mapped[offset : offset+size],
	}, nil
}

// grow replaces the backing buffer. The old buffer moves to the
// graveyard until its submitted ranges retire; unsubmitted ranges on the
// old buffer stay valid because the buffer object remains mapped.
func (a *stagingArena) grow(needed uint64) error {
	newCapacity := math.AlignUp(uint64(float64(needed)*(1.0+a.slack)), metadata.AlignmentPlacement)
	if doubled := a.capacity * 2; doubled > newCapacity {
		newCapacity = doubled
	}
	core.LogDebug("staging arena %q growing %d -> %d bytes", a.name, a.capacity, newCapacity)

	a.graveyard = append(a.graveyard, retiredBuffer{buffer: a.buffer, pending: a.pending})
	a.growEvents++
	return a.recreate(newCapacity)
}

func (a *stagingArena) notifySubmitted(fence metadata.FenceValue) {
	for i := range a.pending {
		if a.pending[i].fence == 0 {
			a.pending[i].fence = fence
		}
	}
	for g := range a.graveyard {
		for i := range a.graveyard[g].pending {
			if a.graveyard[g].pending[i].fence == 0 {
				a.graveyard[g].pending[i].fence = fence
			}
		}
	}
}

func (a *stagingArena) retireCompleted(completed metadata.FenceValue) {
	a.pending = retireRanges(a.pending, completed)
	// Whole buffer reusable once nothing is outstanding.
	if len(a.pending) == 0 {
		a.head = 0
	}
	graveyard := a.graveyard[:0]
	for _, g := range a.graveyard {
		g.pending = retireRanges(g.pending, completed)
		if len(g.pending) > 0 {
			graveyard = append(graveyard, g)
		}
	}
	a.graveyard = graveyard
}

func retireRanges(ranges []stagingRange, completed metadata.FenceValue) []stagingRange {
	out := ranges[:0]
	for _, r := range ranges {
		if r.fence == 0 || r.fence > completed {
			out = append(out, r)
		}
	}
	return out
}

func (a *stagingArena) inFlightBytes() uint64 {
	total := uint64(0)
	for _, r := range a.pending {
		total += r.end - r.begin
	}
	return total
}

// SingleBufferStagingConfig configures the single growable buffer policy.
type SingleBufferStagingConfig struct {
	InitialCapacity uint64
	Slack           float64
}

// SingleBufferStaging is one growable mapped buffer with linear bump
// allocation; the whole buffer is reused once fully retired.
type SingleBufferStaging struct {
	mu    sync.Mutex
	arena *stagingArena
}

func NewSingleBufferStaging(config *SingleBufferStagingConfig, graphics renderer.Graphics) (*SingleBufferStaging, error) {
	if config.InitialCapacity == 0 {
		config.InitialCapacity = 4 << 20
	}
	arena, err := newStagingArena(graphics, "staging_single", config.InitialCapacity, config.Slack)
	if err != nil {
		return nil, err
	}
	return &SingleBufferStaging{arena: arena}, nil
}

func (p *SingleBufferStaging) Allocate(size uint64, debugName string) (*StagingAllocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arena.allocate(size, debugName)
}

func (p *SingleBufferStaging) NotifySubmitted(fence metadata.FenceValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arena.notifySubmitted(fence)
}

func (p *SingleBufferStaging) RetireCompleted(completed metadata.FenceValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arena.retireCompleted(completed)
}

func (p *SingleBufferStaging) OnSlotAdvance(metadata.FrameSlot) {}

func (p *SingleBufferStaging) Stats() StagingStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return StagingStats{
		Capacity:      p.arena.capacity,
		InFlightBytes: p.arena.inFlightBytes(),
		GrowEvents:    p.arena.growEvents,
	}
}

func (p *SingleBufferStaging) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arena.buffer.UnMap()
	return nil
}

// RingStagingConfig configures the per-slot partitioned policy.
type RingStagingConfig struct {
	Partitions        uint32
	PartitionCapacity uint64
	// Extra fraction allocated beyond the requested size on a grow
	// event when a partition is exhausted.
	Slack float64
}

// RingStaging partitions staging memory per frame slot; each partition
// owns its own head and grows with slack when exhausted.
type RingStaging struct {
	mu         sync.Mutex
	partitions []*stagingArena
	current    uint32
}

func NewRingStaging(config *RingStagingConfig, graphics renderer.Graphics) (*RingStaging, error) {
	if config.Partitions == 0 {
		err := fmt.Errorf("func NewRingStaging - config.Partitions must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.PartitionCapacity == 0 {
		config.PartitionCapacity = 2 << 20
	}
	rs := &RingStaging{}
	for i := uint32(0); i < config.Partitions; i++ {
		arena, err := newStagingArena(graphics, fmt.Sprintf("staging_ring_%d", i), config.PartitionCapacity, config.Slack)
		if err != nil {
			return nil, err
		}
		rs.partitions = append(rs.partitions, arena)
	}
	return rs, nil
}

func (p *RingStaging) Allocate(size uint64, debugName string) (*StagingAllocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.partitions[p.current].allocate(size, debugName)
}

func (p *RingStaging) NotifySubmitted(fence metadata.FenceValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range p.partitions {
		part.notifySubmitted(fence)
	}
}

func (p *RingStaging) RetireCompleted(completed metadata.FenceValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range p.partitions {
		part.retireCompleted(completed)
	}
}

func (p *RingStaging) OnSlotAdvance(slot metadata.FrameSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = uint32(slot) % uint32(len(p.partitions))
}

func (p *RingStaging) Stats() StagingStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := StagingStats{}
	for _, part := range p.partitions {
		stats.Capacity += part.capacity
		stats.InFlightBytes += part.inFlightBytes()
		stats.GrowEvents += part.growEvents
	}
	return stats
}

func (p *RingStaging) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range p.partitions {
		part.buffer.UnMap()
	}
	return nil
}

// NewDoubleBufferedStaging alternates two partitions per slot cycle.
func NewDoubleBufferedStaging(partitionCapacity uint64, graphics renderer.Graphics) (*RingStaging, error) {
	return NewRingStaging(&RingStagingConfig{
		Partitions:        2,
		PartitionCapacity: partitionCapacity,
		Slack:             0.5,
	}, graphics)
}
