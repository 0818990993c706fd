package metadata

/** @brief An invalid 32-bit id. */
const InvalidID uint32 = 0xFFFFFFFF

/** @brief An invalid 64-bit id. */
const InvalidIDUint64 uint64 = 0xFFFFFFFFFFFFFFFF

// FrameSequenceNumber is the monotonic per-frame counter. It increments
// once per frame and is never reused.
type FrameSequenceNumber uint64

// FrameSlot identifies the current in-flight buffer set. Values cycle in
// [0, FramesInFlight).
type FrameSlot uint32

// Epoch is a monotonic counter tagged onto resources to detect staleness
// within a frame.
type Epoch uint64

// FenceValue is a monotonically increasing 64-bit value written by the GPU
// to signal completion of preceding commands on a queue.
type FenceValue uint64

// ResourceKey is the opaque identity of a registered resource, stable
// across frames.
type ResourceKey uint64

// BindlessHandle is an index into the global descriptor array, unique per
// (view type, visibility) domain and reusable after retirement.
type BindlessHandle uint32

// ShaderVisibleIndex is the subset of bindless handles addressable by
// shaders.
type ShaderVisibleIndex uint32

const InvalidShaderVisibleIndex ShaderVisibleIndex = ShaderVisibleIndex(InvalidID)

// QueueRole selects which hardware queue a submission targets.
type QueueRole uint8

const (
	QueueRoleGraphics QueueRole = iota
	QueueRoleCopy
	QueueRoleCompute
	QueueRoleCount
)

func (r QueueRole) String() string {
	switch r {
	case QueueRoleGraphics:
		return "graphics"
	case QueueRoleCopy:
		return "copy"
	case QueueRoleCompute:
		return "compute"
	}
	return "unknown"
}
