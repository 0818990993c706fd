package renderer

import (
	"time"

	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// NativeObject wraps a backend-specific handle (a D3D12 resource pointer,
// a headless mock id). The core never inspects it.
type NativeObject interface{}

type BufferDesc struct {
	Name      string
	Size      uint64
	CPUAccess bool
	Usage     metadata.ResourceState
}

type TextureDesc struct {
	Name      string
	Width     uint32
	Height    uint32
	Depth     uint32
	MipLevels uint32
	Format    uint32
	Usage     metadata.ResourceState
}

type Buffer interface {
	GetSize() uint64
	GetNativeResource() NativeObject
	// Map returns a writable window into the buffer. Only valid for
	// CPU-accessible buffers.
	Map(offset, size uint64) ([]byte, error)
	UnMap()
	GetGPUVirtualAddress() uint64
}

type Texture interface {
	GetSize() uint64
	GetNativeResource() NativeObject
	GetDesc() TextureDesc
}

type CommandList interface {
	Name() string
}

// CommandQueue is a single-producer submission queue; only the render
// thread submits. Fence values are monotonic per queue.
type CommandQueue interface {
	// Signal enqueues a signal of the next fence value and returns it.
	Signal() metadata.FenceValue
	SignalValue(value metadata.FenceValue) error
	Wait(value metadata.FenceValue) error
	WaitTimeout(value metadata.FenceValue, timeout time.Duration) error
	GetCompletedValue() metadata.FenceValue
	GetCurrentValue() metadata.FenceValue
	Submit(list CommandList) error
	SubmitAll(lists []CommandList) error
	GetQueueRole() metadata.QueueRole
}

// CommandRecorder accumulates commands and state transitions for one
// queue role.  Barriers are batched: TransitionResource only records a
// barrier when the tracked state actually changes, and pending barriers
// flush before any draw or dispatch and at End.
type CommandRecorder interface {
	SetPipelineState(pso NativeObject)
	SetComputeRoot32BitConstant(rootParameterIndex, value, destOffsetInValues uint32)
	SetComputeRootConstantBufferView(rootParameterIndex uint32, gpuAddress uint64)
	CopyBufferRegion(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)
	CopyTextureRegion(dst Texture, region metadata.TextureRegion, src Buffer, srcOffset uint64)
	TransitionResource(key metadata.ResourceKey, to metadata.ResourceState)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	// End closes the recorder and returns the command list ready for
	// submission. The recorder must not be reused afterwards.
	End() (CommandList, error)
}

// ResourceStateMap is the tracker consulted by recorders when deciding
// whether a transition needs a barrier. Implemented by the resource state
// tracker system.
type ResourceStateMap interface {
	GetState(key metadata.ResourceKey, subresource uint32) metadata.ResourceState
	SetState(key metadata.ResourceKey, subresource uint32, state metadata.ResourceState)
}

// Graphics is the backend abstraction consumed by the frame pipeline core.
// One concrete implementation exists per backend (D3D12, headless); a
// factory selects at init time.
type Graphics interface {
	Name() string
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateTexture(desc TextureDesc) (Texture, error)
	Queue(role metadata.QueueRole) CommandQueue
	// AcquireRecorder draws a recorder from the per-role pool. Its
	// command list is recycled after the submission fence retires.
	AcquireRecorder(role metadata.QueueRole) (CommandRecorder, error)
	DescriptorStrategy() metadata.DescriptorAllocationStrategy
	// CreateNativeView populates a native descriptor for the given
	// resource and view description.
	CreateNativeView(resource NativeObject, desc metadata.ViewDescription) (NativeObject, error)
	// CopyDescriptor copies the native descriptor between shader-visible
	// slots. Backends without a copy operation validate identity only.
	CopyDescriptor(dst, src metadata.ShaderVisibleIndex, viewType metadata.ViewType) error
	// BindStateMap injects the resource state tracker used by recorders.
	BindStateMap(states ResourceStateMap)
	Shutdown() error
}
