package headless

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// Backend is the in-memory graphics backend. Buffers are plain byte
// slices, fences complete as soon as they are signalled, and recorders
// retain the commands they record so tests can assert on them. It is the
// "GPU that is infinitely fast and remembers everything".
type Backend struct {
	mu        sync.Mutex
	queues    [metadata.QueueRoleCount]*Queue
	strategy  *AllocationStrategy
	states    renderer.ResourceStateMap
	buffers   map[uint64]*Buffer
	nextID    uint64
	recorders [metadata.QueueRoleCount][]*Recorder

	// Test hook: next submit on any queue fails with this error.
	failNextSubmit error
}

func init() {
	renderer.RegisterBackend(renderer.Headless, func() (renderer.Graphics, error) {
		return New(), nil
	})
}

func New() *Backend {
	b := &Backend{
		strategy: NewAllocationStrategy(),
		buffers:  make(map[uint64]*Buffer),
		nextID:   1,
	}
	for role := metadata.QueueRole(0); role < metadata.QueueRoleCount; role++ {
		b.queues[role] = newQueue(b, role)
	}
	return b
}

func (b *Backend) Name() string {
	return "headless"
}

func (b *Backend) CreateBuffer(desc renderer.BufferDesc) (renderer.Buffer, error) {
	if desc.Size == 0 {
		err := fmt.Errorf("%w: buffer %q has zero size", core.ErrResourceCreationFailed, desc.Name)
		core.LogError(err.Error())
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := &Buffer{
		id:   b.nextID,
		desc: desc,
		data: make([]byte, desc.Size),
	}
	b.nextID++
	b.buffers[buf.id] = buf
	return buf, nil
}

func (b *Backend) CreateTexture(desc renderer.TextureDesc) (renderer.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		err := fmt.Errorf("%w: texture %q has zero extent", core.ErrResourceCreationFailed, desc.Name)
		core.LogError(err.Error())
		return nil, err
	}
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := &Texture{
		id:   b.nextID,
		desc: desc,
		data: make([]byte, uint64(desc.Width)*uint64(desc.Height)*uint64(desc.Depth)*4),
	}
	b.nextID++
	return t, nil
}

func (b *Backend) Queue(role metadata.QueueRole) renderer.CommandQueue {
	return b.queues[role]
}

func (b *Backend) AcquireRecorder(role metadata.QueueRole) (renderer.CommandRecorder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	free := b.recorders[role]
	if n := len(free); n > 0 {
		rec := free[n-1]
		b.recorders[role] = free[:n-1]
		rec.reset()
		return rec, nil
	}
	return newRecorder(b, role), nil
}

// recycle returns a recorder to the per-role pool once its command list's
// submission fence has retired.
func (b *Backend) recycle(rec *Recorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorders[rec.role] = append(b.recorders[rec.role], rec)
}

func (b *Backend) DescriptorStrategy() metadata.DescriptorAllocationStrategy {
	return b.strategy
}

func (b *Backend) CreateNativeView(resource renderer.NativeObject, desc metadata.ViewDescription) (renderer.NativeObject, error) {
	if resource == nil {
		return nil, fmt.Errorf("%w: nil resource", core.ErrResourceCreationFailed)
	}
	return &NativeView{Resource: resource, Desc: desc}, nil
}

// CopyDescriptor on headless performs identity validation only; there is
// no native descriptor heap to copy within.
func (b *Backend) CopyDescriptor(dst, src metadata.ShaderVisibleIndex, viewType metadata.ViewType) error {
	if dst == metadata.InvalidShaderVisibleIndex || src == metadata.InvalidShaderVisibleIndex {
		return fmt.Errorf("%w: invalid descriptor copy %d <- %d (%s)",
			core.ErrDescriptorAllocationFailed, dst, src, viewType)
	}
	return nil
}

func (b *Backend) BindStateMap(states renderer.ResourceStateMap) {
	b.states = states
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers = make(map[uint64]*Buffer)
	return nil
}

// FailNextSubmit makes the next queue submission fail with err. Used by
// tests and the testbed to exercise device-lost handling.
func (b *Backend) FailNextSubmit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNextSubmit = err
}

func (b *Backend) takeSubmitFailure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.failNextSubmit
	b.failNextSubmit = nil
	return err
}

// NativeView is the headless stand-in for a native descriptor.
type NativeView struct {
	Resource renderer.NativeObject
	Desc     metadata.ViewDescription
}
