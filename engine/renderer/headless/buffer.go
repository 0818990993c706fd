package headless

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/renderer"
)

type Buffer struct {
	id   uint64
	desc renderer.BufferDesc

	mu     sync.Mutex
	data   []byte
	mapped bool
}

func (b *Buffer) GetSize() uint64 {
	return b.desc.Size
}

func (b *Buffer) GetNativeResource() renderer.NativeObject {
	return b
}

func (b *Buffer) Map(offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.desc.CPUAccess {
		return nil, fmt.Errorf("buffer %q is not CPU accessible", b.desc.Name)
	}
	if size == 0 {
		size = b.desc.Size - offset
	}
	if offset+size > b.desc.Size {
		return nil, fmt.Errorf("map range [%d, %d) out of bounds for buffer %q of size %d",
			offset, offset+size, b.desc.Name, b.desc.Size)
	}
	b.mapped = true
	return b.data[offset : offset+size], nil
}

func (b *Buffer) UnMap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapped = false
}

func (b *Buffer) GetGPUVirtualAddress() uint64 {
	// Fake but stable and disjoint per buffer.
	return b.id << 32
}

// Bytes exposes the backing store for test assertions.
func (b *Buffer) Bytes() []byte {
	return b.data
}

type Texture struct {
	id   uint64
	desc renderer.TextureDesc
	data []byte
}

func (t *Texture) GetSize() uint64 {
	return uint64(len(t.data))
}

func (t *Texture) GetNativeResource() renderer.NativeObject {
	return t
}

func (t *Texture) GetDesc() renderer.TextureDesc {
	return t.desc
}

// Bytes exposes the backing store for test assertions.
func (t *Texture) Bytes() []byte {
	return t.data
}
