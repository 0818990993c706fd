package headless

import (
	"fmt"

	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

type domainKey struct {
	viewType   metadata.ViewType
	visibility metadata.Visibility
}

// AllocationStrategy lays out the global bindless space for the headless
// backend. Each (view type, visibility) domain gets a disjoint index
// range; segments are carved lazily by the descriptor allocator.
type AllocationStrategy struct {
	domains map[domainKey]metadata.HeapDescription
}

func NewAllocationStrategy() *AllocationStrategy {
	s := &AllocationStrategy{domains: make(map[domainKey]metadata.HeapDescription)}

	next := metadata.ShaderVisibleIndex(0)
	add := func(vt metadata.ViewType, vis metadata.Visibility, capacity, segmentSize uint32) {
		s.domains[domainKey{vt, vis}] = metadata.HeapDescription{
			BaseShaderVisibleIndex: next,
			Capacity:               capacity,
			SegmentSize:            segmentSize,
		}
		next += metadata.ShaderVisibleIndex(capacity)
	}

	add(metadata.ViewTypeSRVBuffer, metadata.VisibilityShader, 65536, 1024)
	add(metadata.ViewTypeSRVTexture, metadata.VisibilityShader, 65536, 1024)
	add(metadata.ViewTypeUAVBuffer, metadata.VisibilityShader, 16384, 512)
	add(metadata.ViewTypeUAVTexture, metadata.VisibilityShader, 16384, 512)
	add(metadata.ViewTypeCBV, metadata.VisibilityShader, 4096, 256)
	add(metadata.ViewTypeSampler, metadata.VisibilityShader, 2048, 256)
	// CPU-only staging descriptors live past the shader-visible range.
	add(metadata.ViewTypeSRVBuffer, metadata.VisibilityCPUOnly, 8192, 512)
	add(metadata.ViewTypeSRVTexture, metadata.VisibilityCPUOnly, 8192, 512)
	add(metadata.ViewTypeRTV, metadata.VisibilityCPUOnly, 1024, 128)
	add(metadata.ViewTypeDSV, metadata.VisibilityCPUOnly, 512, 128)

	return s
}

func (s *AllocationStrategy) GetHeapDescription(viewType metadata.ViewType, visibility metadata.Visibility) (metadata.HeapDescription, error) {
	d, ok := s.domains[domainKey{viewType, visibility}]
	if !ok {
		return metadata.HeapDescription{}, fmt.Errorf("no descriptor domain for (%s, %s)", viewType, visibility)
	}
	return d, nil
}
