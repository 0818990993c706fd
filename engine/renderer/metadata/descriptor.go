package metadata

// ViewType describes what kind of descriptor a bindless slot holds.
type ViewType uint8

const (
	ViewTypeSRVBuffer ViewType = iota
	ViewTypeSRVTexture
	ViewTypeUAVBuffer
	ViewTypeUAVTexture
	ViewTypeCBV
	ViewTypeSampler
	ViewTypeRTV
	ViewTypeDSV
	ViewTypeCount
)

func (v ViewType) String() string {
	switch v {
	case ViewTypeSRVBuffer:
		return "srv_buffer"
	case ViewTypeSRVTexture:
		return "srv_texture"
	case ViewTypeUAVBuffer:
		return "uav_buffer"
	case ViewTypeUAVTexture:
		return "uav_texture"
	case ViewTypeCBV:
		return "cbv"
	case ViewTypeSampler:
		return "sampler"
	case ViewTypeRTV:
		return "rtv"
	case ViewTypeDSV:
		return "dsv"
	}
	return "unknown"
}

// Visibility splits each view type domain into shader-visible and CPU-only
// descriptors.
type Visibility uint8

const (
	VisibilityShader Visibility = iota
	VisibilityCPUOnly
	VisibilityCount
)

func (v Visibility) String() string {
	if v == VisibilityShader {
		return "shader"
	}
	return "cpu_only"
}

// ViewDescription identifies a concrete view of a resource. Two equal
// descriptions on the same resource share one descriptor; it is the cache
// key of the resource registry's per-resource view table.
type ViewDescription struct {
	ViewType   ViewType
	Visibility Visibility
	Format     uint32
	// Element range for buffer views; mip/array range for texture views.
	FirstElement uint64
	ElementCount uint64
	Stride       uint32
	MostDetailed uint32
	MipLevels    uint32
}

// HeapDescription is the layout of one bindless domain, as reported by the
// backend's allocation strategy.
type HeapDescription struct {
	BaseShaderVisibleIndex ShaderVisibleIndex
	Capacity               uint32
	SegmentSize            uint32
}

// DescriptorAllocationStrategy partitions the global bindless space into
// (view type, visibility) domains.
type DescriptorAllocationStrategy interface {
	GetHeapDescription(viewType ViewType, visibility Visibility) (HeapDescription, error)
}
