package metadata

// ResourceState captures the logical GPU state of a resource (or a single
// subresource). Transitions between states require a barrier on the
// recording command list.
type ResourceState uint8

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateCopyDest
	ResourceStateCopySource
	ResourceStateShaderResource
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateDepthRead
	ResourceStateUnorderedAccess
	ResourceStateVertexBuffer
	ResourceStateIndexBuffer
	ResourceStateConstantBuffer
	ResourceStateIndirectArgument
	ResourceStatePresent
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateCommon:
		return "common"
	case ResourceStateCopyDest:
		return "copy_dest"
	case ResourceStateCopySource:
		return "copy_source"
	case ResourceStateShaderResource:
		return "shader_resource"
	case ResourceStateRenderTarget:
		return "render_target"
	case ResourceStateDepthWrite:
		return "depth_write"
	case ResourceStateDepthRead:
		return "depth_read"
	case ResourceStateUnorderedAccess:
		return "unordered_access"
	case ResourceStateVertexBuffer:
		return "vertex_buffer"
	case ResourceStateIndexBuffer:
		return "index_buffer"
	case ResourceStateConstantBuffer:
		return "constant_buffer"
	case ResourceStateIndirectArgument:
		return "indirect_argument"
	case ResourceStatePresent:
		return "present"
	}
	return "unknown"
}

// AllSubresources addresses the whole resource in per-subresource APIs.
const AllSubresources uint32 = InvalidID
