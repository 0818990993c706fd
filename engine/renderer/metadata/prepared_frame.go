package metadata

import (
	"github.com/oxyengine/oxygen/engine/math"
)

// PassMask is a bitset over render passes; draws are partitioned by it.
type PassMask uint32

const (
	PassDepthPrepass PassMask = 1 << iota
	PassOpaque
	PassTransparent
	PassShadow
)

// RenderLayer is a coarse filter between views and renderables.
type RenderLayer uint32

const RenderLayerDefault RenderLayer = 1 << 0

// RenderItemProto is the working record flowing through the scene prep
// stages for a single node, before per-submesh expansion.
type RenderItemProto struct {
	Node        uint64
	World       math.Mat4
	Bounds      math.BoundingSphere
	Layer       RenderLayer
	LODIndex    uint32
	LODResolved bool
	PassMask    PassMask
	Dropped     bool
}

// RenderItemData is one visible submesh emitted by the producer stage.
type RenderItemData struct {
	Node         uint64
	LODIndex     uint32
	SubmeshIndex uint32
	Geometry     *GeometryAsset
	Material     *MaterialAsset
	WorldBounds  math.BoundingSphere
	PassMask     PassMask
	Flags        uint32
	// Filled during deduplication.
	TransformOffset uint32
	MaterialIndex   uint32
}

// PartitionRange maps a pass mask to a contiguous [Begin, End) range of
// the draw metadata array.
type PartitionRange struct {
	Mask  PassMask
	Begin uint32
	End   uint32
}

// PreparedSceneFrame is the immutable per-frame snapshot consumed by
// render passes. The slices are non-owning views over renderer-owned
// arrays; they stay valid until end of frame and must not be mutated by
// observers. It is published once per frame through an atomic pointer.
type PreparedSceneFrame struct {
	Sequence       FrameSequenceNumber
	DrawMetadata   []DrawMetadata
	WorldMatrices  []math.Mat4
	NormalMatrices []math.Mat3
	Partitions     []PartitionRange
	Lights         []DirectionalLightBasic
	SceneConstants SceneConstants
}

// DrawsForPass returns the draw range for the first partition whose mask
// contains every bit of mask, or an empty range.
func (f *PreparedSceneFrame) DrawsForPass(mask PassMask) []DrawMetadata {
	for _, p := range f.Partitions {
		if p.Mask&mask == mask {
			return f.DrawMetadata[p.Begin:p.End]
		}
	}
	return nil
}
