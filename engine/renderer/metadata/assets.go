package metadata

import (
	"github.com/oxyengine/oxygen/engine/math"
)

// TextureAsset is an opaque texture reference produced by the asset
// pipeline. The frame core only needs its identity and its payload for
// residency uploads.
type TextureAsset struct {
	Key    ResourceKey
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// Submesh is one draw range of a mesh LOD.
type Submesh struct {
	FirstIndex   uint32
	IndexCount   uint32
	BaseVertex   int32
	VertexCount  uint32
	MaterialSlot uint32
	Bounds       math.BoundingSphere
}

// MeshLOD is one level of detail of a geometry asset. LOD 0 is the finest.
type MeshLOD struct {
	Submeshes   []Submesh
	VertexData  []byte
	IndexData   []byte
	VertexCount uint32
	IndexCount  uint32
	IsIndexed   bool
	// World-space error metric for screen-space-error LOD selection.
	GeometricError float32
}

// GeometryAsset is the CPU-side description of a mesh with its LOD chain.
// GPU residency is tracked separately by the geometry registry.
type GeometryAsset struct {
	Key    ResourceKey
	Name   string
	LODs   []MeshLOD
	Bounds math.BoundingSphere
}

// MaterialAsset pairs packed material constants with texture references.
// Interned by pointer identity during scene preparation.
type MaterialAsset struct {
	Name      string
	Constants MaterialConstants
	// Texture references resolved to shader-visible indices by the binder.
	BaseColorTexture *TextureAsset
	NormalTexture    *TextureAsset
	MetallicTexture  *TextureAsset
	RoughnessTexture *TextureAsset
	OcclusionTexture *TextureAsset
	EmissiveTexture  *TextureAsset
	Transparent      bool
}

// MeshResolveMode selects how the active LOD of a renderable is chosen.
type MeshResolveMode uint8

const (
	// MeshResolveFixed always uses the configured LOD index.
	MeshResolveFixed MeshResolveMode = iota
	// MeshResolveDistance selects by camera distance with symmetric
	// hysteresis around each threshold.
	MeshResolveDistance
	// MeshResolveScreenSpaceError selects by projected geometric error
	// with directional enter/exit hysteresis.
	MeshResolveScreenSpaceError
)

// MeshResolvePolicy configures LOD selection for one renderable.
type MeshResolvePolicy struct {
	Mode MeshResolveMode
	// Fixed mode.
	FixedLOD uint32
	// Distance mode: ascending switch distances, one per LOD transition.
	Distances []float32
	// Fraction of the threshold used as hysteresis band.
	Hysteresis float32
	// Screen-space-error mode: error budget in pixels.
	ErrorBudget float32
	// Separate enter/exit scale factors for directional hysteresis.
	EnterScale float32
	ExitScale  float32
}
