package testbed

import (
	"encoding/binary"
	"image"
	"image/color"
	gomath "math"
	"sync/atomic"

	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// vertexStride matches the layout the draw metadata assumes: position,
// normal and one UV channel packed as float32.
const vertexStride = 8 * 4

var nextAssetKey atomic.Uint64

func allocateAssetKey() metadata.ResourceKey {
	return metadata.ResourceKey(nextAssetKey.Add(1))
}

// newCheckerTexture builds a procedural two-tone checkerboard so the
// testbed exercises the texture residency path without touching disk.
func newCheckerTexture(name string, size int, cells int, a, b color.RGBA) *metadata.TextureAsset {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / cells
	if cell < 1 {
		cell = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, b)
			}
		}
	}

	pixels, width, height := metadata.PixelsFromImage(img)
	return &metadata.TextureAsset{
		Key:    allocateAssetKey(),
		Name:   name,
		Width:  width,
		Height: height,
		Pixels: pixels,
	}
}

func appendVertex(dst []byte, px, py, pz, nx, ny, nz, u, v float32) []byte {
	for _, f := range [8]float32{px, py, pz, nx, ny, nz, u, v} {
		dst = binary.LittleEndian.AppendUint32(dst, gomath.Float32bits(f))
	}
	return dst
}

// newCubeGeometry builds a unit cube with two LODs: LOD 0 has all six
// faces, LOD 1 collapses to a camera-agnostic quad pair suitable for
// distant rendering. Good enough to drive LOD switching in the demo.
func newCubeGeometry(name string) *metadata.GeometryAsset {
	faces := [6][2]math.Vec3{
		{math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0)},
		{math.NewVec3(0, 0, -1), math.NewVec3(-1, 0, 0)},
		{math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1)},
		{math.NewVec3(-1, 0, 0), math.NewVec3(0, 0, 1)},
		{math.NewVec3(0, 1, 0), math.NewVec3(1, 0, 0)},
		{math.NewVec3(0, -1, 0), math.NewVec3(1, 0, 0)},
	}

	var vertices []byte
	var indices []byte
	for f, face := range faces {
		normal := face[0]
		tangent := face[1]
		bitangent := normal.Cross(tangent)
		base := uint32(f * 4)
		for i := 0; i < 4; i++ {
			su := float32(i%2)*2 - 1
			sv := float32(i/2)*2 - 1
			p := normal.Add(tangent.MulScalar(su)).Add(bitangent.MulScalar(sv)).MulScalar(0.5)
			vertices = appendVertex(vertices, p.X, p.Y, p.Z,
				normal.X, normal.Y, normal.Z,
				float32(i%2), float32(i/2))
		}
		for _, idx := range [6]uint32{0, 1, 2, 2, 1, 3} {
			indices = binary.LittleEndian.AppendUint32(indices, base+idx)
		}
	}

	lod0 := metadata.MeshLOD{
		Submeshes: []metadata.Submesh{{
			FirstIndex:   0,
			IndexCount:   36,
			VertexCount:  24,
			MaterialSlot: 0,
			Bounds:       math.BoundingSphere{Radius: 0.87},
		}},
		VertexData:     vertices,
		IndexData:      indices,
		VertexCount:    24,
		IndexCount:     36,
		IsIndexed:      true,
		GeometricError: 0.01,
	}

	// Coarse LOD: front and back faces only.
	lod1 := metadata.MeshLOD{
		Submeshes: []metadata.Submesh{{
			FirstIndex:   0,
			IndexCount:   12,
			VertexCount:  8,
			MaterialSlot: 0,
			Bounds:       math.BoundingSphere{Radius: 0.87},
		}},
		VertexData:     append([]byte(nil), vertices[:8*vertexStride]...),
		IndexData:      append([]byte(nil), indices[:12*4]...),
		VertexCount:    8,
		IndexCount:     12,
		IsIndexed:      true,
		GeometricError: 0.25,
	}

	return &metadata.GeometryAsset{
		Key:    allocateAssetKey(),
		Name:   name,
		LODs:   []metadata.MeshLOD{lod0, lod1},
		Bounds: math.BoundingSphere{Radius: 0.87},
	}
}

// newCheckerMaterial is an opaque PBR material backed by two procedural
// textures so both binder slots go through the upload path.
func newCheckerMaterial(name string) *metadata.MaterialAsset {
	return &metadata.MaterialAsset{
		Name: name,
		Constants: metadata.MaterialConstants{
			BaseColor: [4]float32{1, 1, 1, 1},
			Metalness: 0.1,
			Roughness: 0.7,
		},
		BaseColorTexture: newCheckerTexture(name+"_albedo", 64, 8,
			color.RGBA{R: 220, G: 220, B: 220, A: 255},
			color.RGBA{R: 40, G: 40, B: 40, A: 255}),
		RoughnessTexture: newCheckerTexture(name+"_rough", 32, 4,
			color.RGBA{R: 180, G: 180, B: 180, A: 255},
			color.RGBA{R: 120, G: 120, B: 120, A: 255}),
	}
}
