package metadata

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Sizes of the packed GPU-facing structures, in bytes. Shader-side layouts
// depend on these exactly; Marshal writes them field by field so the Go
// compiler's struct layout never leaks into GPU memory.
const (
	SceneConstantsSize        = 160
	MaterialConstantsSize     = 112
	DrawMetadataSize          = 48
	DirectionalLightBasicSize = 48
)

// SceneConstants is the per-frame constant buffer consumed by every pass.
// 16-byte aligned, 160 bytes.
type SceneConstants struct {
	ViewMatrix       [16]float32 // offset   0: view matrix (64B)
	ProjectionMatrix [16]float32 // offset  64: projection matrix (64B)
	CameraPosition   [3]float32  // offset 128: world-space camera position (12B)
	TimeSeconds      float32     // offset 140: time in seconds (4B)
	FrameIndex       uint32      // offset 144: frame sequence number, low 32 bits (4B)
	_pad             [3]uint32   // offset 148: padding to 160B
}

func (s *SceneConstants) Size() int {
	return int(unsafe.Sizeof(*s))
}

func (s *SceneConstants) Marshal() []byte {
	buf := make([]byte, SceneConstantsSize)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s.ViewMatrix[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(s.ProjectionMatrix[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[128+i*4:], math.Float32bits(s.CameraPosition[i]))
	}
	binary.LittleEndian.PutUint32(buf[140:], math.Float32bits(s.TimeSeconds))
	binary.LittleEndian.PutUint32(buf[144:], s.FrameIndex)
	return buf
}

// MaterialConstants is one slot of the material constants buffer.
// 7 x 16-byte rows, 112 bytes.
type MaterialConstants struct {
	BaseColor [4]float32 // offset   0

	Metalness        float32 // offset  16
	Roughness        float32 // offset  20
	NormalScale      float32 // offset  24
	AmbientOcclusion float32 // offset  28

	BaseColorTextureIndex        uint32 // offset  32
	NormalTextureIndex           uint32 // offset  36
	MetallicTextureIndex         uint32 // offset  40
	RoughnessTextureIndex        uint32 // offset  44
	AmbientOcclusionTextureIndex uint32 // offset  48
	OpacityIndex                 uint32 // offset  52
	Flags                        uint32 // offset  56

	AlphaCutoff float32    // offset  60, fills the row
	UVScale     [2]float32 // offset  64
	UVOffset    [2]float32 // offset  72
	UVRotation  float32    // offset  80
	UVSet       uint32     // offset  84

	EmissiveFactor       [3]float32 // offset  88
	EmissiveTextureIndex uint32     // offset 100

	_pad [2]uint32 // offset 104: padding to 112B
}

func (m *MaterialConstants) Size() int {
	return int(unsafe.Sizeof(*m))
}

func (m *MaterialConstants) Marshal() []byte {
	buf := make([]byte, MaterialConstantsSize)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(m.BaseColor[i]))
	}
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(m.Metalness))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(m.Roughness))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(m.NormalScale))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(m.AmbientOcclusion))
	binary.LittleEndian.PutUint32(buf[32:], m.BaseColorTextureIndex)
	binary.LittleEndian.PutUint32(buf[36:], m.NormalTextureIndex)
	binary.LittleEndian.PutUint32(buf[40:], m.MetallicTextureIndex)
	binary.LittleEndian.PutUint32(buf[44:], m.RoughnessTextureIndex)
	binary.LittleEndian.PutUint32(buf[48:], m.AmbientOcclusionTextureIndex)
	binary.LittleEndian.PutUint32(buf[52:], m.OpacityIndex)
	binary.LittleEndian.PutUint32(buf[56:], m.Flags)
	binary.LittleEndian.PutUint32(buf[60:], math.Float32bits(m.AlphaCutoff))
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(m.UVScale[0]))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(m.UVScale[1]))
	binary.LittleEndian.PutUint32(buf[72:], math.Float32bits(m.UVOffset[0]))
	binary.LittleEndian.PutUint32(buf[76:], math.Float32bits(m.UVOffset[1]))
	binary.LittleEndian.PutUint32(buf[80:], math.Float32bits(m.UVRotation))
	binary.LittleEndian.PutUint32(buf[84:], m.UVSet)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[88+i*4:], math.Float32bits(m.EmissiveFactor[i]))
	}
	binary.LittleEndian.PutUint32(buf[100:], m.EmissiveTextureIndex)
	return buf
}

// DrawMetadata flags.
const (
	DrawFlagCastsShadows uint32 = 1 << iota
	DrawFlagReceivesShadows
	DrawFlagDoubleSided
	DrawFlagTransparent
)

// DrawMetadata is one packed draw record of the prepared frame.
// 12 x u32, 48 bytes, 16-byte aligned.
type DrawMetadata struct {
	VertexBufferIndex           uint32 // offset  0: bindless index of the vertex buffer SRV
	IndexBufferIndex            uint32 // offset  4: bindless index of the index buffer SRV
	IsIndexed                   uint32 // offset  8
	InstanceCount               uint32 // offset 12
	TransformOffset             uint32 // offset 16: index into worldMatrices/normalMatrices
	MaterialIndex               uint32 // offset 20: slot in the material constants buffer
	InstanceMetadataBufferIndex uint32 // offset 24
	InstanceMetadataOffset      uint32 // offset 28
	Flags                       uint32 // offset 32
	FirstIndex                  uint32 // offset 36
	BaseVertex                  int32  // offset 40: signed
	_pad                        uint32 // offset 44: padding to 48B
}

func (d *DrawMetadata) Size() int {
	return int(unsafe.Sizeof(*d))
}

func (d *DrawMetadata) Marshal() []byte {
	buf := make([]byte, DrawMetadataSize)
	binary.LittleEndian.PutUint32(buf[0:], d.VertexBufferIndex)
	binary.LittleEndian.PutUint32(buf[4:], d.IndexBufferIndex)
	binary.LittleEndian.PutUint32(buf[8:], d.IsIndexed)
	binary.LittleEndian.PutUint32(buf[12:], d.InstanceCount)
	binary.LittleEndian.PutUint32(buf[16:], d.TransformOffset)
	binary.LittleEndian.PutUint32(buf[20:], d.MaterialIndex)
	binary.LittleEndian.PutUint32(buf[24:], d.InstanceMetadataBufferIndex)
	binary.LittleEndian.PutUint32(buf[28:], d.InstanceMetadataOffset)
	binary.LittleEndian.PutUint32(buf[32:], d.Flags)
	binary.LittleEndian.PutUint32(buf[36:], d.FirstIndex)
	binary.LittleEndian.PutUint32(buf[40:], uint32(d.BaseVertex))
	return buf
}

// DirectionalLightFlags bit assignments.
const (
	DirectionalLightAffectsWorld uint32 = 1 << iota
	DirectionalLightCastsShadows
	DirectionalLightContactShadows
	DirectionalLightEnvironmentContribution
)

// DirectionalLightBasic is the packed per-light record, 48 bytes.
type DirectionalLightBasic struct {
	ColorRGB          [3]float32 // offset  0
	Intensity         float32    // offset 12
	DirectionWS       [3]float32 // offset 16
	AngularSizeRadian float32    // offset 28
	ShadowIndex       uint32     // offset 32
	Flags             uint32     // offset 36
	_pad              [2]uint32  // offset 40: padding to 48B
}

func (l *DirectionalLightBasic) Size() int {
	return int(unsafe.Sizeof(*l))
}

func (l *DirectionalLightBasic) Marshal() []byte {
	buf := make([]byte, DirectionalLightBasicSize)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(l.ColorRGB[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(l.DirectionWS[i]))
	}
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(l.Intensity))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(l.AngularSizeRadian))
	binary.LittleEndian.PutUint32(buf[32:], l.ShadowIndex)
	binary.LittleEndian.PutUint32(buf[36:], l.Flags)
	return buf
}

// Root-signature binding points shared with shaders: SceneConstants binds
// as a root CBV; 32-bit root constants carry the draw index and pass
// constants index; bindless SRV tables cover textures and buffers.
const (
	RootConstantDrawIndex        = 0 // DWORD0: g_DrawIndex
	RootConstantPassConstantsIdx = 1 // DWORD1: g_PassConstantsIndex
)
