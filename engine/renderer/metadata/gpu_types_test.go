package metadata

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Shader-side layouts hard-code these sizes; the Go structs must never
// drift from them.
func TestPackedStructSizesMatchShaderContract(t *testing.T) {
	assert.Equal(t, SceneConstantsSize, (&SceneConstants{}).Size())
	assert.Equal(t, MaterialConstantsSize, (&MaterialConstants{}).Size())
	assert.Equal(t, DrawMetadataSize, (&DrawMetadata{}).Size())
	assert.Equal(t, DirectionalLightBasicSize, (&DirectionalLightBasic{}).Size())
}

func TestDrawMetadataMarshalOffsets(t *testing.T) {
	d := DrawMetadata{
		VertexBufferIndex: 7,
		MaterialIndex:     11,
		Flags:             DrawFlagTransparent,
		FirstIndex:        300,
		BaseVertex:        -5,
	}
	buf := d.Marshal()
	assert.Len(t, buf, DrawMetadataSize)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(11), binary.LittleEndian.Uint32(buf[20:]))
	assert.Equal(t, DrawFlagTransparent, binary.LittleEndian.Uint32(buf[32:]))
	assert.Equal(t, uint32(300), binary.LittleEndian.Uint32(buf[36:]))
	assert.Equal(t, int32(-5), int32(binary.LittleEndian.Uint32(buf[40:])))
}

func TestMaterialConstantsMarshalOffsets(t *testing.T) {
	m := MaterialConstants{
		BaseColor:             [4]float32{1, 0.5, 0.25, 1},
		BaseColorTextureIndex: InvalidID,
		AlphaCutoff:           0.5,
		EmissiveTextureIndex:  9,
	}
	buf := m.Marshal()
	assert.Len(t, buf, MaterialConstantsSize)
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
	assert.Equal(t, InvalidID, binary.LittleEndian.Uint32(buf[32:]))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[60:])))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(buf[100:]))
}
