package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxyengine/oxygen/engine/math"
)

func TestTransformManagerDeduplicatesIdenticalMatrices(t *testing.T) {
	tm := NewTransformManager()

	a := math.NewMat4Translation(math.NewVec3(1, 2, 3))
	b := math.NewMat4Translation(math.NewVec3(4, 5, 6))

	h1 := tm.GetOrAllocate(a)
	h2 := tm.GetOrAllocate(b)
	h3 := tm.GetOrAllocate(a)

	assert.Equal(t, h1, h3)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, tm.Count())
}

func TestTransformManagerSnapshotPairsNormals(t *testing.T) {
	tm := NewTransformManager()

	world := math.NewMat4Scale(math.NewVec3(2, 2, 2))
	handle := tm.GetOrAllocate(world)

	worlds, normals := tm.Snapshot()
	assert.Len(t, worlds, 1)
	assert.Len(t, normals, 1)
	assert.Equal(t, world, worlds[handle])

	// Inverse-transpose of a uniform scale of 2 is a uniform 0.5.
	assert.InDelta(t, 0.5, float64(normals[handle].Data[0]), 1e-5)

	// Snapshots are copies: appending later does not alias.
	tm.GetOrAllocate(math.NewMat4Translation(math.NewVec3(1, 0, 0)))
	assert.Len(t, worlds, 1)
}

func TestTransformManagerReset(t *testing.T) {
	tm := NewTransformManager()
	tm.GetOrAllocate(math.NewMat4Identity())
	tm.Reset()
	assert.Zero(t, tm.Count())

	// Handles restart from zero after a reset.
	h := tm.GetOrAllocate(math.NewMat4Translation(math.NewVec3(9, 9, 9)))
	assert.Equal(t, TransformHandle(0), h)
}
