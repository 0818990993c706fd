package systems

import (
	"sync"

	"github.com/oxyengine/oxygen/engine/math"
)

// TransformHandle indexes into the per-frame world and normal matrix
// arrays of the prepared frame.
type TransformHandle = uint32

/**
 * TransformManager interns world matrices by content. Equal matrices
 * share one handle, one world-matrix slot and one normal-matrix slot.
 * Reset clears the tables at the start of each collection pass.
 */
type TransformManager struct {
	mu      sync.Mutex
	lookup  map[math.Mat4]TransformHandle
	worlds  []math.Mat4
	normals []math.Mat3
}

func NewTransformManager() *TransformManager {
	return &TransformManager{
		lookup: make(map[math.Mat4]TransformHandle),
	}
}

// GetOrAllocate returns the handle interned for world, allocating a new
// slot and its inverse-transpose on first sight.
func (tm *TransformManager) GetOrAllocate(world math.Mat4) TransformHandle {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if handle, ok := tm.lookup[world]; ok {
		return handle
	}
	handle := TransformHandle(len(tm.worlds))
	tm.lookup[world] = handle
	tm.worlds = append(tm.worlds, world)
	tm.normals = append(tm.normals, world.NormalMatrix())
	return handle
}

func (tm *TransformManager) Count() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.worlds)
}

// Snapshot copies the interned arrays for publication; the manager can
// be reset afterwards without invalidating the frame.
func (tm *TransformManager) Snapshot() ([]math.Mat4, []math.Mat3) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	worlds := make([]math.Mat4, len(tm.worlds))
	normals := make([]math.Mat3, len(tm.normals))
	copy(worlds, tm.worlds)
	copy(normals, tm.normals)
	return worlds, normals
}

func (tm *TransformManager) Reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	clear(tm.lookup)
	tm.worlds = tm.worlds[:0]
	tm.normals = tm.normals[:0]
}
