package scene

import (
	"fmt"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// NodeHandle is a stable generational reference to a scene node: the
// low 32 bits index the arena slot, the high 32 bits carry the slot
// generation. Handles to destroyed nodes fail validation instead of
// aliasing a recycled slot.
type NodeHandle uint64

const InvalidNodeHandle NodeHandle = 0

func makeHandle(index, generation uint32) NodeHandle {
	return NodeHandle(uint64(generation)<<32 | uint64(index))
}

func (h NodeHandle) index() uint32 {
	return uint32(h)
}

func (h NodeHandle) generation() uint32 {
	return uint32(h >> 32)
}

// RenderableComponent attaches drawable geometry to a node.
type RenderableComponent struct {
	Geometry *metadata.GeometryAsset
	// Materials indexed by submesh material slot.
	Materials []*metadata.MaterialAsset
	Policy    metadata.MeshResolvePolicy
	Layer     metadata.RenderLayer
	PassMask  metadata.PassMask
	Flags     uint32
}

type nodeSlot struct {
	generation uint32
	alive      bool
	name       string

	parent      NodeHandle
	firstChild  NodeHandle
	nextSibling NodeHandle
	prevSibling NodeHandle

	local   math.Transform
	world   math.Mat4
	visible bool
	// Effective visibility including ancestors, refreshed by Update.
	worldVisible bool
	renderable   *RenderableComponent
}

type SceneConfig struct {
	// Initial arena capacity; the arena grows past it.
	InitialCapacity uint32
}

/**
 * Scene is the mutable scene graph: an arena-backed node table with
 * parent/child/sibling links. Update propagates world matrices parents
 * before children; scene preparation consumes the result through
 * CollectRenderables without touching node state.
 */
type Scene struct {
	Config *SceneConfig

	nodes    []nodeSlot
	freeList []uint32
	root     NodeHandle
	lights   []*DirectionalLight
	// Nodes destroyed since the last collection, for LOD state cleanup.
	destroyed []uint64
}

func NewScene(config *SceneConfig) (*Scene, error) {
	if config.InitialCapacity == 0 {
		config.InitialCapacity = 256
	}
	s := &Scene{
		Config: config,
		nodes:  make([]nodeSlot, 0, config.InitialCapacity),
	}
	// Slot 0 is the implicit root; generation 1 keeps the zero handle
	// invalid.
	s.nodes = append(s.nodes, nodeSlot{
		generation: 1,
		alive:      true,
		name:       "root",
		local:      math.TransformCreate(),
		world:      math.NewMat4Identity(),
		visible:    true,
	})
	s.root = makeHandle(0, 1)
	return s, nil
}

func (s *Scene) Root() NodeHandle {
	return s.root
}

// IsValid reports whether the handle still refers to a live node.
func (s *Scene) IsValid(handle NodeHandle) bool {
	index := handle.index()
	if index >= uint32(len(s.nodes)) {
		return false
	}
	slot := &s.nodes[index]
	return slot.alive && slot.generation == handle.generation()
}

func (s *Scene) slot(handle NodeHandle) (*nodeSlot, error) {
	if !s.IsValid(handle) {
		return nil, fmt.Errorf("func Scene.slot - stale or invalid node handle %#x", uint64(handle))
	}
	return &s.nodes[handle.index()], nil
}

// CreateNode allocates a node under parent. An invalid parent attaches
// to the root.
func (s *Scene) CreateNode(name string, parent NodeHandle) (NodeHandle, error) {
	if parent == InvalidNodeHandle {
		parent = s.root
	}
	if !s.IsValid(parent) {
		err := fmt.Errorf("func Scene.CreateNode - parent handle %#x is stale", uint64(parent))
		core.LogError(err.Error())
		return InvalidNodeHandle, err
	}

	var index uint32
	if n := len(s.freeList); n > 0 {
		index = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
	} else {
		s.nodes = append(s.nodes, nodeSlot{})
		index = uint32(len(s.nodes) - 1)
	}

	slot := &s.nodes[index]
	slot.generation++
	slot.alive = true
	slot.name = name
	slot.parent = InvalidNodeHandle
	slot.firstChild = InvalidNodeHandle
	slot.nextSibling = InvalidNodeHandle
	slot.prevSibling = InvalidNodeHandle
	slot.local = math.TransformCreate()
	slot.world = math.NewMat4Identity()
	slot.visible = true
	slot.renderable = nil

	handle := makeHandle(index, slot.generation)
	s.link(handle, parent)
	return handle, nil
}

// DestroyNode removes the node and its whole subtree. Handles into the
// subtree become stale.
func (s *Scene) DestroyNode(handle NodeHandle) error {
	if handle == s.root {
		return fmt.Errorf("func Scene.DestroyNode - the root node cannot be destroyed")
	}
	slot, err := s.slot(handle)
	if err != nil {
		return err
	}
	for child := slot.firstChild; child != InvalidNodeHandle; {
		next := s.nodes[child.index()].nextSibling
		if err := s.DestroyNode(child); err != nil {
			return err
		}
		child = next
	}
	s.unlink(handle)
	slot.alive = false
	slot.renderable = nil
	s.freeList = append(s.freeList, handle.index())
	s.destroyed = append(s.destroyed, uint64(handle))
	return nil
}

// SetParent re-links the node under a new parent, keeping its local
// transform. Cycles are rejected.
func (s *Scene) SetParent(handle, parent NodeHandle) error {
	if _, err := s.slot(handle); err != nil {
		return err
	}
	if !s.IsValid(parent) {
		return fmt.Errorf("func Scene.SetParent - parent handle %#x is stale", uint64(parent))
	}
	for cursor := parent; cursor != InvalidNodeHandle; cursor = s.nodes[cursor.index()].parent {
		if cursor == handle {
			return fmt.Errorf("func Scene.SetParent - %q would become its own ancestor", s.nodes[handle.index()].name)
		}
	}
	s.unlink(handle)
	s.link(handle, parent)
	return nil
}

func (s *Scene) link(handle, parent NodeHandle) {
	slot := &s.nodes[handle.index()]
	parentSlot := &s.nodes[parent.index()]
	slot.parent = parent
	slot.prevSibling = InvalidNodeHandle
	slot.nextSibling = parentSlot.firstChild
	if parentSlot.firstChild != InvalidNodeHandle {
		s.nodes[parentSlot.firstChild.index()].prevSibling = handle
	}
	parentSlot.firstChild = handle
}

func (s *Scene) unlink(handle NodeHandle) {
	slot := &s.nodes[handle.index()]
	if slot.parent == InvalidNodeHandle {
		return
	}
	parentSlot := &s.nodes[slot.parent.index()]
	if parentSlot.firstChild == handle {
		parentSlot.firstChild = slot.nextSibling
	}
	if slot.prevSibling != InvalidNodeHandle {
		s.nodes[slot.prevSibling.index()].nextSibling = slot.nextSibling
	}
	if slot.nextSibling != InvalidNodeHandle {
		s.nodes[slot.nextSibling.index()].prevSibling = slot.prevSibling
	}
	slot.parent = InvalidNodeHandle
	slot.nextSibling = InvalidNodeHandle
	slot.prevSibling = InvalidNodeHandle
}

func (s *Scene) Name(handle NodeHandle) (string, error) {
	slot, err := s.slot(handle)
	if err != nil {
		return "", err
	}
	return slot.name, nil
}

func (s *Scene) SetLocalTransform(handle NodeHandle, transform math.Transform) error {
	slot, err := s.slot(handle)
	if err != nil {
		return err
	}
	slot.local = transform
	return nil
}

func (s *Scene) LocalTransform(handle NodeHandle) (math.Transform, error) {
	slot, err := s.slot(handle)
	if err != nil {
		return math.Transform{}, err
	}
	return slot.local, nil
}

// WorldMatrix returns the matrix computed by the last Update.
func (s *Scene) WorldMatrix(handle NodeHandle) (math.Mat4, error) {
	slot, err := s.slot(handle)
	if err != nil {
		return math.Mat4{}, err
	}
	return slot.world, nil
}

func (s *Scene) SetVisible(handle NodeHandle, visible bool) error {
	slot, err := s.slot(handle)
	if err != nil {
		return err
	}
	slot.visible = visible
	return nil
}

func (s *Scene) SetRenderable(handle NodeHandle, renderable *RenderableComponent) error {
	slot, err := s.slot(handle)
	if err != nil {
		return err
	}
	slot.renderable = renderable
	return nil
}

// Update propagates world matrices and effective visibility in a
// depth-first forward pass so every parent is resolved before its
// children.
func (s *Scene) Update() {
	s.propagate(s.root, math.NewMat4Identity(), true)
}

func (s *Scene) propagate(handle NodeHandle, parentWorld math.Mat4, parentVisible bool) {
	slot := &s.nodes[handle.index()]
	slot.world = slot.local.GetLocal().Mul(parentWorld)
	slot.worldVisible = parentVisible && slot.visible
	for child := slot.firstChild; child != InvalidNodeHandle; child = s.nodes[child.index()].nextSibling {
		s.propagate(child, slot.world, slot.worldVisible)
	}
}

func (s *Scene) NodeCount() int {
	count := 0
	for i := range s.nodes {
		if s.nodes[i].alive {
			count++
		}
	}
	return count
}
