package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

func newTestScene(t *testing.T) *Scene {
	t.Helper()
	s, err := NewScene(&SceneConfig{})
	require.NoError(t, err)
	return s
}

func TestNodeHandlesSurviveSlotReuse(t *testing.T) {
	s := newTestScene(t)

	node, err := s.CreateNode("a", s.Root())
	require.NoError(t, err)
	assert.True(t, s.IsValid(node))

	require.NoError(t, s.DestroyNode(node))
	assert.False(t, s.IsValid(node))
	_, err = s.Name(node)
	assert.Error(t, err)

	// The freed slot is recycled with a bumped generation, so the old
	// handle stays stale.
	reused, err := s.CreateNode("b", s.Root())
	require.NoError(t, err)
	assert.Equal(t, node.index(), reused.index())
	assert.NotEqual(t, node, reused)
	assert.False(t, s.IsValid(node))
	assert.True(t, s.IsValid(reused))

	name, err := s.Name(reused)
	require.NoError(t, err)
	assert.Equal(t, "b", name)
}

func TestDestroyNodeRemovesSubtree(t *testing.T) {
	s := newTestScene(t)

	parent, err := s.CreateNode("parent", s.Root())
	require.NoError(t, err)
	child, err := s.CreateNode("child", parent)
	require.NoError(t, err)
	grandchild, err := s.CreateNode("grandchild", child)
	require.NoError(t, err)
	sibling, err := s.CreateNode("sibling", s.Root())
	require.NoError(t, err)

	require.NoError(t, s.DestroyNode(parent))
	assert.False(t, s.IsValid(parent))
	assert.False(t, s.IsValid(child))
	assert.False(t, s.IsValid(grandchild))
	assert.True(t, s.IsValid(sibling))
	assert.Equal(t, 2, s.NodeCount()) // root + sibling

	destroyed := s.DrainDestroyed()
	assert.ElementsMatch(t, []uint64{uint64(parent), uint64(child), uint64(grandchild)}, destroyed)
	assert.Empty(t, s.DrainDestroyed())
}

func TestRootCannotBeDestroyed(t *testing.T) {
	s := newTestScene(t)
	assert.Error(t, s.DestroyNode(s.Root()))
	assert.True(t, s.IsValid(s.Root()))
}

func TestSetParentRejectsCycles(t *testing.T) {
	s := newTestScene(t)

	a, err := s.CreateNode("a", s.Root())
	require.NoError(t, err)
	b, err := s.CreateNode("b", a)
	require.NoError(t, err)
	c, err := s.CreateNode("c", b)
	require.NoError(t, err)

	assert.Error(t, s.SetParent(a, c))
	assert.Error(t, s.SetParent(a, a))

	// A legal reparent keeps the subtree intact.
	require.NoError(t, s.SetParent(c, a))
	s.Update()
	assert.True(t, s.IsValid(c))
}

func TestUpdatePropagatesWorldMatrices(t *testing.T) {
	s := newTestScene(t)

	parent, err := s.CreateNode("parent", s.Root())
	require.NoError(t, err)
	child, err := s.CreateNode("child", parent)
	require.NoError(t, err)

	parentLocal := math.TransformCreate()
	parentLocal.SetPosition(math.NewVec3(0, 2, 0))
	require.NoError(t, s.SetLocalTransform(parent, parentLocal))

	childLocal := math.TransformCreate()
	childLocal.SetPosition(math.NewVec3(1, 0, 0))
	require.NoError(t, s.SetLocalTransform(child, childLocal))

	s.Update()

	world, err := s.WorldMatrix(child)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, world.Data[12], 1e-6)
	assert.InDelta(t, 2.0, world.Data[13], 1e-6)
	assert.InDelta(t, 0.0, world.Data[14], 1e-6)

	// Reparenting to the root drops the inherited offset.
	require.NoError(t, s.SetParent(child, s.Root()))
	s.Update()
	world, err = s.WorldMatrix(child)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, world.Data[12], 1e-6)
	assert.InDelta(t, 0.0, world.Data[13], 1e-6)
}

func testRenderable() *RenderableComponent {
	return &RenderableComponent{
		Geometry: &metadata.GeometryAsset{
			Key:    42,
			Name:   "quad",
			LODs:   []metadata.MeshLOD{{VertexCount: 4}},
			Bounds: math.BoundingSphere{Radius: 1},
		},
		Layer:    metadata.RenderLayerDefault,
		PassMask: metadata.PassOpaque,
	}
}

func TestCollectRenderablesSkipsBareNodes(t *testing.T) {
	s := newTestScene(t)

	drawable, err := s.CreateNode("drawable", s.Root())
	require.NoError(t, err)
	require.NoError(t, s.SetRenderable(drawable, testRenderable()))

	_, err = s.CreateNode("empty", s.Root())
	require.NoError(t, err)

	s.Update()
	inputs := s.CollectRenderables()
	require.Len(t, inputs, 1)
	assert.Equal(t, uint64(drawable), inputs[0].Node)
	assert.True(t, inputs[0].Visible)
	assert.Equal(t, metadata.PassOpaque, inputs[0].PassMask)
}

func TestCollectRenderablesInheritsVisibility(t *testing.T) {
	s := newTestScene(t)

	parent, err := s.CreateNode("parent", s.Root())
	require.NoError(t, err)
	child, err := s.CreateNode("child", parent)
	require.NoError(t, err)
	require.NoError(t, s.SetRenderable(child, testRenderable()))

	s.Update()
	inputs := s.CollectRenderables()
	require.Len(t, inputs, 1)
	assert.True(t, inputs[0].Visible)

	// Hiding the parent hides the child even though the child's own
	// flag is untouched.
	require.NoError(t, s.SetVisible(parent, false))
	s.Update()
	inputs = s.CollectRenderables()
	require.Len(t, inputs, 1)
	assert.False(t, inputs[0].Visible)
}

func TestCollectRenderablesScalesBoundsConservatively(t *testing.T) {
	s := newTestScene(t)

	node, err := s.CreateNode("scaled", s.Root())
	require.NoError(t, err)
	require.NoError(t, s.SetRenderable(node, testRenderable()))

	local := math.TransformCreate()
	local.SetPositionRotationScale(
		math.NewVec3(3, 0, 0),
		math.NewQuatIdentity(),
		math.NewVec3(1, 4, 2),
	)
	require.NoError(t, s.SetLocalTransform(node, local))

	s.Update()
	inputs := s.CollectRenderables()
	require.Len(t, inputs, 1)
	// Largest axis scale wins so the sphere stays conservative.
	assert.InDelta(t, 4.0, inputs[0].Bounds.Radius, 1e-5)
	assert.InDelta(t, 3.0, inputs[0].Bounds.Center.X, 1e-5)
}

func TestCollectLightsFiltersAndNormalizes(t *testing.T) {
	s := newTestScene(t)

	sun := NewDirectionalLight("sun")
	sun.Direction = math.NewVec3(0, -2, 0)
	sun.CastsShadows = true
	s.AddDirectionalLight(sun)

	off := NewDirectionalLight("off")
	off.Enabled = false
	s.AddDirectionalLight(off)

	lights := s.CollectLights()
	require.Len(t, lights, 1)
	assert.InDelta(t, -1.0, lights[0].DirectionWS[1], 1e-6)
	assert.Equal(t, metadata.InvalidID, lights[0].ShadowIndex)
	assert.NotZero(t, lights[0].Flags&metadata.DirectionalLightCastsShadows)

	s.RemoveDirectionalLight(sun)
	assert.Empty(t, s.CollectLights())
}
