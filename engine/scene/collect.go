package scene

import (
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
	"github.com/oxyengine/oxygen/engine/systems"
)

// CollectRenderables snapshots every effectively visible node carrying
// a renderable into scene prep inputs. Bounds are the geometry bounds
// taken to world space; propagation must have run for this frame.
func (s *Scene) CollectRenderables() []systems.ScenePrepInput {
	inputs := make([]systems.ScenePrepInput, 0, len(s.nodes))
	for i := range s.nodes {
		slot := &s.nodes[i]
		if !slot.alive || slot.renderable == nil || slot.renderable.Geometry == nil {
			continue
		}
		renderable := slot.renderable
		inputs = append(inputs, systems.ScenePrepInput{
			Node:      uint64(makeHandle(uint32(i), slot.generation)),
			Visible:   slot.worldVisible,
			World:     slot.world,
			Bounds:    worldBounds(renderable.Geometry.Bounds, slot.world),
			Layer:     renderable.Layer,
			Geometry:  renderable.Geometry,
			Materials: renderable.Materials,
			Policy:    renderable.Policy,
			PassMask:  renderable.PassMask,
			Flags:     renderable.Flags,
		})
	}
	return inputs
}

// worldBounds transforms a local bounding sphere, scaling the radius by
// the largest axis scale so the sphere stays conservative.
func worldBounds(local math.BoundingSphere, world math.Mat4) math.BoundingSphere {
	center := local.Center.Transform(world)
	sx := math.NewVec3(world.Data[0], world.Data[1], world.Data[2]).Length()
	sy := math.NewVec3(world.Data[4], world.Data[5], world.Data[6]).Length()
	sz := math.NewVec3(world.Data[8], world.Data[9], world.Data[10]).Length()
	scale := max(sx, max(sy, sz))
	return math.BoundingSphere{Center: center, Radius: local.Radius * scale}
}

// DrainDestroyed returns and clears the handles destroyed since the
// last call, for downstream per-node state cleanup.
func (s *Scene) DrainDestroyed() []uint64 {
	destroyed := s.destroyed
	s.destroyed = nil
	return destroyed
}

// BuildViewContext derives the scene prep view from a camera and
// viewport.
func BuildViewContext(camera *Camera, viewportWidth, viewportHeight uint32, timeSeconds float32) *systems.ViewContext {
	camera.AspectRatio = float32(viewportWidth) / float32(viewportHeight)
	view := camera.GetViewMatrix()
	projection := camera.GetProjectionMatrix()
	return &systems.ViewContext{
		CameraPosition: camera.GetPosition(),
		View:           view,
		Projection:     projection,
		Frustum:        math.NewFrustumFromViewProjection(view.Mul(projection)),
		ViewportHeight: float32(viewportHeight),
		VerticalFOV:    camera.effectiveVerticalFOV(),
		LayerMask:      ^metadata.RenderLayer(0),
		TimeSeconds:    timeSeconds,
	}
}
