package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxyengine/oxygen/engine/math"
)

func TestCameraDefaultLooksDownNegativeZ(t *testing.T) {
	camera := NewCamera()
	forward := camera.Forward()
	assert.InDelta(t, 0.0, forward.X, 1e-6)
	assert.InDelta(t, 0.0, forward.Y, 1e-6)
	assert.InDelta(t, -1.0, forward.Z, 1e-6)

	camera.MoveForward(5)
	assert.InDelta(t, -5.0, camera.GetPosition().Z, 1e-5)
}

func TestCameraYawTurnsRightVector(t *testing.T) {
	camera := NewCamera()
	camera.Yaw(math.DegToRad(90))
	forward := camera.Forward()
	// A quarter turn swings the forward axis onto +X.
	assert.InDelta(t, 1.0, forward.X, 1e-5)
	assert.InDelta(t, 0.0, forward.Z, 1e-5)

	right := camera.Right()
	assert.InDelta(t, 1.0, right.Z, 1e-5)
}

func TestCameraPitchClampsAtPoles(t *testing.T) {
	camera := NewCamera()
	camera.Pitch(math.DegToRad(200))
	assert.InDelta(t, math.DegToRad(89), camera.GetEulerRotation().X, 1e-6)
	camera.Pitch(math.DegToRad(-400))
	assert.InDelta(t, -math.DegToRad(89), camera.GetEulerRotation().X, 1e-6)
}

func TestCameraViewMatrixTracksPosition(t *testing.T) {
	camera := NewCamera()
	camera.SetPosition(math.NewVec3(0, 0, 10))
	view := camera.GetViewMatrix()

	// The camera position maps to the view-space origin.
	eye := camera.GetPosition().Transform(view)
	assert.InDelta(t, 0.0, eye.X, 1e-5)
	assert.InDelta(t, 0.0, eye.Y, 1e-5)
	assert.InDelta(t, 0.0, eye.Z, 1e-5)

	// A point in front of the camera lands on the -Z axis.
	ahead := math.NewVec3(0, 0, 5).Transform(view)
	assert.InDelta(t, -5.0, ahead.Z, 1e-5)
}

func TestCameraProjectionSwitchKeepsPose(t *testing.T) {
	camera := NewCamera()
	camera.SetPosition(math.NewVec3(1, 2, 3))
	camera.Yaw(0.5)
	perspective := camera.GetViewMatrix()

	camera.Kind = ProjectionOrthographic
	assert.Equal(t, perspective, camera.GetViewMatrix())

	ortho := camera.GetProjectionMatrix()
	assert.NotEqual(t, perspective, ortho)
	// Orthographic projections have no perspective divide term.
	assert.InDelta(t, 0.0, ortho.Data[11], 1e-6)
	assert.InDelta(t, 1.0, ortho.Data[15], 1e-6)
}

func TestEffectiveVerticalFOV(t *testing.T) {
	camera := NewCamera()
	assert.InDelta(t, camera.FOVRadians, camera.effectiveVerticalFOV(), 1e-6)

	camera.Kind = ProjectionOrthographic
	fov := camera.effectiveVerticalFOV()
	assert.Greater(t, fov, float32(0))
	assert.Less(t, fov, math.DegToRad(90))
}

func TestBuildViewContextDerivesAspectAndFrustum(t *testing.T) {
	s := newTestScene(t)
	node, err := s.CreateNode("box", s.Root())
	require.NoError(t, err)
	require.NoError(t, s.SetRenderable(node, testRenderable()))
	s.Update()

	camera := NewCamera()
	camera.SetPosition(math.NewVec3(0, 0, 5))
	view := BuildViewContext(camera, 1920, 1080, 1.5)

	assert.InDelta(t, 1920.0/1080.0, camera.AspectRatio, 1e-6)
	assert.Equal(t, float32(1080), view.ViewportHeight)
	assert.Equal(t, float32(1.5), view.TimeSeconds)

	// The unit sphere at the origin sits inside the frustum; one far
	// behind the camera does not.
	assert.True(t, view.Frustum.IntersectsSphere(math.BoundingSphere{Radius: 1}))
	assert.False(t, view.Frustum.IntersectsSphere(math.BoundingSphere{
		Center: math.NewVec3(0, 0, 200),
		Radius: 1,
	}))
}
