package scene

import (
	"github.com/chewxy/math32"

	"github.com/oxyengine/oxygen/engine/math"
)

type ProjectionKind uint8

const (
	ProjectionPerspective ProjectionKind = iota
	ProjectionOrthographic
)

/**
 * Camera derives the view matrix from a position and Euler rotation.
 * Both projection kinds share the same placement semantics: switching
 * a camera between perspective and orthographic keeps it looking at
 * the same spot from the same pose, only the projection changes.
 */
type Camera struct {
	position      math.Vec3
	eulerRotation math.Vec3

	Kind        ProjectionKind
	FOVRadians  float32
	NearClip    float32
	FarClip     float32
	AspectRatio float32
	// Vertical world-space extent of the orthographic volume.
	OrthoHeight float32

	isDirty bool
	view    math.Mat4
}

func NewCamera() *Camera {
	return &Camera{
		Kind:        ProjectionPerspective,
		FOVRadians:  math.DegToRad(45.0),
		NearClip:    0.1,
		FarClip:     1000.0,
		AspectRatio: 16.0 / 9.0,
		OrthoHeight: 10.0,
		isDirty:     true,
		view:        math.NewMat4Identity(),
	}
}

func (c *Camera) Reset() {
	c.position = math.NewVec3Zero()
	c.eulerRotation = math.NewVec3Zero()
	c.isDirty = true
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *Camera) GetEulerRotation() math.Vec3 {
	return c.eulerRotation
}

// SetEulerRotation sets yaw (Y), pitch (X) and roll (Z) in radians.
func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.eulerRotation = rotation
	c.isDirty = true
}

func (c *Camera) rotationQuat() math.Quaternion {
	yaw := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), c.eulerRotation.Y)
	pitch := math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), c.eulerRotation.X)
	roll := math.NewQuatFromAxisAngle(math.NewVec3(0, 0, 1), c.eulerRotation.Z)
	return roll.Mul(pitch).Mul(yaw).Normalized()
}

func (c *Camera) Forward() math.Vec3 {
	rot := c.rotationQuat().ToMat4()
	return math.NewVec3(-rot.Data[8], -rot.Data[9], -rot.Data[10]).Normalized()
}

func (c *Camera) Right() math.Vec3 {
	rot := c.rotationQuat().ToMat4()
	return math.NewVec3(rot.Data[0], rot.Data[1], rot.Data[2]).Normalized()
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.position.Add(c.Forward().MulScalar(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.position.Add(c.Right().MulScalar(amount)))
}

// Yaw rotates around the vertical axis by amount radians.
func (c *Camera) Yaw(amount float32) {
	c.eulerRotation.Y += amount
	c.isDirty = true
}

// Pitch rotates around the lateral axis, clamped short of the poles to
// avoid gimbal lock.
func (c *Camera) Pitch(amount float32) {
	limit := math.DegToRad(89.0)
	c.eulerRotation.X = math.Clamp(c.eulerRotation.X+amount, -limit, limit)
	c.isDirty = true
}

func (c *Camera) GetViewMatrix() math.Mat4 {
	if c.isDirty {
		target := c.position.Add(c.Forward())
		c.view = math.NewMat4LookAt(c.position, target, math.NewVec3Up())
		c.isDirty = false
	}
	return c.view
}

// GetProjectionMatrix builds the projection for the camera's kind. The
// orthographic volume spans OrthoHeight vertically, widened by the
// aspect ratio, matching how the perspective FOV maps to the viewport.
func (c *Camera) GetProjectionMatrix() math.Mat4 {
	if c.Kind == ProjectionOrthographic {
		halfH := c.OrthoHeight * 0.5
		halfW := halfH * c.AspectRatio
		return math.NewMat4Orthographic(-halfW, halfW, -halfH, halfH, c.NearClip, c.FarClip)
	}
	return math.NewMat4Perspective(c.FOVRadians, c.AspectRatio, c.NearClip, c.FarClip)
}

// effectiveVerticalFOV gives screen-space-error selection a working
// angle for orthographic cameras too, derived from the ortho volume at
// the mid clip distance.
func (c *Camera) effectiveVerticalFOV() float32 {
	if c.Kind == ProjectionOrthographic {
		mid := (c.NearClip + c.FarClip) * 0.5
		if mid <= 0 {
			return c.FOVRadians
		}
		return 2 * math32.Atan(c.OrthoHeight*0.5/mid)
	}
	return c.FOVRadians
}
