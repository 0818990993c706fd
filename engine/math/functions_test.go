package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVec3Basics(t *testing.T) {
	v := NewVec3(3, 4, 0)
	assert.InDelta(t, 5.0, v.Length(), 1e-6)
	assert.InDelta(t, 1.0, v.Normalized().Length(), 1e-6)
	assert.InDelta(t, 5.0, v.Distance(NewVec3(0, 0, 0)), 1e-6)
	assert.InDelta(t, 0.0, NewVec3Zero().Normalized().Length(), 1e-6)

	cross := NewVec3(1, 0, 0).Cross(NewVec3(0, 1, 0))
	assert.InDelta(t, 1.0, cross.Z, 1e-6)
	assert.InDelta(t, 0.0, NewVec3(1, 0, 0).Dot(NewVec3(0, 1, 0)), 1e-6)
}

func TestMat4MulComposesTranslations(t *testing.T) {
	a := NewMat4Translation(NewVec3(1, 0, 0))
	b := NewMat4Translation(NewVec3(0, 2, 0))
	c := a.Mul(b)
	p := NewVec3Zero().Transform(c)
	assert.InDelta(t, 1.0, p.X, 1e-6)
	assert.InDelta(t, 2.0, p.Y, 1e-6)

	// Identity is neutral on both sides.
	assert.Equal(t, a, a.Mul(NewMat4Identity()))
	assert.Equal(t, a, NewMat4Identity().Mul(a))
}

func TestMat4InverseRoundTrips(t *testing.T) {
	local := TransformFromPositionRotationScale(
		NewVec3(2, -1, 4),
		NewQuatFromAxisAngle(NewVec3Up(), DegToRad(30)),
		NewVec3(2, 2, 2),
	)
	m := local.GetLocal()
	round := m.Mul(m.Inverse())
	identity := NewMat4Identity()
	for i := range round.Data {
		assert.InDelta(t, identity.Data[i], round.Data[i], 1e-4)
	}
}

func TestNormalMatrixUndoesNonUniformScale(t *testing.T) {
	m := NewMat4Scale(NewVec3(2, 1, 1))
	n := m.NormalMatrix()

	// A normal on the scaled axis shrinks by the inverse scale and
	// renormalizes back to the same direction.
	assert.InDelta(t, 0.5, n.Data[0], 1e-6)
	assert.InDelta(t, 1.0, n.Data[4], 1e-6)
	assert.InDelta(t, 1.0, n.Data[8], 1e-6)
}

func TestTransformLocalAppliesScaleRotationTranslation(t *testing.T) {
	local := TransformFromPositionRotationScale(
		NewVec3(0, 0, -5),
		NewQuatFromAxisAngle(NewVec3Up(), DegToRad(90)),
		NewVec3(2, 1, 1),
	)
	// A unit X point: scaled to (2,0,0), yawed onto +Z, then translated.
	p := NewVec3(1, 0, 0).Transform(local.GetLocal())
	assert.InDelta(t, 0.0, p.X, 1e-5)
	assert.InDelta(t, 0.0, p.Y, 1e-5)
	assert.InDelta(t, -3.0, p.Z, 1e-5)

	// The cached matrix refreshes after a mutation.
	local.SetPosition(NewVec3Zero())
	p = NewVec3(1, 0, 0).Transform(local.GetLocal())
	assert.InDelta(t, 2.0, p.Z, 1e-5)
}

func TestQuaternionRotationComposition(t *testing.T) {
	quarter := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(90))
	half := quarter.Mul(quarter)
	p := NewVec3(1, 0, 0).Transform(half.ToMat4())
	assert.InDelta(t, -1.0, p.X, 1e-5)
	assert.InDelta(t, 0.0, p.Z, 1e-5)

	assert.InDelta(t, 1.0, quarter.Normalized().ToMat4().Data[5], 1e-5)
}

func TestFrustumCullsAgainstAllPlanes(t *testing.T) {
	view := NewMat4LookAt(NewVec3Zero(), NewVec3(0, 0, -1), NewVec3Up())
	projection := NewMat4Perspective(DegToRad(60), 1.0, 0.1, 100)
	frustum := NewFrustumFromViewProjection(view.Mul(projection))

	inside := BoundingSphere{Center: NewVec3(0, 0, -10), Radius: 1}
	assert.True(t, frustum.IntersectsSphere(inside))

	behind := BoundingSphere{Center: NewVec3(0, 0, 10), Radius: 1}
	assert.False(t, frustum.IntersectsSphere(behind))

	beyondFar := BoundingSphere{Center: NewVec3(0, 0, -200), Radius: 1}
	assert.False(t, frustum.IntersectsSphere(beyondFar))

	farLeft := BoundingSphere{Center: NewVec3(-50, 0, -10), Radius: 1}
	assert.False(t, frustum.IntersectsSphere(farLeft))

	// A sphere straddling a plane still intersects.
	straddling := BoundingSphere{Center: NewVec3(0, 0, 0.05), Radius: 1}
	assert.True(t, frustum.IntersectsSphere(straddling))
}

func TestLookAtMapsWorldToView(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())

	origin := NewVec3Zero().Transform(view)
	assert.InDelta(t, -5.0, origin.Z, 1e-5)

	// World +Y stays view +Y for a camera looking down -Z.
	above := NewVec3(0, 1, 5).Transform(view)
	assert.InDelta(t, 1.0, above.Y, 1e-5)
	assert.InDelta(t, 0.0, above.Z, 1e-5)
}

func TestPerspectiveDepthRange(t *testing.T) {
	projection := NewMat4Perspective(DegToRad(90), 1.0, 1, 100)

	project := func(z float32) float32 {
		clip := NewVec3(0, 0, z).Transform(projection)
		w := -z // row-vector convention: w = -z for this projection
		return clip.Z / w
	}
	require.InDelta(t, -1.0, project(-1), 1e-4)
	assert.InDelta(t, 1.0, project(-100), 1e-3)
}

func TestDegRadRoundTrip(t *testing.T) {
	assert.InDelta(t, Pi, DegToRad(180), 1e-6)
	assert.InDelta(t, 180.0, RadToDeg(Pi), 1e-5)
	assert.InDelta(t, 90.0, RadToDeg(DegToRad(90)), 1e-4)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(10, 0, 5))
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, float32(2.5), Clamp(float32(2.5), 0, 5))
}
