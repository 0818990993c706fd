package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/** @brief a 4x4 matrix, typically used to represent object transformations. */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/** @brief a 3x3 matrix, used for normal transforms. */
type Mat3 struct {
	Data [9]float32
}

/**
 * @brief A sphere enclosing an object in world space, used for
 * cheap frustum rejection and LOD distance selection.
 */
type BoundingSphere struct {
	Center Vec3
	Radius float32
}

// Plane in the form dot(Normal, p) + D = 0, with Normal pointing inside
// the accepted half-space.
type Plane struct {
	Normal Vec3
	D      float32
}

// Frustum holds the six clipping planes of a view volume.
type Frustum struct {
	Planes [6]Plane
}
