// Package spatial provides the minimal vector and transform types shared by the
// player registry and the observation engine. Rotations are Euler angles in degrees,
// matching the wire representation.
package spatial

import "math"

// Vec3 is a three-component vector.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Slice returns the components as a three-element slice.
func (v Vec3) Slice() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// Lerp interpolates from a toward b by t, clamping t to [0, 1].
func Lerp(a, b Vec3, t float64) Vec3 {
	t = clamp01(t)
	return a.Add(b.Sub(a).Scale(t))
}

// LerpAngles interpolates Euler angles per axis along the shortest arc, clamping t to [0, 1].
//
// Postcondition: each returned component is in [0, 360).
func LerpAngles(a, b Vec3, t float64) Vec3 {
	t = clamp01(t)
	return Vec3{
		X: wrapDegrees(a.X + shortestDelta(a.X, b.X)*t),
		Y: wrapDegrees(a.Y + shortestDelta(a.Y, b.Y)*t),
		Z: wrapDegrees(a.Z + shortestDelta(a.Z, b.Z)*t),
	}
}

func shortestDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

func wrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

func clamp01(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}

// PositionAndRotation pairs a position with Euler rotation angles.
type PositionAndRotation struct {
	Position Vec3 `yaml:"position"`
	Rotation Vec3 `yaml:"rotation"`
}

// Transform is a simple scene node. A parent translates its children; parent
// rotation is added to child rotation but does not rotate child offsets.
type Transform struct {
	Name          string
	Parent        *Transform
	localPosition Vec3
	localRotation Vec3
	kinematic     bool
}

// NewTransform creates a root transform at the given world position and rotation.
func NewTransform(name string, position, rotation Vec3) *Transform {
	return &Transform{Name: name, localPosition: position, localRotation: rotation}
}

func (t *Transform) parentPosition() Vec3 {
	if t.Parent == nil {
		return Vec3{}
	}
	return t.Parent.Position()
}

func (t *Transform) parentRotation() Vec3 {
	if t.Parent == nil {
		return Vec3{}
	}
	return t.Parent.Rotation()
}

// Position returns the world-space position.
func (t *Transform) Position() Vec3 { return t.parentPosition().Add(t.localPosition) }

// SetPosition moves the transform to a world-space position.
func (t *Transform) SetPosition(v Vec3) { t.localPosition = v.Sub(t.parentPosition()) }

// Rotation returns the world-space Euler rotation.
func (t *Transform) Rotation() Vec3 { return t.parentRotation().Add(t.localRotation) }

// SetRotation sets the world-space Euler rotation.
func (t *Transform) SetRotation(v Vec3) { t.localRotation = v.Sub(t.parentRotation()) }

// LocalPosition returns the position relative to the parent.
func (t *Transform) LocalPosition() Vec3 { return t.localPosition }

// SetLocalPosition sets the position relative to the parent.
func (t *Transform) SetLocalPosition(v Vec3) { t.localPosition = v }

// LocalRotation returns the rotation relative to the parent.
func (t *Transform) LocalRotation() Vec3 { return t.localRotation }

// SetLocalRotation sets the rotation relative to the parent.
func (t *Transform) SetLocalRotation(v Vec3) { t.localRotation = v }

// SetKinematic marks whether local simulation is suspended for this node.
func (t *Transform) SetKinematic(k bool) { t.kinematic = k }

// IsKinematic reports whether local simulation is suspended.
func (t *Transform) IsKinematic() bool { return t.kinematic }
