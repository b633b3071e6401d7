// Package geometry provides the 2D vector math shared by the orbit sampler and
// the lensing model. All values are plain value types; nothing here allocates.
package geometry

import "math"

// Vector2 is a point or direction in the scene plane (scene units).
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FromPolar returns the point at radius r along angle rad (radians, CCW from +X).
func FromPolar(r, rad float64) Vector2 {
	return Vector2{X: r * math.Cos(rad), Y: r * math.Sin(rad)}
}

// Add returns v + w.
func (v Vector2) Add(w Vector2) Vector2 { return Vector2{X: v.X + w.X, Y: v.Y + w.Y} }

// Sub returns v - w.
func (v Vector2) Sub(w Vector2) Vector2 { return Vector2{X: v.X - w.X, Y: v.Y - w.Y} }

// Scale returns k·v.
func (v Vector2) Scale(k float64) Vector2 { return Vector2{X: k * v.X, Y: k * v.Y} }

// Dot returns the scalar product v·w.
func (v Vector2) Dot(w Vector2) float64 { return v.X*w.X + v.Y*w.Y }

// Cross returns the z component of v×w (signed parallelogram area).
func (v Vector2) Cross(w Vector2) float64 { return v.X*w.Y - v.Y*w.X }

// Norm returns the Euclidean length of v.
func (v Vector2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// Normalize returns the unit vector along v and its original length.
// A zero vector is returned unchanged with length 0; callers must check.
func (v Vector2) Normalize() (Vector2, float64) {
	n := v.Norm()
	if n == 0 {
		return v, 0
	}
	return Vector2{X: v.X / n, Y: v.Y / n}, n
}

// Distance returns |v - w|.
func (v Vector2) Distance(w Vector2) float64 { return v.Sub(w).Norm() }

// IsFinite reports whether both components are finite numbers.
func (v Vector2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// AngleBetween returns the unsigned angle in radians between v and w, in [0, π].
// Uses atan2(|v×w|, v·w), which stays accurate near 0 and π where acos does not.
// Returns 0 when either vector has zero length.
func AngleBetween(v, w Vector2) float64 {
	if v.Norm() == 0 || w.Norm() == 0 {
		return 0
	}
	return math.Atan2(math.Abs(v.Cross(w)), v.Dot(w))
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180.0 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// NormalizeDeg wraps an angle in degrees into [0, 360).
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg
}
