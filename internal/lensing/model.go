package lensing

import (
	"fmt"
	"math"

	"github.com/star/lensgo/internal/geometry"
)

// floorExcess is A(ImpactFloor) - 1, the largest raw excess the model can see.
var floorExcess = PointLens(ImpactFloor) - 1

// PointLens returns the point-source/point-lens magnification
// A(u) = (u²+2) / (u·sqrt(u²+4)). It decreases monotonically from +Inf at
// u=0 toward 1 as u grows; callers floor u before calling.
func PointLens(u float64) float64 {
	u2 := u * u
	return (u2 + 2) / (u * math.Sqrt(u2+4))
}

// EinsteinRadius returns the display-calibrated Einstein-radius proxy for a
// planet/star mass ratio.
func EinsteinRadius(massRatio float64) float64 {
	return EinsteinScale * math.Sqrt(massRatio/ReferenceMassRatio)
}

// Model evaluates the magnification of the star for planet positions under a
// fixed observer, star and mass ratio. Immutable after construction and safe
// for concurrent use.
type Model struct {
	observer  geometry.Vector2
	star      geometry.Vector2
	los       geometry.Vector2 // unit vector observer→star
	distance  float64          // |star - observer|
	massRatio float64
	radiusE   float64
	gain      float64 // scales raw A(u)-1 to the displayed excess
}

// Evaluation holds the intermediate quantities of one magnification evaluation.
type Evaluation struct {
	Impact         float64 // b, scene units
	U              float64 // normalized impact parameter after flooring
	AlignmentAngle float64 // radians between observer→star and observer→planet
	Along          float64 // projection of observer→planet onto the line of sight
	Aligned        bool    // alignment gate result
	Magnification  float64
}

// NewModel validates the run geometry and mass ratio and precomputes the
// line of sight and calibration gain.
func NewModel(observer, star geometry.Vector2, massRatio float64) (*Model, error) {
	if !(massRatio > 0) || math.IsInf(massRatio, 0) {
		return nil, fmt.Errorf("%w: mass ratio %v must be positive and finite", ErrInvalidConfiguration, massRatio)
	}
	if !observer.IsFinite() || !star.IsFinite() {
		return nil, fmt.Errorf("%w: observer %+v and star %+v must be finite", ErrInvalidConfiguration, observer, star)
	}

	los, dist := star.Sub(observer).Normalize()
	if dist == 0 {
		return nil, fmt.Errorf("%w: observer at %+v", ErrDegenerateGeometry, observer)
	}

	return &Model{
		observer:  observer,
		star:      star,
		los:       los,
		distance:  dist,
		massRatio: massRatio,
		radiusE:   EinsteinRadius(massRatio),
		gain:      PeakExcess * (massRatio / ReferenceMassRatio) / floorExcess,
	}, nil
}

// EinsteinRadius returns the model's Einstein-radius proxy in scene units.
func (m *Model) EinsteinRadius() float64 { return m.radiusE }

// Max returns the ceiling reached when the planet sits exactly on the line of
// sight. No planet position yields a larger value.
func (m *Model) Max() float64 {
	return Baseline + PeakExcess*m.massRatio/ReferenceMassRatio
}

// At returns the magnification (>= 1) for the given planet position.
func (m *Model) At(planet geometry.Vector2) float64 {
	return m.Evaluate(planet).Magnification
}

// Evaluate runs the full model for one planet position and returns the
// intermediate values alongside the magnification. Non-finite planet
// positions fail the gate and report baseline.
func (m *Model) Evaluate(planet geometry.Vector2) Evaluation {
	proj := geometry.ProjectOntoLine(planet, m.observer, m.los)

	ev := Evaluation{
		Impact:         proj.Perpendicular,
		U:              math.Max(proj.Perpendicular/m.radiusE, ImpactFloor),
		AlignmentAngle: geometry.AngleBetween(m.los, planet.Sub(m.observer)),
		Along:          proj.Along,
		Magnification:  Baseline,
	}
	ev.Aligned = m.aligned(ev.AlignmentAngle, ev.Along)

	if !ev.Aligned || ev.U > CutoffImpact {
		return ev
	}

	excess := m.gain * (PointLens(ev.U) - 1)
	ev.Magnification = math.Max(Baseline, Baseline+excess)
	return ev
}

// aligned is the alignment gate: near-collinear with the sight line and lying
// between observer and star. The far side of the orbit is collinear too but
// projects beyond the star, so it never passes.
func (m *Model) aligned(angle, along float64) bool {
	if !(angle < AlignmentTolerance) {
		return false
	}
	return along > 0 && along <= m.distance*(1+ProjectionMargin)
}

// Magnification is a one-shot convenience around NewModel and Model.At.
// Prefer building a Model once per run when evaluating many positions.
func Magnification(planet, observer, star geometry.Vector2, massRatio float64) (float64, error) {
	m, err := NewModel(observer, star, massRatio)
	if err != nil {
		return 0, err
	}
	return m.At(planet), nil
}
