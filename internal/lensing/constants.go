package lensing

import "math"

// Calibration constants for the display-scaled point-lens model.
//
// These were tuned for visual legibility of the animation and are not derived
// from physical units. They preserve the physical orderings only: the Einstein
// radius grows with sqrt(mass ratio) and a heavier planet never produces a
// lower peak.
const (
	// EinsteinScale is the Einstein-radius proxy (scene units) at ReferenceMassRatio.
	EinsteinScale = 0.5

	// ReferenceMassRatio is the Jupiter-like planet/star mass ratio the
	// display calibration is anchored to.
	ReferenceMassRatio = 0.001

	// PeakExcess is the magnification excess shown at ReferenceMassRatio when
	// the planet sits exactly on the line of sight.
	PeakExcess = 0.15

	// ImpactFloor is the smallest normalized impact parameter u used in the
	// point-lens formula. A(u) diverges as u→0; flooring keeps the peak finite
	// when the planet crosses the sight line exactly.
	ImpactFloor = 0.05

	// CutoffImpact is the normalized impact parameter beyond which the source
	// is reported unlensed (exactly 1.0), giving the bump a finite width.
	CutoffImpact = 3.0

	// AlignmentTolerance is the largest angle (radians) between the
	// observer→star and observer→planet directions that still counts as aligned.
	AlignmentTolerance = 10.0 * math.Pi / 180.0

	// ProjectionMargin is the fractional slack allowed past the star when
	// checking that the planet lies between observer and star.
	ProjectionMargin = 0.05
)

// Baseline is the unlensed magnification.
const Baseline = 1.0
