// Package lensing implements the simplified single-lens, single-planet
// microlensing model: a circular orbit sampler and an alignment-gated,
// display-calibrated point-lens magnification function.
//
// The observer, star and mass ratio are fixed for a run, so they are validated
// once by [NewModel]; evaluating a planet position with [Model.At] cannot fail.
//
// Magnification pipeline for one planet position:
//
//	b  = distance from planet to the observer–star line
//	rE = EinsteinScale · sqrt(q / ReferenceMassRatio)
//	u  = max(b / rE, ImpactFloor)
//	gate: angle(observer→star, observer→planet) < AlignmentTolerance
//	      and the planet projects between observer and star
//	A(u) = (u²+2) / (u·sqrt(u²+4))
//	M  = 1 + PeakExcess · (q/ReferenceMassRatio) · (A(u)−1)/(A(ImpactFloor)−1)
//
// M is forced to exactly 1 when the gate fails or u > CutoffImpact, and is
// never below 1.
package lensing
