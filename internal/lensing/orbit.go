package lensing

import (
	"fmt"
	"math"

	"github.com/star/lensgo/internal/geometry"
)

// OrbitSample is the planet position at one discrete time step.
type OrbitSample struct {
	Step     int
	Position geometry.Vector2
}

// OrbitPosition returns the planet position at step t on a circular orbit of the
// given radius centered on the origin. The caller guarantees period > 0.
func OrbitPosition(t, period int, radius float64) geometry.Vector2 {
	angle := 2 * math.Pi * float64(t) / float64(period)
	return geometry.FromPolar(radius, angle)
}

// SampleOrbit returns one sample per step in [0, period). The result depends
// only on its arguments, so repeated calls yield identical sequences.
func SampleOrbit(period int, radius float64) ([]OrbitSample, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: orbital period %d must be positive", ErrInvalidConfiguration, period)
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: orbit radius %v must be positive and finite", ErrInvalidConfiguration, radius)
	}

	samples := make([]OrbitSample, period)
	for t := 0; t < period; t++ {
		samples[t] = OrbitSample{
			Step:     t,
			Position: OrbitPosition(t, period, radius),
		}
	}
	return samples, nil
}
