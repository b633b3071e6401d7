// Package simulation turns a run configuration into the aligned position and
// magnification sequences a renderer consumes.
package simulation

import (
	"fmt"
	"math"

	"github.com/star/lensgo/internal/lensing"
)

// Configuration domain accepted from the outer configuration layer.
const (
	MinOrbitalPeriod = 100
	MaxOrbitalPeriod = 1000
	MaxMassRatio     = 0.002
)

// Config holds the inputs of one run. Immutable for the run's duration and
// comparable, so it can key the run cache directly.
type Config struct {
	OrbitalPeriod    int     `json:"orbital_period" yaml:"orbital_period"` // discrete steps per orbit
	MassRatio        float64 `json:"mass_ratio" yaml:"mass_ratio"`         // planet/star
	ObserverAngleDeg float64 `json:"observer_angle" yaml:"observer_angle"` // degrees, [0, 360)
}

// DefaultConfig returns the configuration used when nothing else is supplied.
func DefaultConfig() Config {
	return Config{
		OrbitalPeriod:    200,
		MassRatio:        lensing.ReferenceMassRatio,
		ObserverAngleDeg: 90,
	}
}

// Validate rejects configurations that would make the core divide by zero or
// propagate NaN/Inf. It does not enforce the UI domain; see ValidateDomain.
func (c Config) Validate() error {
	if c.OrbitalPeriod <= 0 {
		return fmt.Errorf("%w: orbital period %d must be positive", lensing.ErrInvalidConfiguration, c.OrbitalPeriod)
	}
	if !(c.MassRatio > 0) || math.IsInf(c.MassRatio, 0) {
		return fmt.Errorf("%w: mass ratio %v must be positive and finite", lensing.ErrInvalidConfiguration, c.MassRatio)
	}
	if math.IsNaN(c.ObserverAngleDeg) || math.IsInf(c.ObserverAngleDeg, 0) {
		return fmt.Errorf("%w: observer angle %v must be finite", lensing.ErrInvalidConfiguration, c.ObserverAngleDeg)
	}
	return nil
}

// ValidateDomain applies Validate plus the ranges the configuration layer
// exposes: period [100, 1000], mass ratio (0, 0.002], observer angle [0, 360).
func (c Config) ValidateDomain() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OrbitalPeriod < MinOrbitalPeriod || c.OrbitalPeriod > MaxOrbitalPeriod {
		return fmt.Errorf("%w: orbital period %d outside [%d, %d]",
			lensing.ErrInvalidConfiguration, c.OrbitalPeriod, MinOrbitalPeriod, MaxOrbitalPeriod)
	}
	if c.MassRatio > MaxMassRatio {
		return fmt.Errorf("%w: mass ratio %v above %v", lensing.ErrInvalidConfiguration, c.MassRatio, MaxMassRatio)
	}
	if c.ObserverAngleDeg < 0 || c.ObserverAngleDeg >= 360 {
		return fmt.Errorf("%w: observer angle %v outside [0, 360)", lensing.ErrInvalidConfiguration, c.ObserverAngleDeg)
	}
	return nil
}

// String renders the configuration for logs.
func (c Config) String() string {
	return fmt.Sprintf("period=%d mass_ratio=%g observer_angle=%g", c.OrbitalPeriod, c.MassRatio, c.ObserverAngleDeg)
}
