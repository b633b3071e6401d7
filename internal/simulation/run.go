package simulation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/star/lensgo/internal/geometry"
	"github.com/star/lensgo/internal/lensing"
)

// LightcurveSample is the magnification at one time step.
type LightcurveSample struct {
	Step          int
	Magnification float64
}

// Lightcurve is the full output of one run: planet positions and
// magnifications aligned index-for-index, plus the fixed scene markers and the
// scalars a renderer needs for axis scaling.
type Lightcurve struct {
	RunID      string
	Config     Config
	Scene      Scene
	ComputedAt time.Time

	Positions      []geometry.Vector2
	Magnifications []float64

	MinMagnification float64
	MaxMagnification float64
	PeakStep         int // first step at MaxMagnification
	// Ceiling is the largest magnification the model can produce for this
	// mass ratio (planet exactly on the line of sight).
	Ceiling float64
	// EinsteinRadius is the lens radius (scene units) the model used.
	EinsteinRadius float64
}

// Samples returns the magnification sequence as LightcurveSample values.
func (lc *Lightcurve) Samples() []LightcurveSample {
	out := make([]LightcurveSample, len(lc.Magnifications))
	for i, m := range lc.Magnifications {
		out[i] = LightcurveSample{Step: i, Magnification: m}
	}
	return out
}

// Len returns the number of samples (the orbital period).
func (lc *Lightcurve) Len() int { return len(lc.Magnifications) }

// Run validates cfg, builds the scene, samples the orbit and evaluates the
// magnification model once per step. It is pure apart from the run ID and
// timestamp; the sequences depend only on cfg.
func Run(cfg Config) (*Lightcurve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scene := NewScene(cfg.ObserverAngleDeg)
	model, err := lensing.NewModel(scene.Observer, scene.Star, cfg.MassRatio)
	if err != nil {
		return nil, fmt.Errorf("building magnification model: %w", err)
	}

	orbit, err := lensing.SampleOrbit(cfg.OrbitalPeriod, scene.OrbitRadius)
	if err != nil {
		return nil, fmt.Errorf("sampling orbit: %w", err)
	}

	lc := &Lightcurve{
		RunID:          uuid.NewString(),
		Config:         cfg,
		Scene:          scene,
		ComputedAt:     time.Now().UTC(),
		Positions:      make([]geometry.Vector2, len(orbit)),
		Magnifications: make([]float64, len(orbit)),
		Ceiling:        model.Max(),
		EinsteinRadius: model.EinsteinRadius(),
	}

	for i, s := range orbit {
		m := model.At(s.Position)
		lc.Positions[i] = s.Position
		lc.Magnifications[i] = m

		if i == 0 || m < lc.MinMagnification {
			lc.MinMagnification = m
		}
		if i == 0 || m > lc.MaxMagnification {
			lc.MaxMagnification = m
			lc.PeakStep = i
		}
	}

	return lc, nil
}

// Axis padding used by renderers for the lightcurve panel.
const (
	axisLowerPad = 0.95
	axisUpperPad = 1.05
	axisMinUpper = 1.5
)

// AxisRange returns the padded magnification range for plotting. The upper
// bound is at least 1.5 so a flat or faint curve still reads as flat.
func (lc *Lightcurve) AxisRange() (lo, hi float64) {
	lo = lc.MinMagnification * axisLowerPad
	hi = lc.MaxMagnification * axisUpperPad
	if hi < axisMinUpper {
		hi = axisMinUpper
	}
	return lo, hi
}

// SceneExtent returns the half-width of the square scene panel.
func (lc *Lightcurve) SceneExtent() float64 {
	return lc.Scene.OrbitRadius * 1.2
}
