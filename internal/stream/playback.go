package stream

import (
	"github.com/star/lensgo/internal/geometry"
	"github.com/star/lensgo/internal/simulation"
)

// Message payload types shared by the SSE and WebSocket transports.

type metadataMessage struct {
	Type             string            `json:"type"`
	RunID            string            `json:"run_id"`
	Config           simulation.Config `json:"config"`
	Star             geometry.Vector2  `json:"star"`
	Observer         geometry.Vector2  `json:"observer"`
	OrbitRadius      float64           `json:"orbit_radius"`
	StarRadius       float64           `json:"star_radius"`
	EinsteinRadius   float64           `json:"einstein_radius"`
	SceneExtent      float64           `json:"scene_extent"`
	Steps            int               `json:"steps"`
	MinMagnification float64           `json:"min_magnification"`
	MaxMagnification float64           `json:"max_magnification"`
	AxisRange        [2]float64        `json:"axis_range"`
	IntervalMs       int64             `json:"interval_ms"`
}

type frameMessage struct {
	Type          string  `json:"type"`
	RunID         string  `json:"run_id"`
	Step          int     `json:"step"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Magnification float64 `json:"magnification"`
}

func buildMetadata(lc *simulation.Lightcurve, intervalMs int64) metadataMessage {
	lo, hi := lc.AxisRange()
	return metadataMessage{
		Type:             "metadata",
		RunID:            lc.RunID,
		Config:           lc.Config,
		Star:             lc.Scene.Star,
		Observer:         lc.Scene.Observer,
		OrbitRadius:      lc.Scene.OrbitRadius,
		StarRadius:       lc.Scene.StarRadius,
		EinsteinRadius:   lc.EinsteinRadius,
		SceneExtent:      lc.SceneExtent(),
		Steps:            lc.Len(),
		MinMagnification: lc.MinMagnification,
		MaxMagnification: lc.MaxMagnification,
		AxisRange:        [2]float64{lo, hi},
		IntervalMs:       intervalMs,
	}
}

func buildFrame(lc *simulation.Lightcurve, step int) frameMessage {
	p := lc.Positions[step]
	return frameMessage{
		Type:          "frame",
		RunID:         lc.RunID,
		Step:          step,
		X:             p.X,
		Y:             p.Y,
		Magnification: lc.Magnifications[step],
	}
}

// player walks the active run step by step, looping at the end of the orbit.
// When the active run changes it restarts from step 0 of the new run.
type player struct {
	source Source
	lc     *simulation.Lightcurve
	step   int
}

func newPlayer(source Source) *player {
	return &player{source: source}
}

// sync picks up a new active run. It reports whether the run changed, in
// which case the caller sends fresh metadata before the next frame.
func (p *player) sync() bool {
	next := p.source.Active()
	if next == nil || next == p.lc {
		return false
	}
	p.lc = next
	p.step = 0
	return true
}

// next returns the frame at the current step and advances.
func (p *player) next() frameMessage {
	f := buildFrame(p.lc, p.step)
	p.step = (p.step + 1) % p.lc.Len()
	return f
}

// seek moves to step, wrapped into the orbit.
func (p *player) seek(step int) {
	if p.lc == nil {
		return
	}
	n := p.lc.Len()
	p.step = ((step % n) + n) % n
}
