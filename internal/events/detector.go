// Package events finds lensing events (contiguous runs of elevated
// magnification) in a computed lightcurve.
package events

import (
	"math"
	"sort"

	"github.com/star/lensgo/internal/geometry"
	"github.com/star/lensgo/internal/simulation"
)

// DefaultThreshold is the excess above baseline that counts as elevated.
const DefaultThreshold = 1e-9

// Event describes one contiguous run of elevated magnification. Steps are
// orbit steps; an event may wrap past the end of the orbit, in which case
// EndStep < StartStep.
type Event struct {
	StartStep         int              `json:"start_step"`
	PeakStep          int              `json:"peak_step"`
	EndStep           int              `json:"end_step"`
	DurationSteps     int              `json:"duration_steps"`
	PeakMagnification float64          `json:"peak_magnification"`
	PeakPosition      geometry.Vector2 `json:"peak_position"`
	// PeakAngleDeg is the planet's orbital angle at the peak, in [0, 360).
	PeakAngleDeg float64 `json:"peak_angle_deg"`
	// Asymmetry is |steps before peak − steps after peak| / duration; 0 for a
	// perfectly centered peak.
	Asymmetry float64 `json:"asymmetry"`
}

// Detect returns the events in lc with magnification > 1 + threshold, ordered
// by start step. The orbit is treated as cyclic, so a run crossing step 0 is a
// single event. A lightcurve that is elevated everywhere yields one event
// starting at step 0.
func Detect(lc *simulation.Lightcurve, threshold float64) []Event {
	n := lc.Len()
	if n == 0 {
		return nil
	}

	elevated := func(i int) bool {
		return lc.Magnifications[((i%n)+n)%n] > 1+threshold
	}

	// Find a baseline step to start scanning from so wrapped runs stay whole.
	origin := -1
	for i := 0; i < n; i++ {
		if !elevated(i) {
			origin = i
			break
		}
	}
	if origin < 0 {
		return []Event{buildEvent(lc, 0, n)}
	}

	var events []Event
	for k := 1; k <= n; k++ {
		i := origin + k
		if !elevated(i) || elevated(i-1) {
			continue
		}
		length := 0
		for length < n && elevated(i+length) {
			length++
		}
		events = append(events, buildEvent(lc, i%n, length))
	}

	sort.Slice(events, func(a, b int) bool {
		return events[a].StartStep < events[b].StartStep
	})
	return events
}

// buildEvent summarizes the run of length steps starting at start.
func buildEvent(lc *simulation.Lightcurve, start, length int) Event {
	n := lc.Len()
	peakOffset := 0
	peak := math.Inf(-1)
	for k := 0; k < length; k++ {
		m := lc.Magnifications[(start+k)%n]
		if m > peak {
			peak = m
			peakOffset = k
		}
	}

	// Half-widths around the peak; a plateau peak is centered on its middle.
	plateauEnd := peakOffset
	for plateauEnd+1 < length && lc.Magnifications[(start+plateauEnd+1)%n] == peak {
		plateauEnd++
	}
	before := peakOffset
	after := length - 1 - plateauEnd

	peakStep := (start + peakOffset) % n
	pos := lc.Positions[peakStep]
	return Event{
		StartStep:         start,
		PeakStep:          peakStep,
		EndStep:           (start + length - 1) % n,
		DurationSteps:     length,
		PeakMagnification: peak,
		PeakPosition:      pos,
		PeakAngleDeg:      geometry.NormalizeDeg(geometry.RadToDeg(math.Atan2(pos.Y, pos.X))),
		Asymmetry:         math.Abs(float64(before-after)) / float64(length),
	}
}
