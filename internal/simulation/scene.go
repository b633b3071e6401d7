package simulation

import "github.com/star/lensgo/internal/geometry"

// Scene constants (scene units).
const (
	OrbitRadius      = 5.0  // planet orbit radius
	ObserverDistance = 10.0 // observer distance from the star
	StarRadius       = 0.5  // drawn star radius; display only
)

// Scene holds the fixed positions of a run. The star is always at the origin.
type Scene struct {
	Star             geometry.Vector2
	Observer         geometry.Vector2
	OrbitRadius      float64
	ObserverDistance float64
	StarRadius       float64
}

// NewScene places the observer ObserverDistance from the star along
// observerAngleDeg. The observer distance does not depend on the orbit radius.
func NewScene(observerAngleDeg float64) Scene {
	return Scene{
		Star:             geometry.Vector2{},
		Observer:         geometry.FromPolar(ObserverDistance, geometry.DegToRad(observerAngleDeg)),
		OrbitRadius:      OrbitRadius,
		ObserverDistance: ObserverDistance,
		StarRadius:       StarRadius,
	}
}
