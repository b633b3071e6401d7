package geometry

// LineProjection describes a point relative to the directed line from Origin
// through a second point.
type LineProjection struct {
	// Along is the signed distance from the line origin to the foot of the
	// perpendicular, measured along the line direction.
	Along float64
	// Perpendicular is the unsigned distance from the point to the line.
	Perpendicular float64
	// Foot is the closest point on the (infinite) line.
	Foot Vector2
}

// ProjectOntoLine projects p onto the line through origin with unit direction dir.
// dir must already be normalized.
func ProjectOntoLine(p, origin, dir Vector2) LineProjection {
	rel := p.Sub(origin)
	along := rel.Dot(dir)
	foot := origin.Add(dir.Scale(along))
	return LineProjection{
		Along:         along,
		Perpendicular: p.Distance(foot),
		Foot:          foot,
	}
}
