package lensing

import "errors"

// Configuration and geometry errors. Both are detected once per configuration,
// before any sample is computed, and are never retried.
var (
	// ErrInvalidConfiguration indicates a non-positive orbital period or mass
	// ratio, or a non-finite input that would otherwise propagate NaN/Inf.
	ErrInvalidConfiguration = errors.New("lensing: invalid configuration")

	// ErrDegenerateGeometry indicates the observer coincides with the star, so
	// no line of sight exists.
	ErrDegenerateGeometry = errors.New("lensing: degenerate geometry (observer at star)")
)
