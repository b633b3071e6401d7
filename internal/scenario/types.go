package scenario

import (
	"time"

	"github.com/star/lensgo/internal/simulation"
)

// Preset is a named run configuration.
type Preset struct {
	Name   string            `json:"name" yaml:"name"`
	Config simulation.Config `json:"config" yaml:",inline"`
}

// Active is the configuration currently driving playback.
type Active struct {
	Config    simulation.Config
	Source    string // "default", "preset:<name>", "api", ...
	UpdatedAt time.Time
}
