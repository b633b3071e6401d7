package scenario

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Parse reads a YAML preset list from r:
//
//	presets:
//	  - name: reference
//	    orbital_period: 400
//	    mass_ratio: 0.001
//	    observer_angle: 90
//
// Presets that are unnamed, duplicated or outside the configuration domain
// are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Preset, error) {
	var pf presetFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding presets: %w", err)
	}

	seen := make(map[string]bool, len(pf.Presets))
	presets := make([]Preset, 0, len(pf.Presets))
	for i, p := range pf.Presets {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			logger.Warn("skipping unnamed preset", "index", i)
			continue
		}
		if seen[p.Name] {
			logger.Warn("skipping duplicate preset", "name", p.Name)
			continue
		}
		if err := p.Config.ValidateDomain(); err != nil {
			logger.Warn("skipping invalid preset", "name", p.Name, "error", err)
			continue
		}
		seen[p.Name] = true
		presets = append(presets, p)
	}

	return presets, nil
}
