package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/star/lensgo/internal/lensing"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
)

// maxSweepEntries bounds the mass ratios accepted by one sweep request.
const maxSweepEntries = 64

// baseConfig is the configuration query parameters are applied to: the
// active configuration if one is set, else the default.
func baseConfig(store *scenario.Store) simulation.Config {
	if a := store.Get(); a != nil {
		return a.Config
	}
	return simulation.DefaultConfig()
}

// parseConfig overlays period, mass_ratio and observer_angle query
// parameters on base and validates the result against the configuration
// domain.
func parseConfig(q url.Values, base simulation.Config) (simulation.Config, error) {
	cfg := base
	if v := q.Get("period"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid period %q", lensing.ErrInvalidConfiguration, v)
		}
		cfg.OrbitalPeriod = n
	}
	if v := q.Get("mass_ratio"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid mass_ratio %q", lensing.ErrInvalidConfiguration, v)
		}
		cfg.MassRatio = f
	}
	if v := q.Get("observer_angle"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid observer_angle %q", lensing.ErrInvalidConfiguration, v)
		}
		cfg.ObserverAngleDeg = f
	}
	return cfg, cfg.ValidateDomain()
}

// parseMassRatios reads a comma-separated mass_ratios list. Every entry must
// lie in the configuration domain.
func parseMassRatios(v string) ([]float64, error) {
	if v == "" {
		return nil, fmt.Errorf("%w: mass_ratios is required", lensing.ErrInvalidConfiguration)
	}
	parts := strings.Split(v, ",")
	if len(parts) > maxSweepEntries {
		return nil, fmt.Errorf("%w: at most %d mass ratios per sweep", lensing.ErrInvalidConfiguration, maxSweepEntries)
	}

	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid mass ratio %q", lensing.ErrInvalidConfiguration, p)
		}
		if !(f > 0) || f > simulation.MaxMassRatio {
			return nil, fmt.Errorf("%w: mass ratio %v outside (0, %v]", lensing.ErrInvalidConfiguration, f, simulation.MaxMassRatio)
		}
		out = append(out, f)
	}
	return out, nil
}

// errorStatus maps a run error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, lensing.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, lensing.ErrDegenerateGeometry):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
