package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/lensgo/internal/cache"
	"github.com/star/lensgo/internal/events"
	"github.com/star/lensgo/internal/geometry"
	"github.com/star/lensgo/internal/httputil"
	"github.com/star/lensgo/internal/lensing"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
)

const maxConfigBodyBytes = 4096

type lightcurveResponse struct {
	RunID            string             `json:"run_id"`
	Config           simulation.Config  `json:"config"`
	ComputedAt       string             `json:"computed_at"`
	Star             geometry.Vector2   `json:"star"`
	Observer         geometry.Vector2   `json:"observer"`
	OrbitRadius      float64            `json:"orbit_radius"`
	StarRadius       float64            `json:"star_radius"`
	Positions        []geometry.Vector2 `json:"positions"`
	Magnifications   []float64          `json:"magnifications"`
	MinMagnification float64            `json:"min_magnification"`
	MaxMagnification float64            `json:"max_magnification"`
	PeakStep         int                `json:"peak_step"`
	Ceiling          float64            `json:"ceiling"`
	EinsteinRadius   float64            `json:"einstein_radius"`
	AxisRange        [2]float64         `json:"axis_range"`
}

func newLightcurveResponse(lc *simulation.Lightcurve) lightcurveResponse {
	lo, hi := lc.AxisRange()
	return lightcurveResponse{
		RunID:            lc.RunID,
		Config:           lc.Config,
		ComputedAt:       lc.ComputedAt.Format(time.RFC3339),
		Star:             lc.Scene.Star,
		Observer:         lc.Scene.Observer,
		OrbitRadius:      lc.Scene.OrbitRadius,
		StarRadius:       lc.Scene.StarRadius,
		Positions:        lc.Positions,
		Magnifications:   lc.Magnifications,
		MinMagnification: lc.MinMagnification,
		MaxMagnification: lc.MaxMagnification,
		PeakStep:         lc.PeakStep,
		Ceiling:          lc.Ceiling,
		EinsteinRadius:   lc.EinsteinRadius,
		AxisRange:        [2]float64{lo, hi},
	}
}

// runFromQuery resolves the request's configuration and returns its run from
// the cache, computing it on a miss. On failure it has written the response.
func runFromQuery(w http.ResponseWriter, r *http.Request, logger *slog.Logger, c *cache.RunCache, store *scenario.Store) (*simulation.Lightcurve, bool) {
	cfg, err := parseConfig(r.URL.Query(), baseConfig(store))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	lc, err := c.GetOrCompute(r.Context(), cfg)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("run failed", "config", cfg.String(), "error", err)
		}
		httputil.WriteError(w, status, err.Error())
		return nil, false
	}
	return lc, true
}

// lightcurveHandler serves a full run.
// GET /api/v1/lightcurve?period=400&mass_ratio=0.001&observer_angle=90
func lightcurveHandler(logger *slog.Logger, c *cache.RunCache, store *scenario.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lc, ok := runFromQuery(w, r, logger, c, store)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newLightcurveResponse(lc))
	}
}

type eventsResponse struct {
	RunID     string            `json:"run_id"`
	Config    simulation.Config `json:"config"`
	Threshold float64           `json:"threshold"`
	Events    []events.Event    `json:"events"`
}

// eventsHandler serves the microlensing events detected in a run.
// GET /api/v1/events?period=400&mass_ratio=0.001&observer_angle=90&threshold=1e-6
func eventsHandler(logger *slog.Logger, c *cache.RunCache, store *scenario.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold := events.DefaultThreshold
		if v := r.URL.Query().Get("threshold"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || f >= 1 {
				httputil.WriteError(w, http.StatusBadRequest, "invalid threshold parameter, must be in [0, 1)")
				return
			}
			threshold = f
		}

		lc, ok := runFromQuery(w, r, logger, c, store)
		if !ok {
			return
		}

		evs := events.Detect(lc, threshold)
		if evs == nil {
			evs = []events.Event{}
		}
		httputil.WriteJSON(w, http.StatusOK, eventsResponse{
			RunID:     lc.RunID,
			Config:    lc.Config,
			Threshold: threshold,
			Events:    evs,
		})
	}
}

type sweepResponse struct {
	Base    simulation.Config        `json:"base"`
	Results []simulation.SweepResult `json:"results"`
}

// sweepHandler runs the base configuration once per mass ratio.
// GET /api/v1/sweep?mass_ratios=0.0001,0.0005,0.001&period=400&observer_angle=90
func sweepHandler(logger *slog.Logger, runner *simulation.Runner, store *scenario.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ratios, err := parseMassRatios(q.Get("mass_ratios"))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		base, err := parseConfig(q, baseConfig(store))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		results := runner.Sweep(r.Context(), base, ratios)
		if err := r.Context().Err(); err != nil {
			logger.Debug("sweep abandoned by client", "error", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, sweepResponse{Base: base, Results: results})
	}
}

// presetsHandler lists the loaded presets.
func presetsHandler(store *scenario.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"presets": store.Presets()})
	}
}

// presetHandler returns one preset by name.
func presetHandler(store *scenario.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		p, ok := store.Preset(name)
		if !ok {
			httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown preset %q", name))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, p)
	}
}

type configResponse struct {
	Config     simulation.Config `json:"config"`
	Source     string            `json:"source"`
	UpdatedAt  string            `json:"updated_at"`
	AgeSeconds float64           `json:"age_seconds"`
	RunID      string            `json:"run_id,omitempty"`
}

func newConfigResponse(a *scenario.Active, c *cache.RunCache) configResponse {
	resp := configResponse{
		Config:     a.Config,
		Source:     a.Source,
		UpdatedAt:  a.UpdatedAt.Format(time.RFC3339),
		AgeSeconds: time.Since(a.UpdatedAt).Seconds(),
	}
	if lc := c.Active(); lc != nil && lc.Config == a.Config {
		resp.RunID = lc.RunID
	}
	return resp
}

// getConfigHandler returns the active configuration.
func getConfigHandler(store *scenario.Store, c *cache.RunCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := store.Get()
		if a == nil {
			httputil.WriteError(w, http.StatusNotFound, "no active configuration")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newConfigResponse(a, c))
	}
}

// configRequest replaces the active configuration, either from a preset or
// from explicit values. Omitted values keep their current setting.
type configRequest struct {
	Preset        string   `json:"preset"`
	OrbitalPeriod *int     `json:"orbital_period"`
	MassRatio     *float64 `json:"mass_ratio"`
	ObserverAngle *float64 `json:"observer_angle"`
}

func (req configRequest) apply(store *scenario.Store) (simulation.Config, string, error) {
	cfg := baseConfig(store)
	source := "api"
	if req.Preset != "" {
		p, ok := store.Preset(req.Preset)
		if !ok {
			return cfg, "", fmt.Errorf("%w: unknown preset %q", lensing.ErrInvalidConfiguration, req.Preset)
		}
		cfg = p.Config
		source = "preset:" + p.Name
	}
	if req.OrbitalPeriod != nil {
		cfg.OrbitalPeriod = *req.OrbitalPeriod
	}
	if req.MassRatio != nil {
		cfg.MassRatio = *req.MassRatio
	}
	if req.ObserverAngle != nil {
		cfg.ObserverAngleDeg = *req.ObserverAngle
	}
	return cfg, source, cfg.ValidateDomain()
}

// putConfigHandler replaces the active configuration and waits for the
// cutover so the response names the new run.
// PUT /api/v1/config {"orbital_period":400,"mass_ratio":0.001,"observer_angle":90}
func putConfigHandler(logger *slog.Logger, store *scenario.Store, c *cache.RunCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxConfigBodyBytes)
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()

		var req configRequest
		if err := dec.Decode(&req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		cfg, source, err := req.apply(store)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		a := store.Set(cfg, source)
		logger.Info("active configuration updated", "config", cfg.String(), "source", source)

		if err := c.Refresh(r.Context()); err != nil {
			httputil.WriteError(w, errorStatus(err), err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newConfigResponse(a, c))
	}
}

// cacheStatsHandler reports run cache statistics.
func cacheStatsHandler(c *cache.RunCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, c.Stats())
	}
}

// archiveLatestHandler returns the newest archived active run.
func archiveLatestHandler(archive *scenario.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if archive == nil {
			httputil.WriteError(w, http.StatusNotFound, "archive disabled")
			return
		}
		rec, err := archive.LoadLatest()
		if errors.Is(err, scenario.ErrNoArchive) {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rec)
	}
}
