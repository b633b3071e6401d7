package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/star/lensgo/internal/auth"
	"github.com/star/lensgo/internal/cache"
	"github.com/star/lensgo/internal/lensing"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
	"github.com/star/lensgo/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type testEnv struct {
	handler http.Handler
	store   *scenario.Store
	cache   *cache.RunCache
	archive *scenario.Archive
}

func newTestEnv(t *testing.T, authCfg auth.Config) *testEnv {
	t.Helper()
	logger := testLogger()
	store := scenario.NewStore()
	store.SetPresets([]scenario.Preset{
		{Name: "reference", Config: simulation.Config{OrbitalPeriod: 400, MassRatio: 0.001, ObserverAngleDeg: 90}},
	})
	runner := simulation.NewRunner(2, logger)
	archive := scenario.NewArchive(t.TempDir(), 3)
	rc := cache.NewRunCache(cache.Config{}, runner, store, archive, logger)

	deps := Deps{
		Runner:  runner,
		Cache:   rc,
		Store:   store,
		Archive: archive,
		Stream:  stream.NewHandler(rc, stream.Config{}, logger),
		Version: "test",
	}
	return &testEnv{
		handler: NewHandler(logger, authCfg, deps),
		store:   store,
		cache:   rc,
		archive: archive,
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestLightcurveEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/lightcurve?period=400&mass_ratio=0.0001&observer_angle=90", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp lightcurveResponse
	decode(t, rec, &resp)
	if len(resp.Positions) != 400 || len(resp.Magnifications) != 400 {
		t.Fatalf("got %d positions, %d magnifications, want 400", len(resp.Positions), len(resp.Magnifications))
	}
	if resp.PeakStep != 100 {
		t.Errorf("peak_step = %d, want 100", resp.PeakStep)
	}
	if resp.MinMagnification != 1.0 {
		t.Errorf("min_magnification = %v, want 1", resp.MinMagnification)
	}
	if resp.Observer.Y != 10 {
		t.Errorf("observer = %+v, want y=10", resp.Observer)
	}
	if want := lensing.EinsteinRadius(0.0001); resp.EinsteinRadius != want {
		t.Errorf("einstein_radius = %v, want %v", resp.EinsteinRadius, want)
	}

	// Second request is served from the cache.
	env.do(t, http.MethodGet, "/api/v1/lightcurve?period=400&mass_ratio=0.0001&observer_angle=90", "")
	if hits := env.cache.Stats().Hits; hits < 1 {
		t.Errorf("cache hits = %d, want >= 1", hits)
	}
}

func TestLightcurveInvalid(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	for _, q := range []string{
		"period=abc",
		"period=50",
		"mass_ratio=0",
		"mass_ratio=-0.001",
		"mass_ratio=0.01",
		"observer_angle=360",
		"observer_angle=NaN",
	} {
		rec := env.do(t, http.MethodGet, "/api/v1/lightcurve?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
			continue
		}
		var body map[string]string
		decode(t, rec, &body)
		if !strings.Contains(body["error"], "invalid configuration") {
			t.Errorf("%s: error = %q", q, body["error"])
		}
	}
}

func TestEventsEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/events?period=400&mass_ratio=0.0001&observer_angle=90", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Events []struct {
			PeakStep      int     `json:"peak_step"`
			DurationSteps int     `json:"duration_steps"`
			PeakAngleDeg  float64 `json:"peak_angle_deg"`
		} `json:"events"`
	}
	decode(t, rec, &resp)
	if len(resp.Events) != 1 || resp.Events[0].PeakStep != 100 {
		t.Errorf("events = %+v, want one event peaking at 100", resp.Events)
	}
	if len(resp.Events) == 1 && math.Abs(resp.Events[0].PeakAngleDeg-90) > 1e-9 {
		t.Errorf("peak_angle_deg = %v, want 90", resp.Events[0].PeakAngleDeg)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/events?threshold=2", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("threshold=2: status = %d, want 400", rec.Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/sweep?mass_ratios=0.0005,0.001,0.002&period=400&observer_angle=90", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp sweepResponse
	decode(t, rec, &resp)
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].PeakMagnification < resp.Results[i-1].PeakMagnification {
			t.Errorf("peak not monotonic in mass ratio: %+v", resp.Results)
		}
	}

	for _, q := range []string{"", "mass_ratios=x", "mass_ratios=0.003", "mass_ratios=0.001&period=5"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/sweep?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", q, rec.Code)
		}
	}
	many := strings.TrimSuffix(strings.Repeat("0.001,", maxSweepEntries+1), ",")
	if rec := env.do(t, http.MethodGet, "/api/v1/sweep?mass_ratios="+many, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized sweep: status = %d, want 400", rec.Code)
	}
}

func TestConfigLifecycle(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before config: %d, want 503", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/config", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET config before set: %d, want 404", rec.Code)
	}

	rec := env.do(t, http.MethodPut, "/api/v1/config", `{"preset":"reference"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT preset: %d %s", rec.Code, rec.Body.String())
	}
	var resp configResponse
	decode(t, rec, &resp)
	if resp.Source != "preset:reference" || resp.Config.OrbitalPeriod != 400 || resp.RunID == "" {
		t.Errorf("PUT preset response = %+v", resp)
	}
	if active := env.cache.Active(); active == nil || active.RunID != resp.RunID {
		t.Error("active run does not match the PUT response")
	}
	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz after config: %d, want 200", rec.Code)
	}

	// Partial update keeps the other fields.
	rec = env.do(t, http.MethodPut, "/api/v1/config", `{"observer_angle":180}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT partial: %d %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &resp)
	want := simulation.Config{OrbitalPeriod: 400, MassRatio: 0.001, ObserverAngleDeg: 180}
	if resp.Config != want || resp.Source != "api" {
		t.Errorf("partial update = %+v, want %+v", resp.Config, want)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/config", "")
	decode(t, rec, &resp)
	if resp.Config != want {
		t.Errorf("GET config = %+v, want %+v", resp.Config, want)
	}

	// Query parameters default to the active configuration.
	rec = env.do(t, http.MethodGet, "/api/v1/lightcurve", "")
	var lc lightcurveResponse
	decode(t, rec, &lc)
	if lc.Config != want {
		t.Errorf("lightcurve without params used %+v, want active %+v", lc.Config, want)
	}

	n, err := env.archive.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("archived runs = %d, want 2", n)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/archive/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("archive latest: %d", rec.Code)
	}
	var archived scenario.Record
	decode(t, rec, &archived)
	if archived.Config != want {
		t.Errorf("archived config = %+v, want %+v", archived.Config, want)
	}
}

func TestPutConfigRejects(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	for _, body := range []string{
		`not json`,
		`{"preset":"missing"}`,
		`{"mass_ratio":0}`,
		`{"orbital_period":5000}`,
		`{"unknown":1}`,
	} {
		if rec := env.do(t, http.MethodPut, "/api/v1/config", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
	if env.store.Get() != nil {
		t.Error("rejected PUT changed the active configuration")
	}
}

func TestPresetsEndpoints(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/presets", "")
	var list struct {
		Presets []scenario.Preset `json:"presets"`
	}
	decode(t, rec, &list)
	if len(list.Presets) != 1 || list.Presets[0].Name != "reference" {
		t.Errorf("presets = %+v", list.Presets)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/presets/reference", ""); rec.Code != http.StatusOK {
		t.Errorf("preset reference: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/presets/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("preset nope: %d, want 404", rec.Code)
	}
}

func TestArchiveLatestEmpty(t *testing.T) {
	env := newTestEnv(t, auth.Config{})
	if rec := env.do(t, http.MethodGet, "/api/v1/archive/latest", ""); rec.Code != http.StatusNotFound {
		t.Errorf("empty archive: %d, want 404", rec.Code)
	}
}

func TestAuthChain(t *testing.T) {
	env := newTestEnv(t, auth.Config{Enabled: true, Token: "secret"})

	if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz with auth: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/lightcurve", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("lightcurve without token: %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cache stats with token: %d", rec.Code)
	}
}

// TestStreamRoute verifies the SSE route is mounted behind the middleware
// chain and streams the active run.
func TestStreamRoute(t *testing.T) {
	env := newTestEnv(t, auth.Config{})
	env.store.Set(simulation.DefaultConfig(), "test")
	if err := env.cache.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(env.handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/stream/frames?interval_ms=10", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), `"type":"frame"`) {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, got.String())
		}
		got.Write(buf[:n])
	}
	if !strings.HasPrefix(got.String(), "retry: ") || !strings.Contains(got.String(), "event: metadata\ndata: {\"type\":\"metadata\"") {
		t.Errorf("stream did not start with a metadata event: %q", got.String())
	}
}
