package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/star/lensgo/internal/simulation"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const presetYAML = `
presets:
  - name: reference
    orbital_period: 400
    mass_ratio: 0.001
    observer_angle: 90
  - name: light
    orbital_period: 200
    mass_ratio: 0.0001
    observer_angle: 45
  - name: ""
    orbital_period: 200
    mass_ratio: 0.001
    observer_angle: 0
  - name: too-fast
    orbital_period: 10
    mass_ratio: 0.001
    observer_angle: 0
  - name: reference
    orbital_period: 500
    mass_ratio: 0.001
    observer_angle: 0
`

func TestParse(t *testing.T) {
	presets, err := Parse(strings.NewReader(presetYAML), testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("got %d presets, want 2: %+v", len(presets), presets)
	}

	want := simulation.Config{OrbitalPeriod: 400, MassRatio: 0.001, ObserverAngleDeg: 90}
	if presets[0].Name != "reference" || presets[0].Config != want {
		t.Errorf("presets[0] = %+v, want reference %+v", presets[0], want)
	}
	if presets[1].Name != "light" || presets[1].Config.ObserverAngleDeg != 45 {
		t.Errorf("presets[1] = %+v", presets[1])
	}
}

func TestParseEmpty(t *testing.T) {
	presets, err := Parse(strings.NewReader(""), testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(presets) != 0 {
		t.Errorf("got %d presets, want 0", len(presets))
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("presets:\n  - name: x\n    period: 400\n"), testLogger)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Fatal("new store should have no active config")
	}
	if s.AgeSeconds() != -1 {
		t.Errorf("AgeSeconds = %v, want -1", s.AgeSeconds())
	}

	v0 := s.Version()
	cfg := simulation.DefaultConfig()
	a := s.Set(cfg, "default")
	if s.Get() != a || a.Config != cfg || a.Source != "default" {
		t.Errorf("Get = %+v, want %+v", s.Get(), a)
	}
	if s.Version() != v0+1 {
		t.Errorf("Version = %d, want %d", s.Version(), v0+1)
	}
	if age := s.AgeSeconds(); age < 0 || age > 5 {
		t.Errorf("AgeSeconds = %v", age)
	}

	s.SetPresets([]Preset{{Name: "a", Config: cfg}})
	if p, ok := s.Preset("a"); !ok || p.Config != cfg {
		t.Errorf("Preset(a) = %+v, %v", p, ok)
	}
	if _, ok := s.Preset("missing"); ok {
		t.Error("Preset(missing) should not be found")
	}

	// Presets returns a copy.
	ps := s.Presets()
	ps[0].Name = "mutated"
	if _, ok := s.Preset("a"); !ok {
		t.Error("mutating Presets() result changed the store")
	}
}

func TestFetcherFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(presetYAML), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	n, err := LoadPresets(context.Background(), NewFetcher(path, testLogger), store, testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(store.Presets()) != 2 {
		t.Errorf("loaded %d presets, store has %d, want 2", n, len(store.Presets()))
	}
}

func TestFetcherEmptySource(t *testing.T) {
	store := NewStore()
	n, err := LoadPresets(context.Background(), NewFetcher("", testLogger), store, testLogger)
	if err != nil || n != 0 {
		t.Errorf("LoadPresets with empty source = %d, %v", n, err)
	}
}

func TestFetcherURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(presetYAML))
	}))
	defer server.Close()

	data, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != presetYAML {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(presetYAML))
	}
}

func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewFetcher(server.URL, testLogger).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("#", maxPresetBytes+10)))
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "byte limit") {
		t.Fatalf("expected byte limit error, got %v", err)
	}
}

func mustRun(t *testing.T, cfg simulation.Config) *simulation.Lightcurve {
	t.Helper()
	lc, err := simulation.Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return lc
}

func TestArchiveWriteAndLoadLatest(t *testing.T) {
	a := NewArchive(t.TempDir(), 2)

	if _, err := a.LoadLatest(); !errors.Is(err, ErrNoArchive) {
		t.Fatalf("empty archive: err = %v, want ErrNoArchive", err)
	}

	var last *simulation.Lightcurve
	for _, period := range []int{100, 200, 300} {
		lc := mustRun(t, simulation.Config{OrbitalPeriod: period, MassRatio: 0.001, ObserverAngleDeg: 90})
		if err := a.Write(lc); err != nil {
			t.Fatalf("Write: %v", err)
		}
		last = lc
	}

	n, err := a.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count = %d after pruning, want 2", n)
	}

	rec, err := a.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if rec.RunID != last.RunID || rec.Config != last.Config {
		t.Errorf("latest = %s %+v, want %s %+v", rec.RunID, rec.Config, last.RunID, last.Config)
	}
	if len(rec.Magnifications) != 300 || len(rec.Positions) != 300 {
		t.Errorf("latest has %d/%d samples, want 300", len(rec.Magnifications), len(rec.Positions))
	}
	if rec.PeakStep != last.PeakStep || rec.MaxMagnification != last.MaxMagnification {
		t.Errorf("peak = %d/%v, want %d/%v", rec.PeakStep, rec.MaxMagnification, last.PeakStep, last.MaxMagnification)
	}
}

func TestArchiveRewriteBecomesLatest(t *testing.T) {
	a := NewArchive(t.TempDir(), 5)

	first := mustRun(t, simulation.Config{OrbitalPeriod: 200, MassRatio: 0.001, ObserverAngleDeg: 90})
	second := mustRun(t, simulation.Config{OrbitalPeriod: 300, MassRatio: 0.001, ObserverAngleDeg: 90})
	// Pin the first run's computation time after the second's so the order
	// can only come from the writes.
	first.ComputedAt = second.ComputedAt.Add(time.Hour)

	for _, lc := range []*simulation.Lightcurve{first, second, first} {
		if err := a.Write(lc); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	n, err := a.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	rec, err := a.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if rec.RunID != first.RunID {
		t.Errorf("latest = %s (period %d), want rewritten run %s", rec.RunID, rec.Config.OrbitalPeriod, first.RunID)
	}
	if rec.ArchivedAt.IsZero() || !rec.ComputedAt.Equal(first.ComputedAt) {
		t.Errorf("archived_at = %v, computed_at = %v", rec.ArchivedAt, rec.ComputedAt)
	}
}

func TestArchiveIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "run_abc.json", "run_.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := NewArchive(dir, 5).Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}
