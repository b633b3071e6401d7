package scenario

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/lensgo/internal/simulation"
)

// Store provides thread-safe access to the active configuration and the
// loaded presets.
type Store struct {
	active  atomic.Pointer[Active]
	version atomic.Uint64

	mu      sync.RWMutex
	presets []Preset
}

// NewStore creates a Store with no active configuration.
func NewStore() *Store {
	return &Store{}
}

// Get returns the active configuration, or nil if none has been set.
func (s *Store) Get() *Active {
	return s.active.Load()
}

// Set atomically replaces the active configuration. The caller is expected
// to have validated cfg.
func (s *Store) Set(cfg simulation.Config, source string) *Active {
	a := &Active{Config: cfg, Source: source, UpdatedAt: time.Now().UTC()}
	s.active.Store(a)
	s.version.Add(1)
	return a
}

// Version increases by one on every Set. Watchers compare it to detect a
// change without holding a reference to the previous value.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// AgeSeconds returns the age of the active configuration in seconds.
// Returns -1 if none is set.
func (s *Store) AgeSeconds() float64 {
	a := s.active.Load()
	if a == nil {
		return -1
	}
	return time.Since(a.UpdatedAt).Seconds()
}

// SetPresets replaces the preset list.
func (s *Store) SetPresets(presets []Preset) {
	cp := make([]Preset, len(presets))
	copy(cp, presets)
	s.mu.Lock()
	s.presets = cp
	s.mu.Unlock()
}

// Presets returns a copy of the preset list.
func (s *Store) Presets() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Preset, len(s.presets))
	copy(out, s.presets)
	return out
}

// Preset looks up a preset by name.
func (s *Store) Preset(name string) (Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
