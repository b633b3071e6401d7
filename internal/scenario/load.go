package scenario

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
)

// LoadPresets fetches and parses the preset document and installs the
// result in store. It returns the number of presets loaded.
func LoadPresets(ctx context.Context, f *Fetcher, store *Store, logger *slog.Logger) (int, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	presets, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return 0, fmt.Errorf("parsing presets from %s: %w", f.Source(), err)
	}

	store.SetPresets(presets)
	logger.Info("presets loaded", "source", f.Source(), "count", len(presets))
	return len(presets), nil
}
