package scenario

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxPresetBytes bounds a preset document.
const maxPresetBytes = 1 << 20

// Fetcher loads raw preset documents from a local path or an http(s) URL.
type Fetcher struct {
	source     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for source. An empty source yields no presets.
func NewFetcher(source string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Source returns the configured source.
func (f *Fetcher) Source() string {
	return f.source
}

// Fetch returns the raw preset document.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	switch {
	case f.source == "":
		return nil, nil
	case strings.HasPrefix(f.source, "http://"), strings.HasPrefix(f.source, "https://"):
		return f.fetchURL(ctx)
	default:
		file, err := os.Open(f.source)
		if err != nil {
			return nil, fmt.Errorf("opening presets: %w", err)
		}
		defer file.Close()
		return readLimited(file)
	}
}

func (f *Fetcher) fetchURL(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching presets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.source)
	}

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched presets", "source", f.source, "bytes", len(body))
	return body, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxPresetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading presets: %w", err)
	}
	if len(body) > maxPresetBytes {
		return nil, fmt.Errorf("preset document exceeds %d byte limit", maxPresetBytes)
	}
	return body, nil
}
