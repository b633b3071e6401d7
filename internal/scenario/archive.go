package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/star/lensgo/internal/geometry"
	"github.com/star/lensgo/internal/simulation"
)

// ErrNoArchive is returned by LoadLatest when the archive is empty.
var ErrNoArchive = errors.New("scenario: no archived runs")

// Record is the on-disk form of an archived run.
type Record struct {
	RunID            string             `json:"run_id"`
	Config           simulation.Config  `json:"config"`
	ComputedAt       time.Time          `json:"computed_at"`
	ArchivedAt       time.Time          `json:"archived_at"`
	Star             geometry.Vector2   `json:"star"`
	Observer         geometry.Vector2   `json:"observer"`
	Positions        []geometry.Vector2 `json:"positions"`
	Magnifications   []float64          `json:"magnifications"`
	MinMagnification float64            `json:"min_magnification"`
	MaxMagnification float64            `json:"max_magnification"`
	PeakStep         int                `json:"peak_step"`
}

// NewRecord converts a lightcurve for archiving.
func NewRecord(lc *simulation.Lightcurve) Record {
	return Record{
		RunID:            lc.RunID,
		Config:           lc.Config,
		ComputedAt:       lc.ComputedAt,
		Star:             lc.Scene.Star,
		Observer:         lc.Scene.Observer,
		Positions:        lc.Positions,
		Magnifications:   lc.Magnifications,
		MinMagnification: lc.MinMagnification,
		MaxMagnification: lc.MaxMagnification,
		PeakStep:         lc.PeakStep,
	}
}

// Archive manages run files on disk.
type Archive struct {
	dir      string
	maxFiles int
}

// NewArchive creates an Archive that stores files in dir and keeps at most
// maxFiles.
func NewArchive(dir string, maxFiles int) *Archive {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Archive{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Write saves lc to a file named by the write time and prunes old files
// beyond maxFiles. A run written again, such as a cached run that becomes
// active a second time, becomes the newest record.
func (a *Archive) Write(lc *simulation.Lightcurve) error {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	files, err := a.listFiles()
	if err != nil {
		return err
	}
	ts := time.Now().UnixNano()
	if n := len(files); n > 0 && files[n-1].ts >= ts {
		ts = files[n-1].ts + 1
	}

	rec := NewRecord(lc)
	rec.ArchivedAt = time.Unix(0, ts).UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	path := filepath.Join(a.dir, fmt.Sprintf("run_%d.json", ts))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing archive file: %w", err)
	}

	return a.prune()
}

// LoadLatest reads the most recently written run.
func (a *Archive) LoadLatest() (*Record, error) {
	files, err := a.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoArchive
	}

	// Sorted oldest first.
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(a.dir, latest.name))
	if err != nil {
		return nil, fmt.Errorf("reading archive file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding archive file %s: %w", latest.name, err)
	}
	return &rec, nil
}

// Count returns the number of archived runs.
func (a *Archive) Count() (int, error) {
	files, err := a.listFiles()
	return len(files), err
}

type archiveFile struct {
	name string
	ts   int64
}

func (a *Archive) listFiles() ([]archiveFile, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archive dir: %w", err)
	}

	var files []archiveFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "run_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, "run_"), ".json")
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, archiveFile{name: name, ts: ts})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts < files[j].ts
	})

	return files, nil
}

func (a *Archive) prune() error {
	files, err := a.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= a.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-a.maxFiles] {
		if err := os.Remove(filepath.Join(a.dir, f.name)); err != nil {
			return fmt.Errorf("pruning archive file %s: %w", f.name, err)
		}
	}
	return nil
}
