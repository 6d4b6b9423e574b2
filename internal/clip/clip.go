// Package clip runs the per-record clip-by-mask batch: every polygon record
// of a layer is rasterized on the source raster's grid, used to mask the
// source, and written as its own 8-bit raster named after the record's
// identifier.
package clip

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rshade/rasterclip/internal/engine/batch"
	"github.com/rshade/rasterclip/internal/raster"
)

// Configuration errors detected before any record is processed.
var (
	ErrMissingParam    = errors.New("missing required parameter")
	ErrScratchIsOutput = errors.New("scratch directory must differ from the output directory")
	ErrDuplicateID     = errors.New("identifier matches more than one feature")
)

// GridFormat is the format tag selecting the native grid format.
const GridFormat = "GRID"

// Params are the five positional inputs of a run.
type Params struct {
	Polygons  string
	IDField   string
	Raster    string
	OutputDir string
	Format    string
}

// Validate checks that every parameter except Format is set.
func (p Params) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"polygons", p.Polygons},
		{"id-field", p.IDField},
		{"raster", p.Raster},
		{"output-dir", p.OutputDir},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParam, f.name)
		}
	}
	return nil
}

// Options tune a run.
type Options struct {
	ScratchDir string
	Workers    int
	StrictIDs  bool
	MinFreeMB  uint64
	Pyramids   bool
	Statistics bool
	Overwrite  bool
	Background float64
	// RunID identifies the run in logs, the audit log and the workspace lock.
	// Empty uses the context trace ID.
	RunID string
	// Progress is called after every record.
	Progress batch.ProgressCallback
}

// NormalizeFormat maps a format tag to the suffix appended to identifiers.
// "GRID" (any case) and "" select the native grid and yield "". Any other tag
// is used verbatim; no leading dot is added.
func NormalizeFormat(tag string) string {
	if tag == "" || strings.EqualFold(tag, GridFormat) {
		return ""
	}
	return tag
}

// OutputPath returns the path a record's raster is written to.
func OutputPath(outputDir, id, suffix string) string {
	return filepath.Join(outputDir, id+suffix)
}

// OutputCodec returns the codec writing outputs named with suffix. The
// codec follows the suffix alone, never the record identifier, so an id such
// as "7.png" written as GRID stays a native grid. Suffixes without an
// extension select the native grid format.
func OutputCodec(suffix string) (raster.Codec, error) {
	ext := filepath.Ext(suffix)
	if ext == "" {
		return raster.Native(), nil
	}
	c, err := raster.Lookup(ext)
	if err != nil {
		return nil, fmt.Errorf("output format %q: %w", suffix, err)
	}
	return c, nil
}

// sameDir reports whether a and b resolve to the same directory path.
func sameDir(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return filepath.Clean(absA) == filepath.Clean(absB), nil
}
