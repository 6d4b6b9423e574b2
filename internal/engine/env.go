package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"

	"github.com/rshade/rasterclip/internal/raster"
)

// Env is the explicit processing environment handed to each operation.
// It is a value type: With* methods return modified copies.
type Env struct {
	// Extent limits the processing window. nil means unbounded.
	Extent *orb.Bound
	// Snap is the grid every generated raster aligns to.
	Snap *raster.Grid
	// CellSize is the rasterization cell size.
	CellSize float64
	// Pyramids requests overview levels on write.
	Pyramids bool
	// Statistics requests a statistics sidecar on write.
	Statistics bool
	// Overwrite allows outputs to replace existing datasets.
	Overwrite bool
}

// WithExtent returns a copy of env limited to b.
func (e Env) WithExtent(b orb.Bound) Env {
	e.Extent = &b
	return e
}

// WithoutExtent returns a copy of env with no processing window.
func (e Env) WithoutExtent() Env {
	e.Extent = nil
	return e
}

// Validate checks the fields that rasterizing operations depend on.
func (e Env) Validate() error {
	if e.Snap == nil {
		return errors.Wrap(ErrInvalidEnv, "snap grid not set")
	}
	if e.CellSize <= 0 {
		return errors.Wrapf(ErrInvalidEnv, "cell size %g", e.CellSize)
	}
	return nil
}

func (e Env) writeOptions() raster.WriteOptions {
	return raster.WriteOptions{Overviews: e.Pyramids}
}
