package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/rshade/rasterclip/internal/engine/scratch"
	"github.com/rshade/rasterclip/internal/raster"
	"github.com/rshade/rasterclip/internal/vector"
)

// bytesPerMB converts megabytes to bytes.
const bytesPerMB = 1 << 20

// Engine runs raster operations against a scratch workspace.
type Engine struct {
	workspace *scratch.Workspace
	runID     string
	usage     func(path string) (*disk.UsageStat, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDiskUsage replaces the disk usage probe.
func WithDiskUsage(fn func(path string) (*disk.UsageStat, error)) Option {
	return func(e *Engine) {
		e.usage = fn
	}
}

// New creates an engine bound to a scratch workspace. runID identifies the
// holder of the capability lock.
func New(ws *scratch.Workspace, runID string, opts ...Option) *Engine {
	e := &Engine{workspace: ws, runID: runID, usage: disk.Usage}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workspace returns the engine's scratch workspace.
func (e *Engine) Workspace() *scratch.Workspace {
	return e.workspace
}

// CheckExtension reports whether the raster capability could be checked out.
func (e *Engine) CheckExtension() bool {
	return !e.workspace.Locked()
}

// CheckOut acquires the raster capability for this run.
func (e *Engine) CheckOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.workspace.Lock(e.runID); err != nil {
		err = fmt.Errorf("checking out raster capability: %w: %w", ErrCapabilityUnavailable, err)
		return errors.WithHintf(err,
			"another run is using scratch workspace %s; wait for it or choose a different --scratch-dir (lock file: %s)",
			e.workspace.Dir(), e.workspace.LockPath())
	}
	return nil
}

// CheckIn releases the raster capability.
func (e *Engine) CheckIn() error {
	return e.workspace.Unlock()
}

// EnsureFreeSpace fails with ErrInsufficientSpace when the filesystem
// holding dir has less than minMB megabytes free. minMB 0 disables the check.
func (e *Engine) EnsureFreeSpace(dir string, minMB uint64) error {
	if minMB == 0 {
		return nil
	}
	stat, err := e.usage(dir)
	if err != nil {
		return errors.Wrapf(err, "probing free space of %s", dir)
	}
	if stat.Free < minMB*bytesPerMB {
		return errors.WithHint(
			errors.Wrapf(ErrInsufficientSpace, "%s has %d MB free, need %d MB", dir, stat.Free/bytesPerMB, minMB),
			"free disk space or point --scratch-dir at a larger volume")
	}
	return nil
}

// DatasetType distinguishes raster and vector descriptions.
type DatasetType string

// Dataset types reported by Describe.
const (
	RasterDataset DatasetType = "RasterDataset"
	FeatureClass  DatasetType = "FeatureClass"
)

// BandDescription describes one raster band.
type BandDescription struct {
	Index          int
	MeanCellHeight float64
	MeanCellWidth  float64
}

// Description holds dataset properties returned by Describe.
type Description struct {
	Path   string
	Type   DatasetType
	Format string
	Extent orb.Bound

	// Raster properties. MeanCellHeight and MeanCellWidth are only defined
	// at dataset level for single-band rasters.
	Grid           raster.Grid
	PixelType      raster.PixelType
	BandCount      int
	MeanCellHeight float64
	MeanCellWidth  float64
	NoData         *float64
	Bands          []BandDescription

	// Vector properties.
	FeatureCount int
	Fields       []string
}

// IsVectorPath reports whether path names a vector dataset.
func IsVectorPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return true
	default:
		return false
	}
}

// Describe reads dataset properties.
func Describe(path string) (*Description, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("describing %s: %w: %w", path, ErrUnknownDataset, err)
	}
	if IsVectorPath(path) {
		layer, err := vector.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "describing %s", path)
		}
		return DescribeLayer(path, layer), nil
	}
	codec := raster.ForPath(path)
	r, err := codec.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "describing %s", path)
	}
	d := DescribeRaster(path, r)
	d.Format = codec.Name()
	return d, nil
}

// DescribeLayer builds the description of a loaded layer.
func DescribeLayer(path string, layer *vector.Layer) *Description {
	seen := map[string]bool{}
	var fields []string
	for _, f := range layer.Features {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)
	return &Description{
		Path:         path,
		Type:         FeatureClass,
		Format:       "GeoJSON",
		Extent:       layer.Bound(),
		FeatureCount: layer.Len(),
		Fields:       fields,
	}
}

// DescribeRaster builds the description of a loaded raster.
func DescribeRaster(path string, r *raster.Raster) *Description {
	d := &Description{
		Path:      path,
		Type:      RasterDataset,
		Extent:    r.Grid.Bound(),
		Grid:      r.Grid,
		PixelType: r.PixelType,
		BandCount: len(r.Bands),
		NoData:    r.NoData,
	}
	for i := range r.Bands {
		d.Bands = append(d.Bands, BandDescription{
			Index:          i + 1,
			MeanCellHeight: r.Grid.CellHeight,
			MeanCellWidth:  r.Grid.CellWidth,
		})
	}
	if len(r.Bands) == 1 {
		d.MeanCellHeight = r.Grid.CellHeight
		d.MeanCellWidth = r.Grid.CellWidth
	}
	return d
}

// SourceCellSize returns the rasterization cell size for a source raster:
// its mean cell height, or band 1's when the raster is multiband.
func SourceCellSize(d *Description) (float64, error) {
	if d.MeanCellHeight > 0 {
		return d.MeanCellHeight, nil
	}
	if len(d.Bands) > 0 && d.Bands[0].MeanCellHeight > 0 {
		return d.Bands[0].MeanCellHeight, nil
	}
	return 0, errors.Wrapf(ErrInvalidEnv, "%s has no usable cell size", d.Path)
}

// Delete removes a dataset and its sidecars. A missing dataset is not an
// error.
func Delete(path string) error {
	if IsVectorPath(path) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "deleting %s", path)
		}
		return nil
	}
	if err := raster.Remove(path, raster.ForPath(path)); err != nil {
		return errors.Wrapf(err, "deleting %s", path)
	}
	return nil
}
