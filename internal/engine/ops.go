package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb/planar"

	"github.com/rshade/rasterclip/internal/raster"
	"github.com/rshade/rasterclip/internal/vector"
)

// Mask cell values written by PolygonToRaster.
const (
	maskInside = 1
	maskNoData = 0
)

// CopyOptions control CopyRaster.
type CopyOptions struct {
	// PixelType is the output depth. Zero keeps the source depth.
	PixelType raster.PixelType
	// Background replaces NoData cells.
	Background float64
	// Codec writes the output. nil picks one from the destination path.
	Codec raster.Codec
}

// Select writes the features of layer whose field equals value to dst as
// GeoJSON and returns them. An empty selection is an error and writes
// nothing.
func (e *Engine) Select(ctx context.Context, layer *vector.Layer, field, value, dst string) (*vector.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expr := vector.Where(field, value)
	sel := vector.Select(layer, expr)
	if sel.Len() == 0 {
		return nil, errors.Wrapf(ErrEmptySelection, "%s", expr)
	}
	if err := vector.Save(sel, dst); err != nil {
		return nil, errors.Wrapf(err, "saving selection %s", expr)
	}
	return sel, nil
}

// PolygonToRaster rasterizes the polygon layer stored at src into a native
// mask grid at dst, whatever the extension of dst. The grid covers env.Extent (or the layer bound when unset)
// snapped to env.Snap at env.CellSize. A cell is inside when its centre lies
// inside a polygon, holes excluded.
func (e *Engine) PolygonToRaster(ctx context.Context, src, dst string, env Env) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	layer, err := vector.Load(src)
	if err != nil {
		return nil, errors.Wrap(err, "loading features to rasterize")
	}
	if layer.Len() == 0 {
		return nil, ErrEmptySelection
	}

	bound := layer.Bound()
	if env.Extent != nil {
		bound = *env.Extent
	}
	grid, err := raster.SnapGrid(*env.Snap, env.CellSize, bound)
	if err != nil {
		return nil, errors.Wrap(err, "building mask grid")
	}
	mask, err := raster.New(grid, 1, raster.U8)
	if err != nil {
		return nil, err
	}
	mask.SetNoData(maskNoData)

	mp := layer.MultiPolygon()
	for row := range grid.Rows {
		for col := range grid.Cols {
			if planar.MultiPolygonContains(mp, grid.CellCenter(col, row)) {
				mask.Set(0, col, row, maskInside)
			}
		}
	}

	if err = e.write(dst, mask, raster.Native(), env); err != nil {
		return nil, errors.Wrap(err, "writing mask")
	}
	return mask, nil
}

// ExtractByMask writes to the native grid dst the cells of src that fall
// under data cells of the native mask stored at maskPath. The output lies on the mask's grid, limited to
// the source extent and env.Extent. When src has no NoData value its depth is
// widened so that a distinct NoData exists.
func (e *Engine) ExtractByMask(ctx context.Context, src *raster.Raster, maskPath, dst string, env Env) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mask, err := raster.Native().Read(maskPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening mask")
	}

	grid, err := mask.Grid.Intersect(src.Grid.Bound())
	if err != nil {
		return nil, errors.Wrapf(ErrNoOverlap, "%v", err)
	}
	if env.Extent != nil {
		if grid, err = grid.Intersect(*env.Extent); err != nil {
			return nil, errors.Wrapf(ErrNoOverlap, "%v", err)
		}
	}

	pt := src.PixelType
	var noData float64
	if src.NoData != nil {
		noData = *src.NoData
	} else {
		pt, noData = pt.Widen()
	}
	out, err := raster.New(grid, len(src.Bands), pt)
	if err != nil {
		return nil, err
	}
	out.SetNoData(noData)
	out.Fill(noData)

	data := 0
	for row := range grid.Rows {
		for col := range grid.Cols {
			center := grid.CellCenter(col, row)
			mc, mr, ok := mask.Grid.CellAt(center)
			if !ok || mask.IsNoData(mask.At(0, mc, mr)) {
				continue
			}
			sc, sr, ok := src.Grid.CellAt(center)
			if !ok || src.IsNoData(src.At(0, sc, sr)) {
				continue
			}
			for b := range src.Bands {
				out.Set(b, col, row, src.At(b, sc, sr))
			}
			data++
		}
	}
	if data == 0 {
		return nil, errors.Wrapf(ErrNoOverlap, "no source cells under mask %s", maskPath)
	}

	if err = e.write(dst, out, raster.Native(), env); err != nil {
		return nil, errors.Wrap(err, "writing extracted raster")
	}
	return out, nil
}

// CopyRaster converts the raster at src to dst, replacing NoData cells with
// the background value and coercing samples to the requested pixel type.
func (e *Engine) CopyRaster(ctx context.Context, src, dst string, env Env, opts CopyOptions) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec := opts.Codec
	if codec == nil {
		codec = raster.ForPath(dst)
	}
	if !env.Overwrite && raster.Exists(dst, codec) {
		return nil, errors.Wrapf(ErrDatasetExists, "%s", dst)
	}

	in, err := raster.Open(src)
	if err != nil {
		return nil, errors.Wrap(err, "opening raster to copy")
	}
	pt := opts.PixelType
	if pt == 0 {
		pt = in.PixelType
	}
	out, err := raster.New(in.Grid, len(in.Bands), pt)
	if err != nil {
		return nil, err
	}
	for b, band := range in.Bands {
		for i, v := range band.Values {
			if in.IsNoData(v) {
				v = opts.Background
			}
			out.Bands[b].Values[i] = pt.Clamp(v)
		}
	}

	if err = e.write(dst, out, codec, env); err != nil {
		return nil, errors.Wrapf(err, "writing %s", dst)
	}
	return out, nil
}

func (e *Engine) write(path string, r *raster.Raster, codec raster.Codec, env Env) error {
	if err := codec.Write(path, r, env.writeOptions()); err != nil {
		return err
	}
	if env.Statistics {
		return raster.WriteStatistics(path, r)
	}
	return nil
}
