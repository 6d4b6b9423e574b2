package raster

import (
	"errors"
	"fmt"
	"math"
)

// Common raster errors.
var (
	ErrInvalidGrid         = errors.New("invalid raster grid")
	ErrUnknownPixelType    = errors.New("unknown pixel type")
	ErrUnsupportedFormat   = errors.New("unsupported raster format")
	ErrUnsupportedLayout   = errors.New("format cannot store this raster layout")
	ErrMissingGeoreference = errors.New("raster has no georeference")
	ErrBandMismatch        = errors.New("band size does not match grid")
)

// Band holds the row-major samples of one raster band.
type Band struct {
	Values []float64
}

// Raster is a georeferenced multi-band grid.
type Raster struct {
	Grid      Grid
	PixelType PixelType
	// NoData marks cells without data. nil means every cell holds data.
	NoData *float64
	Bands  []Band
}

// New allocates a raster with the given number of zero-filled bands.
func New(grid Grid, bands int, pt PixelType) (*Raster, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if !pt.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPixelType, int(pt))
	}
	if bands < 1 {
		return nil, fmt.Errorf("%w: %d bands", ErrInvalidGrid, bands)
	}
	r := &Raster{Grid: grid, PixelType: pt, Bands: make([]Band, bands)}
	for i := range r.Bands {
		r.Bands[i].Values = make([]float64, grid.Cells())
	}
	return r, nil
}

// Validate checks that every band matches the grid.
func (r *Raster) Validate() error {
	if err := r.Grid.Validate(); err != nil {
		return err
	}
	if len(r.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidGrid)
	}
	for i, b := range r.Bands {
		if len(b.Values) != r.Grid.Cells() {
			return fmt.Errorf("%w: band %d has %d samples, grid has %d cells",
				ErrBandMismatch, i+1, len(b.Values), r.Grid.Cells())
		}
	}
	return nil
}

// SetNoData sets the NoData value.
func (r *Raster) SetNoData(v float64) {
	r.NoData = &v
}

// IsNoData reports whether v is the raster's NoData value.
func (r *Raster) IsNoData(v float64) bool {
	if r.NoData == nil {
		return false
	}
	if math.IsNaN(*r.NoData) {
		return math.IsNaN(v)
	}
	return v == *r.NoData
}

// At returns the sample of band (0-based) at cell (col, row).
func (r *Raster) At(band, col, row int) float64 {
	return r.Bands[band].Values[r.Grid.Index(col, row)]
}

// Set stores a sample of band (0-based) at cell (col, row).
func (r *Raster) Set(band, col, row int, v float64) {
	r.Bands[band].Values[r.Grid.Index(col, row)] = v
}

// Fill sets every sample of every band to v.
func (r *Raster) Fill(v float64) {
	for i := range r.Bands {
		for j := range r.Bands[i].Values {
			r.Bands[i].Values[j] = v
		}
	}
}

// DataCells counts cells of band 0 that are not NoData.
func (r *Raster) DataCells() int {
	if len(r.Bands) == 0 {
		return 0
	}
	n := 0
	for _, v := range r.Bands[0].Values {
		if !r.IsNoData(v) {
			n++
		}
	}
	return n
}
