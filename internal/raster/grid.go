package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// snapEpsilon absorbs floating point noise when a bound edge lies exactly on
// a cell boundary.
const snapEpsilon = 1e-9

// Grid describes a north-up raster lattice. OriginX/OriginY are the
// coordinates of the top-left corner of the top-left cell.
type Grid struct {
	OriginX    float64 `yaml:"origin_x"`
	OriginY    float64 `yaml:"origin_y"`
	CellWidth  float64 `yaml:"cell_width"`
	CellHeight float64 `yaml:"cell_height"`
	Cols       int     `yaml:"cols"`
	Rows       int     `yaml:"rows"`
}

// Validate checks that the grid has positive cell sizes and dimensions.
func (g Grid) Validate() error {
	if g.CellWidth <= 0 || g.CellHeight <= 0 {
		return fmt.Errorf("%w: cell size %gx%g", ErrInvalidGrid, g.CellWidth, g.CellHeight)
	}
	if g.Cols <= 0 || g.Rows <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidGrid, g.Cols, g.Rows)
	}
	return nil
}

// Cells returns the number of cells in one band.
func (g Grid) Cells() int {
	return g.Cols * g.Rows
}

// Bound returns the spatial extent covered by the grid.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.OriginX, g.OriginY - float64(g.Rows)*g.CellHeight},
		Max: orb.Point{g.OriginX + float64(g.Cols)*g.CellWidth, g.OriginY},
	}
}

// CellCenter returns the coordinates of the centre of cell (col, row).
func (g Grid) CellCenter(col, row int) orb.Point {
	return orb.Point{
		g.OriginX + (float64(col)+0.5)*g.CellWidth,
		g.OriginY - (float64(row)+0.5)*g.CellHeight,
	}
}

// CellAt returns the cell containing p. ok is false outside the grid.
func (g Grid) CellAt(p orb.Point) (col, row int, ok bool) {
	col = int(math.Floor((p[0] - g.OriginX) / g.CellWidth))
	row = int(math.Floor((g.OriginY - p[1]) / g.CellHeight))
	if col < 0 || row < 0 || col >= g.Cols || row >= g.Rows {
		return 0, 0, false
	}
	return col, row, true
}

// Index returns the row-major sample index of cell (col, row).
func (g Grid) Index(col, row int) int {
	return row*g.Cols + col
}

// Aligned reports whether other shares this grid's cell size and its origin
// falls on this grid's lattice.
func (g Grid) Aligned(other Grid) bool {
	if !nearlyEqual(g.CellWidth, other.CellWidth) || !nearlyEqual(g.CellHeight, other.CellHeight) {
		return false
	}
	dx := (other.OriginX - g.OriginX) / g.CellWidth
	dy := (g.OriginY - other.OriginY) / g.CellHeight
	return nearlyEqual(dx, math.Round(dx)) && nearlyEqual(dy, math.Round(dy))
}

// ErrEmptyBound is returned when snapping a bound that covers no cells.
var ErrEmptyBound = errors.New("bound covers no cells")

// SnapGrid builds a grid with square cells of size cellSize covering b,
// expanded outward so that its origin lies on the lattice defined by snap's
// origin and cellSize.
func SnapGrid(snap Grid, cellSize float64, b orb.Bound) (Grid, error) {
	if cellSize <= 0 {
		return Grid{}, fmt.Errorf("%w: cell size %g", ErrInvalidGrid, cellSize)
	}
	minCol := math.Floor((b.Min[0]-snap.OriginX)/cellSize + snapEpsilon)
	maxCol := math.Ceil((b.Max[0]-snap.OriginX)/cellSize - snapEpsilon)
	topRow := math.Floor((snap.OriginY-b.Max[1])/cellSize + snapEpsilon)
	bottomRow := math.Ceil((snap.OriginY-b.Min[1])/cellSize - snapEpsilon)

	cols := int(maxCol - minCol)
	rows := int(bottomRow - topRow)
	if cols <= 0 || rows <= 0 {
		return Grid{}, fmt.Errorf("%w: %v", ErrEmptyBound, b)
	}
	return Grid{
		OriginX:    snap.OriginX + minCol*cellSize,
		OriginY:    snap.OriginY - topRow*cellSize,
		CellWidth:  cellSize,
		CellHeight: cellSize,
		Cols:       cols,
		Rows:       rows,
	}, nil
}

// Intersect returns the part of g that overlaps b, keeping g's lattice.
func (g Grid) Intersect(b orb.Bound) (Grid, error) {
	gb := g.Bound()
	if !gb.Intersects(b) {
		return Grid{}, fmt.Errorf("%w: %v does not overlap %v", ErrEmptyBound, b, gb)
	}
	inter := orb.Bound{
		Min: orb.Point{math.Max(gb.Min[0], b.Min[0]), math.Max(gb.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(gb.Max[0], b.Max[0]), math.Min(gb.Max[1], b.Max[1])},
	}
	minCol := math.Floor((inter.Min[0]-g.OriginX)/g.CellWidth + snapEpsilon)
	maxCol := math.Ceil((inter.Max[0]-g.OriginX)/g.CellWidth - snapEpsilon)
	topRow := math.Floor((g.OriginY-inter.Max[1])/g.CellHeight + snapEpsilon)
	bottomRow := math.Ceil((g.OriginY-inter.Min[1])/g.CellHeight - snapEpsilon)

	cols := int(maxCol - minCol)
	rows := int(bottomRow - topRow)
	if cols <= 0 || rows <= 0 {
		return Grid{}, fmt.Errorf("%w: %v", ErrEmptyBound, inter)
	}
	return Grid{
		OriginX:    g.OriginX + minCol*g.CellWidth,
		OriginY:    g.OriginY - topRow*g.CellHeight,
		CellWidth:  g.CellWidth,
		CellHeight: g.CellHeight,
		Cols:       cols,
		Rows:       rows,
	}, nil
}

func nearlyEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= snapEpsilon*scale
}
