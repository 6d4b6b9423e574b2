package raster

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid() Grid {
	return Grid{OriginX: 100, OriginY: 200, CellWidth: 10, CellHeight: 10, Cols: 5, Rows: 4}
}

func TestGrid_BoundAndCells(t *testing.T) {
	g := testGrid()
	b := g.Bound()
	assert.Equal(t, orb.Point{100, 160}, b.Min)
	assert.Equal(t, orb.Point{150, 200}, b.Max)
	assert.Equal(t, 20, g.Cells())

	assert.Equal(t, orb.Point{105, 195}, g.CellCenter(0, 0))
	assert.Equal(t, orb.Point{145, 165}, g.CellCenter(4, 3))

	col, row, ok := g.CellAt(orb.Point{127, 181})
	require.True(t, ok)
	assert.Equal(t, 2, col)
	assert.Equal(t, 1, row)

	_, _, ok = g.CellAt(orb.Point{99, 181})
	assert.False(t, ok)
	_, _, ok = g.CellAt(orb.Point{150, 181})
	assert.False(t, ok)
}

func TestGrid_Validate(t *testing.T) {
	assert.NoError(t, testGrid().Validate())

	bad := testGrid()
	bad.CellHeight = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidGrid)

	bad = testGrid()
	bad.Rows = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidGrid)
}

func TestSnapGrid(t *testing.T) {
	snap := testGrid()

	tests := []struct {
		name     string
		cellSize float64
		bound    orb.Bound
		want     Grid
	}{
		{
			name:     "expands outward to lattice",
			cellSize: 10,
			bound:    orb.Bound{Min: orb.Point{113, 171}, Max: orb.Point{128, 189}},
			want:     Grid{OriginX: 110, OriginY: 190, CellWidth: 10, CellHeight: 10, Cols: 2, Rows: 2},
		},
		{
			name:     "exact edges do not add a cell",
			cellSize: 10,
			bound:    orb.Bound{Min: orb.Point{110, 170}, Max: orb.Point{130, 190}},
			want:     Grid{OriginX: 110, OriginY: 190, CellWidth: 10, CellHeight: 10, Cols: 2, Rows: 2},
		},
		{
			name:     "outside the snap grid keeps the lattice",
			cellSize: 10,
			bound:    orb.Bound{Min: orb.Point{301, 401}, Max: orb.Point{309, 409}},
			want:     Grid{OriginX: 300, OriginY: 410, CellWidth: 10, CellHeight: 10, Cols: 1, Rows: 1},
		},
		{
			name:     "finer cell size",
			cellSize: 5,
			bound:    orb.Bound{Min: orb.Point{101, 196}, Max: orb.Point{104, 199}},
			want:     Grid{OriginX: 100, OriginY: 200, CellWidth: 5, CellHeight: 5, Cols: 1, Rows: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SnapGrid(snap, tt.cellSize, tt.bound)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.OriginX, got.OriginX, 1e-9)
			assert.InDelta(t, tt.want.OriginY, got.OriginY, 1e-9)
			assert.Equal(t, tt.want.Cols, got.Cols)
			assert.Equal(t, tt.want.Rows, got.Rows)
			assert.True(t, got.Aligned(Grid{
				OriginX: snap.OriginX, OriginY: snap.OriginY,
				CellWidth: tt.cellSize, CellHeight: tt.cellSize,
			}))
		})
	}

	_, err := SnapGrid(snap, 0, orb.Bound{})
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestGrid_Intersect(t *testing.T) {
	g := testGrid()

	got, err := g.Intersect(orb.Bound{Min: orb.Point{135, 150}, Max: orb.Point{170, 175}})
	require.NoError(t, err)
	assert.Equal(t, Grid{OriginX: 130, OriginY: 180, CellWidth: 10, CellHeight: 10, Cols: 2, Rows: 2}, got)

	_, err = g.Intersect(orb.Bound{Min: orb.Point{500, 500}, Max: orb.Point{600, 600}})
	assert.ErrorIs(t, err, ErrEmptyBound)

	// Touching edges share no cell.
	_, err = g.Intersect(orb.Bound{Min: orb.Point{150, 160}, Max: orb.Point{170, 200}})
	assert.ErrorIs(t, err, ErrEmptyBound)
}

func TestGrid_Aligned(t *testing.T) {
	g := testGrid()
	other := g
	other.OriginX += 30
	other.OriginY -= 20
	assert.True(t, g.Aligned(other))

	other.OriginX += 3
	assert.False(t, g.Aligned(other))

	other = g
	other.CellWidth = 5
	assert.False(t, g.Aligned(other))
}
