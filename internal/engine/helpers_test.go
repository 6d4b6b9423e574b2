package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rshade/rasterclip/internal/raster"
)

// threeParcels has PID 1 inside the source raster, PID 2 east of it and
// PID 3 in its north-west corner.
const threeParcels = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"PID": 1, "zone": "A"},
     "geometry": {"type": "Polygon", "coordinates": [[[1,1],[5,1],[5,5],[1,5],[1,1]]]}},
    {"type": "Feature", "properties": {"PID": 2, "zone": "B"},
     "geometry": {"type": "Polygon", "coordinates": [[[25,1],[30,1],[30,5],[25,5],[25,1]]]}},
    {"type": "Feature", "properties": {"PID": 3, "zone": "A"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,6],[4,6],[4,9],[0,9],[0,6]]]}}
  ]
}`

// sourceGrid is a 20x10 lattice of unit cells covering (0,0)-(20,10).
func sourceGrid() raster.Grid {
	return raster.Grid{OriginX: 0, OriginY: 10, CellWidth: 1, CellHeight: 1, Cols: 20, Rows: 10}
}

func sourceRaster(t *testing.T, grid raster.Grid, bands int, pt raster.PixelType) *raster.Raster {
	t.Helper()
	r, err := raster.New(grid, bands, pt)
	require.NoError(t, err)
	for b := range r.Bands {
		for i := range r.Bands[b].Values {
			r.Bands[b].Values[i] = float64((i+b)%250 + 1)
		}
	}
	return r
}

func writeRaster(t *testing.T, path string, grid raster.Grid, bands int, pt raster.PixelType) string {
	t.Helper()
	r := sourceRaster(t, grid, bands, pt)
	require.NoError(t, raster.ForPath(path).Write(path, r, raster.WriteOptions{}))
	return path
}

func writeFeatures(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.geojson")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func testEnv() Env {
	g := sourceGrid()
	return Env{Snap: &g, CellSize: 1, Overwrite: true}
}
