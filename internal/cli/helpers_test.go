package cli_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rshade/rasterclip/internal/cli"
	"github.com/rshade/rasterclip/internal/config"
	"github.com/rshade/rasterclip/internal/raster"
)

// setupCLITest isolates the command from the user's configuration and
// environment and returns the temporary RASTERCLIP_HOME.
func setupCLITest(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	for _, key := range []string{
		config.EnvConfig, config.EnvLogFormat, config.EnvScratchDir,
		config.EnvWorkers, config.EnvProjectDir,
	} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvLogLevel, "error")
	return home
}

// execute runs the root command with args and returns stdout, stderr and the
// command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := cli.NewRootCmd("test")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func square(id any, minX, minY, maxX, maxY float64) string {
	idJSON, _ := json.Marshal(id)
	return fmt.Sprintf(`{"type":"Feature","properties":{"PID":%s},"geometry":{"type":"Polygon",`+
		`"coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		idJSON, minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

// workspace holds the input and output paths of one extract run.
type workspace struct {
	dir      string
	polygons string
	raster   string
	output   string
	scratch  string
}

// newWorkspace writes layer and a single-band 20x10 U8 GeoTIFF covering
// (0,0)-(20,10).
func newWorkspace(t *testing.T, layer string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:      dir,
		polygons: filepath.Join(dir, "parcels.geojson"),
		raster:   filepath.Join(dir, "dem.tif"),
		output:   filepath.Join(dir, "out"),
		scratch:  filepath.Join(dir, "scratch"),
	}
	require.NoError(t, os.WriteFile(ws.polygons, []byte(layer), 0o600))

	grid := raster.Grid{OriginX: 0, OriginY: 10, CellWidth: 1, CellHeight: 1, Cols: 20, Rows: 10}
	src, err := raster.New(grid, 1, raster.U8)
	require.NoError(t, err)
	for i := range src.Bands[0].Values {
		src.Bands[0].Values[i] = float64(i%250 + 1)
	}
	require.NoError(t, raster.ForPath(ws.raster).Write(ws.raster, src, raster.WriteOptions{}))
	return ws
}

// extractArgs returns the positional arguments of an extract run followed
// by the scratch directory flag and extra.
func (ws workspace) extractArgs(format string, extra ...string) []string {
	args := []string{"extract", ws.polygons, "PID", ws.raster, ws.output, format, "--scratch-dir", ws.scratch}
	return append(args, extra...)
}

var (
	twoInside = collection(
		square(1, 1, 1, 5, 5),
		square(3, 0, 6, 4, 9),
	)
	oneOutside = collection(
		square(1, 1, 1, 5, 5),
		square(2, 25, 1, 30, 5),
		square(3, 0, 6, 4, 9),
	)
)
