package clip_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/rasterclip/internal/clip"
	"github.com/rshade/rasterclip/internal/engine"
	"github.com/rshade/rasterclip/internal/engine/batch"
	"github.com/rshade/rasterclip/internal/engine/scratch"
	"github.com/rshade/rasterclip/internal/logging"
	"github.com/rshade/rasterclip/internal/raster"
)

// sourceGrid is a 20x10 lattice of unit cells covering (0,0)-(20,10).
func sourceGrid() raster.Grid {
	return raster.Grid{OriginX: 0, OriginY: 10, CellWidth: 1, CellHeight: 1, Cols: 20, Rows: 10}
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

type fixture struct {
	dir      string
	polygons string
	raster   string
	output   string
	scratch  string
}

func newFixture(t *testing.T, layer string, bands int) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		polygons: filepath.Join(dir, "parcels.geojson"),
		raster:   filepath.Join(dir, "source.tif"),
		output:   filepath.Join(dir, "out"),
		scratch:  filepath.Join(dir, "scratch"),
	}
	require.NoError(t, os.WriteFile(f.polygons, []byte(layer), 0o600))

	src, err := raster.New(sourceGrid(), bands, raster.U8)
	require.NoError(t, err)
	for b := range src.Bands {
		for i := range src.Bands[b].Values {
			src.Bands[b].Values[i] = float64((i+b)%250 + 1)
		}
	}
	require.NoError(t, raster.ForPath(f.raster).Write(f.raster, src, raster.WriteOptions{}))
	return f
}

func (f fixture) params(format string) clip.Params {
	return clip.Params{Polygons: f.polygons, IDField: "PID", Raster: f.raster, OutputDir: f.output, Format: format}
}

func (f fixture) options() clip.Options {
	return clip.Options{ScratchDir: f.scratch, Workers: 1, Overwrite: true}
}

func (f fixture) run(t *testing.T, format string, opts clip.Options, engineOpts ...engine.Option) (*clip.Summary, error) {
	t.Helper()
	p, err := clip.New(f.params(format), opts, engineOpts...)
	require.NoError(t, err)
	return p.Run(context.Background())
}

func (f fixture) assertNoResidue(t *testing.T) {
	t.Helper()
	ws, err := scratch.Open(f.scratch, engine.Delete)
	require.NoError(t, err)
	residue, err := ws.Residue()
	require.NoError(t, err)
	assert.Empty(t, residue)
	assert.False(t, ws.Locked(), "capability is checked back in")
}

var threeParcels = collection(
	square(1, 1, 1, 5, 5),
	square(2, 25, 1, 30, 5),
	square(3, 0, 6, 4, 9),
)

func TestNormalizeFormat(t *testing.T) {
	tests := []struct{ tag, want string }{
		{"GRID", ""},
		{"grid", ""},
		{"", ""},
		{".tif", ".tif"},
		{"tif", "tif"},
		{".PNG", ".PNG"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, clip.NormalizeFormat(tt.tag))
		})
	}
	assert.Equal(t, filepath.Join("out", "7.tif"), clip.OutputPath("out", "7", ".tif"))
	assert.Equal(t, filepath.Join("out", "7"), clip.OutputPath("out"+string(os.PathSeparator), "7", ""))
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, threeParcels, 1)

	params := f.params(".tif")
	params.IDField = ""
	_, err := clip.New(params, f.options())
	assert.ErrorIs(t, err, clip.ErrMissingParam)

	opts := f.options()
	opts.ScratchDir = f.output + string(os.PathSeparator) + "."
	_, err = clip.New(f.params(".tif"), opts)
	assert.ErrorIs(t, err, clip.ErrScratchIsOutput)

	opts = f.options()
	opts.Workers = -1
	_, err = clip.New(f.params(".tif"), opts)
	assert.ErrorIs(t, err, batch.ErrInvalidWorkers)

	_, err = clip.New(f.params(".xyz"), f.options())
	assert.ErrorIs(t, err, raster.ErrUnsupportedFormat)
}

func TestRun_RecordOutsideSourceIsSkipped(t *testing.T) {
	f := newFixture(t, threeParcels, 1)

	summary, err := f.run(t, ".tif", f.options())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.False(t, summary.Complete())
	assert.Equal(t, map[string]string{
		"1": filepath.Join(f.output, "1.tif"),
		"3": filepath.Join(f.output, "3.tif"),
	}, summary.Written())
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, "2", summary.Skipped[0].ID)
	assert.Equal(t, 1, summary.Skipped[0].Index)
	assert.Equal(t, engine.MaskExtractionFailed, summary.Skipped[0].Kind)

	assert.FileExists(t, filepath.Join(f.output, "1.tif"))
	assert.FileExists(t, filepath.Join(f.output, "1.tfw"))
	assert.FileExists(t, filepath.Join(f.output, "3.tif"))
	assert.NoFileExists(t, filepath.Join(f.output, "2.tif"))
	f.assertNoResidue(t)
}

func TestRun_OutputIsU8OnMaskGrid(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	_, err := f.run(t, ".tif", f.options())
	require.NoError(t, err)

	src, err := raster.Open(f.raster)
	require.NoError(t, err)
	out, err := raster.Open(filepath.Join(f.output, "1.tif"))
	require.NoError(t, err)

	assert.Equal(t, raster.U8, out.PixelType)
	assert.Equal(t, raster.Grid{OriginX: 1, OriginY: 5, CellWidth: 1, CellHeight: 1, Cols: 4, Rows: 4}, out.Grid)
	for row := range out.Grid.Rows {
		for col := range out.Grid.Cols {
			sc, sr, ok := src.Grid.CellAt(out.Grid.CellCenter(col, row))
			require.True(t, ok)
			assert.Equal(t, src.At(0, sc, sr), out.At(0, col, row))
		}
	}
}

func triangle(id string) string {
	return `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"PID":"` + id + `"},` +
		`"geometry":{"type":"Polygon","coordinates":[[[0,0],[4.2,0],[0,4.2],[0,0]]]}}]}`
}

// assertTriangleFootprint checks the 5x5 output of triangle against the
// source: the 10 cells whose centre lies inside carry source values and the
// rest hold the background.
func assertTriangleFootprint(t *testing.T, f fixture, out *raster.Raster) {
	t.Helper()
	src, err := raster.Open(f.raster)
	require.NoError(t, err)
	require.Equal(t, 25, out.Grid.Cells())

	inside := 0
	for row := range out.Grid.Rows {
		for col := range out.Grid.Cols {
			c := out.Grid.CellCenter(col, row)
			if c[0]+c[1] >= 4.2 {
				assert.Zero(t, out.At(0, col, row), "cell (%d,%d) is outside", col, row)
				continue
			}
			inside++
			sc, sr, ok := src.Grid.CellAt(c)
			require.True(t, ok)
			assert.Equal(t, src.At(0, sc, sr), out.At(0, col, row), "cell (%d,%d)", col, row)
		}
	}
	assert.Equal(t, 10, inside)
}

func TestRun_FootprintIsCellCentreMask(t *testing.T) {
	f := newFixture(t, triangle("tri"), 1)

	summary, err := f.run(t, ".png", f.options())
	require.NoError(t, err)
	require.True(t, summary.Complete())

	out, err := raster.Open(filepath.Join(f.output, "tri.png"))
	require.NoError(t, err)
	assertTriangleFootprint(t, f, out)
}

func TestRun_IdentifierExtensionDoesNotChangeFootprint(t *testing.T) {
	for _, id := range []string{"tri", "tri.png", "a.tif", "x.jpg", "b.asc"} {
		t.Run(id, func(t *testing.T) {
			f := newFixture(t, triangle(id), 1)

			summary, err := f.run(t, ".tif", f.options())
			require.NoError(t, err)
			require.True(t, summary.Complete())

			dest := filepath.Join(f.output, id+".tif")
			assert.Equal(t, dest, summary.Written()[id])
			out, err := raster.Open(dest)
			require.NoError(t, err)
			assertTriangleFootprint(t, f, out)
			f.assertNoResidue(t)
		})
	}
}

func TestRun_GridFormatIgnoresIdentifierExtension(t *testing.T) {
	f := newFixture(t, collection(square("7.png", 1, 1, 5, 5)), 1)

	summary, err := f.run(t, "GRID", f.options())
	require.NoError(t, err)
	require.True(t, summary.Complete())

	dest := filepath.Join(f.output, "7.png")
	assert.Equal(t, dest, summary.Written()["7.png"])
	assert.DirExists(t, dest, "GRID outputs are native grid directories")
	assert.NoFileExists(t, raster.WorldFilePath(dest))

	out, err := raster.Native().Read(dest)
	require.NoError(t, err)
	assert.Equal(t, raster.U8, out.PixelType)
	assert.Equal(t, 16, out.Grid.Cells())
	f.assertNoResidue(t)
}

func TestOutputCodec(t *testing.T) {
	tests := []struct {
		suffix string
		want   string
	}{
		{"", raster.Native().Name()},
		{"_clip", raster.Native().Name()},
		{".tif", "TIFF"},
		{".PNG", "PNG"},
		{"_clip.asc", "ASCII"},
	}
	for _, tt := range tests {
		t.Run(tt.suffix, func(t *testing.T) {
			c, err := clip.OutputCodec(tt.suffix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}

	_, err := clip.OutputCodec(".xyz")
	assert.ErrorIs(t, err, raster.ErrUnsupportedFormat)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	_, err := f.run(t, ".tif", f.options())
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(f.output, "1.tif"))
	require.NoError(t, err)
	firstWorld, err := os.ReadFile(filepath.Join(f.output, "1.tfw"))
	require.NoError(t, err)

	_, err = f.run(t, ".tif", f.options())
	require.NoError(t, err)

	second, err := os.ReadFile(filepath.Join(f.output, "1.tif"))
	require.NoError(t, err)
	secondWorld, err := os.ReadFile(filepath.Join(f.output, "1.tfw"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstWorld, secondWorld)
	f.assertNoResidue(t)
}

func TestRun_NoOverwrite(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	_, err := f.run(t, ".tif", f.options())
	require.NoError(t, err)

	opts := f.options()
	opts.Overwrite = false
	summary, err := f.run(t, ".tif", opts)
	require.NoError(t, err)
	assert.Empty(t, summary.Outputs)
	require.Len(t, summary.Skipped, 3)
	assert.Equal(t, engine.ConversionFailed, summary.Skipped[0].Kind)
	f.assertNoResidue(t)
}

func TestRun_GridFormat(t *testing.T) {
	for _, tag := range []string{"GRID", ""} {
		t.Run("tag="+tag, func(t *testing.T) {
			f := newFixture(t, threeParcels, 1)
			summary, err := f.run(t, tag, f.options())
			require.NoError(t, err)

			dest := filepath.Join(f.output, "1")
			assert.Equal(t, dest, summary.Written()["1"])
			assert.DirExists(t, dest)
			out, err := raster.Open(dest)
			require.NoError(t, err)
			assert.Equal(t, raster.U8, out.PixelType)
			assert.Nil(t, out.NoData)
		})
	}
}

func TestRun_MultibandSource(t *testing.T) {
	f := newFixture(t, threeParcels, 3)
	opts := f.options()
	opts.Statistics = true
	summary, err := f.run(t, ".tif", opts)
	require.NoError(t, err)
	require.Len(t, summary.Outputs, 2)

	out, err := raster.Open(filepath.Join(f.output, "3.tif"))
	require.NoError(t, err)
	assert.Len(t, out.Bands, 3)
	assert.Equal(t, 1.0, out.Grid.CellHeight, "cell size comes from band 1")
	assert.FileExists(t, raster.StatsPath(filepath.Join(f.output, "3.tif")))
	f.assertNoResidue(t)
}

func TestRun_DuplicateIdentifiers(t *testing.T) {
	layer := collection(
		square(1, 1, 1, 3, 3),
		square(1.0, 6, 1, 8, 3),
		square(4, 10, 1, 12, 3),
	)

	t.Run("lenient rasterizes the union", func(t *testing.T) {
		f := newFixture(t, layer, 1)
		summary, err := f.run(t, ".tif", f.options())
		require.NoError(t, err)
		assert.Empty(t, summary.Skipped)
		assert.Len(t, summary.Outputs, 3)

		out, err := raster.Open(filepath.Join(f.output, "1.tif"))
		require.NoError(t, err)
		assert.Equal(t, 1.0, out.Grid.OriginX)
		assert.Equal(t, 7, out.Grid.Cols)
		f.assertNoResidue(t)
	})

	t.Run("strict skips duplicated records", func(t *testing.T) {
		f := newFixture(t, layer, 1)
		opts := f.options()
		opts.StrictIDs = true
		summary, err := f.run(t, ".tif", opts)
		require.NoError(t, err)
		require.Len(t, summary.Skipped, 2)
		for _, s := range summary.Skipped {
			assert.Equal(t, "1", s.ID)
			assert.Equal(t, engine.SelectionFailed, s.Kind)
		}
		assert.Equal(t, []string{"4"}, keys(summary.Written()))
		f.assertNoResidue(t)
	})
}

func TestRun_UnsafeIdentifier(t *testing.T) {
	f := newFixture(t, collection(square("a/b", 1, 1, 3, 3), square("ok", 6, 1, 8, 3)), 1)
	summary, err := f.run(t, ".tif", f.options())
	require.NoError(t, err)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, engine.SelectionFailed, summary.Skipped[0].Kind)
	assert.Equal(t, []string{"ok"}, keys(summary.Written()))
}

func TestRun_MissingField(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	params := f.params(".tif")
	params.IDField = "PARCEL"
	p, err := clip.New(params, f.options())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARCEL")
	f.assertNoResidue(t)
}

func TestRun_CapabilityUnavailable(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	ws, err := scratch.Open(f.scratch, engine.Delete)
	require.NoError(t, err)
	require.NoError(t, ws.Lock("other-run"))
	t.Cleanup(func() { _ = ws.Unlock() })

	summary, err := f.run(t, ".tif", f.options())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, engine.CapabilityUnavailable, engine.KindOf(err))
	assert.ErrorIs(t, err, engine.ErrCapabilityUnavailable)
	assert.True(t, engine.IsFatal(err))
	assert.NoDirExists(t, f.output)

	holder, err := ws.LockHolder()
	require.NoError(t, err)
	assert.Equal(t, "other-run", holder.RunID, "a failed check-out leaves the holder's lock alone")
}

func TestRun_InsufficientSpaceAborts(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	opts := f.options()
	opts.MinFreeMB = 1
	full := engine.WithDiskUsage(func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 0}, nil
	})

	summary, err := f.run(t, ".tif", opts, full)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInsufficientSpace)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Outputs)
	assert.Empty(t, summary.Skipped)
	f.assertNoResidue(t)
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	p, err := clip.New(f.params(".tif"), f.options())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	f.assertNoResidue(t)
}

func TestRun_CanceledAfterMaskIsWritten(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	p, err := clip.New(f.params(".tif"), f.options())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var maskWritten atomic.Bool
	hook := zerolog.HookFunc(func(_ *zerolog.Event, _ zerolog.Level, msg string) {
		if !strings.HasPrefix(msg, "Extracting to") {
			return
		}
		if _, statErr := os.Stat(filepath.Join(f.scratch, "mask1")); statErr == nil {
			maskWritten.Store(true)
		}
		cancel()
	})
	logger := zerolog.New(io.Discard).Level(zerolog.InfoLevel).Hook(hook)
	ctx = logger.WithContext(ctx)

	summary, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, engine.IsFatal(err))
	assert.True(t, maskWritten.Load(), "the mask exists when the run is aborted")

	require.NotNil(t, summary)
	assert.Empty(t, summary.Outputs)
	assert.Empty(t, summary.Skipped, "an abort is not a skip")
	assert.NoFileExists(t, filepath.Join(f.output, "1.tif"))
	f.assertNoResidue(t)
}

func TestRun_Workers(t *testing.T) {
	var features []string
	for i := range 8 {
		x := float64(i * 2)
		features = append(features, square(i+10, x, 1, x+1.5, 4))
	}
	f := newFixture(t, collection(features...), 1)

	var reports atomic.Int32
	opts := f.options()
	opts.Workers = 3
	opts.Progress = func(*batch.Progress) { reports.Add(1) }
	summary, err := f.run(t, ".tif", opts)
	require.NoError(t, err)
	assert.True(t, summary.Complete())
	assert.Len(t, summary.Outputs, 8)
	assert.Equal(t, int32(8), reports.Load())
	for i, o := range summary.Outputs {
		assert.Equal(t, i, o.Index, "outputs are reported in layer order")
		assert.FileExists(t, o.Path)
	}
	f.assertNoResidue(t)

	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "worker namespace %s left behind", e.Name())
	}
}

func TestRun_AuditLog(t *testing.T) {
	f := newFixture(t, threeParcels, 1)
	auditPath := filepath.Join(f.dir, "audit.jsonl")
	audit := logging.NewAuditLogger(logging.AuditLoggerConfig{Enabled: true, File: auditPath})
	ctx := logging.ContextWithTraceID(context.Background(), "01TESTTRACE")
	ctx = logging.ContextWithAuditLogger(ctx, audit)

	p, err := clip.New(f.params(".tif"), f.options())
	require.NoError(t, err)
	summary, err := p.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, audit.Close())
	assert.Equal(t, "01TESTTRACE", summary.RunID)

	file, err := os.Open(auditPath)
	require.NoError(t, err)
	defer file.Close()

	outcomes := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		assert.Equal(t, "01TESTTRACE", line["trace_id"])
		outcomes[line["record_id"].(string)] = line["outcome"].(string)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, map[string]string{
		"1": "written",
		"2": "MaskExtractionFailed",
		"3": "written",
	}, outcomes)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
