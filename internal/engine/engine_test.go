package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/rasterclip/internal/engine/scratch"
	"github.com/rshade/rasterclip/internal/raster"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	ws, err := scratch.Open(filepath.Join(t.TempDir(), "scratch"), Delete)
	require.NoError(t, err)
	return New(ws, "test-run", opts...)
}

func TestCheckOut(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	assert.True(t, e.CheckExtension())

	require.NoError(t, e.CheckOut(ctx))
	assert.False(t, e.CheckExtension())

	other := New(e.Workspace(), "second-run")
	err := other.CheckOut(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.ErrorIs(t, err, scratch.ErrLocked)
	assert.Contains(t, Hints(err), "--scratch-dir")

	require.NoError(t, e.CheckIn())
	require.NoError(t, other.CheckOut(ctx))
	require.NoError(t, other.CheckIn())
}

func TestCheckOut_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, newTestEngine(t).CheckOut(ctx), context.Canceled)
}

func TestEnsureFreeSpace(t *testing.T) {
	free := uint64(10 * bytesPerMB)
	e := newTestEngine(t, WithDiskUsage(func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: free}, nil
	}))

	assert.NoError(t, e.EnsureFreeSpace("/scratch", 0))
	assert.NoError(t, e.EnsureFreeSpace("/scratch", 10))

	err := e.EnsureFreeSpace("/scratch", 11)
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.True(t, IsFatal(err))
	assert.NotEmpty(t, Hints(err))
}

func TestDescribe_Raster(t *testing.T) {
	dir := t.TempDir()
	single := writeRaster(t, filepath.Join(dir, "single.tif"), sourceGrid(), 1, raster.U8)
	multi := writeRaster(t, filepath.Join(dir, "multi.tif"), sourceGrid(), 3, raster.U8)

	d, err := Describe(single)
	require.NoError(t, err)
	assert.Equal(t, RasterDataset, d.Type)
	assert.Equal(t, "TIFF", d.Format)
	assert.Equal(t, 1, d.BandCount)
	assert.Equal(t, 1.0, d.MeanCellHeight)
	cs, err := SourceCellSize(d)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cs)

	d, err = Describe(multi)
	require.NoError(t, err)
	assert.Equal(t, 3, d.BandCount)
	assert.Zero(t, d.MeanCellHeight, "undefined at dataset level for multiband")
	require.Len(t, d.Bands, 3)
	cs, err = SourceCellSize(d)
	require.NoError(t, err)
	assert.Equal(t, d.Bands[0].MeanCellHeight, cs)

	_, err = SourceCellSize(&Description{Path: "x"})
	assert.ErrorIs(t, err, ErrInvalidEnv)
}

func TestDescribe_Vector(t *testing.T) {
	path := writeFeatures(t, threeParcels)
	d, err := Describe(path)
	require.NoError(t, err)
	assert.Equal(t, FeatureClass, d.Type)
	assert.Equal(t, 3, d.FeatureCount)
	assert.Equal(t, []string{"PID", "zone"}, d.Fields)
	assert.Equal(t, 0.0, d.Extent.Min[0])
	assert.Equal(t, 30.0, d.Extent.Max[0])
}

func TestDescribe_Missing(t *testing.T) {
	_, err := Describe(filepath.Join(t.TempDir(), "nope.tif"))
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	grid := writeRaster(t, filepath.Join(dir, "mask1"), sourceGrid(), 1, raster.U8)
	tif := writeRaster(t, filepath.Join(dir, "1.tif"), sourceGrid(), 1, raster.U8)
	feat := writeFeatures(t, threeParcels)

	for _, p := range []string{grid, tif, feat} {
		require.NoError(t, Delete(p))
		require.NoError(t, Delete(p), "second delete is a no-op")
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoFileExists(t, feat)
}
