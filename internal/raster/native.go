package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Native GRID layout constants.
const (
	nativeHeaderFile = "hdr.yaml"
	// NativeFormatVersion is written into every native header.
	NativeFormatVersion = "1.1.0"
	// nativeVersionConstraint is the range of header versions this reader accepts.
	nativeVersionConstraint = "^1"
	maxOverviewLevels       = 4
	dirPerm                 = 0o750
	filePerm                = 0o600
)

// ErrIncompatibleVersion indicates a native header outside the supported range.
var ErrIncompatibleVersion = errors.New("incompatible native grid version")

type nativeHeader struct {
	FormatVersion string   `yaml:"format_version"`
	Grid          Grid     `yaml:",inline"`
	Bands         int      `yaml:"bands"`
	PixelType     string   `yaml:"pixel_type"`
	NoData        *float64 `yaml:"nodata,omitempty"`
	ByteOrder     string   `yaml:"byte_order"`
	Overviews     []int    `yaml:"overviews,omitempty"`
}

// nativeCodec stores a raster as a directory: hdr.yaml plus one
// little-endian plane per band.
type nativeCodec struct{}

func (nativeCodec) Name() string { return "GRID" }

func (nativeCodec) Files(path string) []string { return []string{path} }

func isNativeDataset(path string) bool {
	info, err := os.Stat(filepath.Join(path, nativeHeaderFile))
	return err == nil && info.Mode().IsRegular()
}

func bandFile(dir string, band int) string {
	return filepath.Join(dir, fmt.Sprintf("band_%d.bin", band+1))
}

func overviewFile(dir string, level, band int) string {
	return filepath.Join(dir, fmt.Sprintf("overview_%d_b%d.bin", level, band+1))
}

func (nativeCodec) Read(path string) (*Raster, error) {
	data, err := os.ReadFile(filepath.Join(path, nativeHeaderFile))
	if err != nil {
		return nil, fmt.Errorf("reading grid header: %w", err)
	}
	var hdr nativeHeader
	if err = yaml.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("parsing grid header %s: %w", path, err)
	}
	if err = checkNativeVersion(hdr.FormatVersion); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pt, err := ParsePixelType(hdr.PixelType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r, err := New(hdr.Grid, hdr.Bands, pt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.NoData = hdr.NoData

	for b := range r.Bands {
		raw, readErr := os.ReadFile(bandFile(path, b))
		if readErr != nil {
			return nil, fmt.Errorf("reading band %d: %w", b+1, readErr)
		}
		if decodeErr := decodeSamples(raw, pt, r.Bands[b].Values); decodeErr != nil {
			return nil, fmt.Errorf("%s band %d: %w", path, b+1, decodeErr)
		}
	}
	return r, nil
}

func checkNativeVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: missing format_version", ErrIncompatibleVersion)
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrIncompatibleVersion, v, err)
	}
	constraint, err := semver.NewConstraint(nativeVersionConstraint)
	if err != nil {
		return err
	}
	if !constraint.Check(ver) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleVersion, v, nativeVersionConstraint)
	}
	return nil
}

func (nativeCodec) Write(path string, r *Raster, opts WriteOptions) error {
	if err := r.Validate(); err != nil {
		return err
	}
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, dirPerm); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	hdr := nativeHeader{
		FormatVersion: NativeFormatVersion,
		Grid:          r.Grid,
		Bands:         len(r.Bands),
		PixelType:     r.PixelType.String(),
		NoData:        r.NoData,
		ByteOrder:     "little",
	}
	for b, band := range r.Bands {
		if err = os.WriteFile(bandFile(tmp, b), encodeSamples(band.Values, r.PixelType), filePerm); err != nil {
			return fmt.Errorf("writing band %d: %w", b+1, err)
		}
	}
	if opts.Overviews {
		if hdr.Overviews, err = writeOverviews(tmp, r); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(&hdr)
	if err != nil {
		return fmt.Errorf("encoding grid header: %w", err)
	}
	if err = os.WriteFile(filepath.Join(tmp, nativeHeaderFile), data, filePerm); err != nil {
		return fmt.Errorf("writing grid header: %w", err)
	}

	if err = os.RemoveAll(path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// writeOverviews writes power-of-two decimated copies of every band and
// returns the levels written.
func writeOverviews(dir string, r *Raster) ([]int, error) {
	var levels []int
	for i, level := 0, 2; i < maxOverviewLevels; i, level = i+1, level*2 {
		if r.Grid.Cols < level || r.Grid.Rows < level {
			break
		}
		cols := (r.Grid.Cols + level - 1) / level
		rows := (r.Grid.Rows + level - 1) / level
		for b, band := range r.Bands {
			out := make([]float64, 0, cols*rows)
			for row := range rows {
				srcRow := min(row*level+level/2, r.Grid.Rows-1)
				for col := range cols {
					srcCol := min(col*level+level/2, r.Grid.Cols-1)
					out = append(out, band.Values[r.Grid.Index(srcCol, srcRow)])
				}
			}
			if err := os.WriteFile(overviewFile(dir, level, b), encodeSamples(out, r.PixelType), filePerm); err != nil {
				return nil, fmt.Errorf("writing overview %d band %d: %w", level, b+1, err)
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func encodeSamples(values []float64, pt PixelType) []byte {
	size := pt.Bits() / 8
	buf := make([]byte, len(values)*size)
	le := binary.LittleEndian
	for i, v := range values {
		v = pt.Clamp(v)
		off := i * size
		switch pt {
		case U8:
			buf[off] = uint8(v)
		case U16:
			le.PutUint16(buf[off:], uint16(v))
		case S16:
			le.PutUint16(buf[off:], uint16(int16(v)))
		case U32:
			le.PutUint32(buf[off:], uint32(v))
		case S32:
			le.PutUint32(buf[off:], uint32(int32(v)))
		case F32:
			le.PutUint32(buf[off:], math.Float32bits(float32(v)))
		case F64:
			le.PutUint64(buf[off:], math.Float64bits(v))
		}
	}
	return buf
}

func decodeSamples(raw []byte, pt PixelType, dst []float64) error {
	size := pt.Bits() / 8
	if len(raw) != len(dst)*size {
		return fmt.Errorf("%w: %d bytes for %d %s samples", ErrBandMismatch, len(raw), len(dst), pt)
	}
	le := binary.LittleEndian
	for i := range dst {
		off := i * size
		switch pt {
		case U8:
			dst[i] = float64(raw[off])
		case U16:
			dst[i] = float64(le.Uint16(raw[off:]))
		case S16:
			dst[i] = float64(int16(le.Uint16(raw[off:])))
		case U32:
			dst[i] = float64(le.Uint32(raw[off:]))
		case S32:
			dst[i] = float64(int32(le.Uint32(raw[off:])))
		case F32:
			dst[i] = float64(math.Float32frombits(le.Uint32(raw[off:])))
		case F64:
			dst[i] = math.Float64frombits(le.Uint64(raw[off:]))
		}
	}
	return nil
}
