package raster

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// asciiCodec reads and writes single-band ESRI ASCII grids.
type asciiCodec struct{}

func (asciiCodec) Name() string { return "ASCII" }

func (asciiCodec) Files(path string) []string { return []string{path} }

func (asciiCodec) Read(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ASCII grid: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	hdr := map[string]float64{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, numErr := strconv.ParseFloat(key, 64); numErr == nil {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%s: header key %q has no value", path, key)
		}
		v, parseErr := strconv.ParseFloat(sc.Text(), 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%s: header %s: %w", path, key, parseErr)
		}
		hdr[key] = v
	}

	g := Grid{Cols: int(hdr["ncols"]), Rows: int(hdr["nrows"])}
	if cs, ok := hdr["cellsize"]; ok {
		g.CellWidth, g.CellHeight = cs, cs
	} else {
		g.CellWidth, g.CellHeight = hdr["dx"], hdr["dy"]
	}
	if x, ok := hdr["xllcenter"]; ok {
		g.OriginX = x - g.CellWidth/2
	} else {
		g.OriginX = hdr["xllcorner"]
	}
	if y, ok := hdr["yllcenter"]; ok {
		g.OriginY = y - g.CellHeight/2 + float64(g.Rows)*g.CellHeight
	} else {
		g.OriginY = hdr["yllcorner"] + float64(g.Rows)*g.CellHeight
	}

	r, err := New(g, 1, S32)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if nd, ok := hdr["nodata_value"]; ok {
		r.SetNoData(nd)
	}

	values := r.Bands[0].Values
	integral := true
	for i := range values {
		var tok string
		switch {
		case i == 0 && first != "":
			tok = first
		case sc.Scan():
			tok = sc.Text()
		default:
			return nil, fmt.Errorf("%s: %w: got %d of %d values", path, ErrBandMismatch, i, len(values))
		}
		v, parseErr := strconv.ParseFloat(tok, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%s: value %d: %w", path, i, parseErr)
		}
		if v != math.Trunc(v) {
			integral = false
		}
		values[i] = v
	}
	if err = sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ASCII grid: %w", err)
	}
	if !integral {
		r.PixelType = F64
	}
	return r, nil
}

func (asciiCodec) Write(path string, r *Raster, _ WriteOptions) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if len(r.Bands) != 1 {
		return fmt.Errorf("%w: ASCII grid holds one band, got %d", ErrUnsupportedLayout, len(r.Bands))
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	g := r.Grid
	var sb strings.Builder
	fmt.Fprintf(&sb, "ncols %d\nnrows %d\n", g.Cols, g.Rows)
	fmt.Fprintf(&sb, "xllcorner %s\nyllcorner %s\n", formatCoef(g.OriginX), formatCoef(g.Bound().Min[1]))
	if nearlyEqual(g.CellWidth, g.CellHeight) {
		fmt.Fprintf(&sb, "cellsize %s\n", formatCoef(g.CellWidth))
	} else {
		fmt.Fprintf(&sb, "dx %s\ndy %s\n", formatCoef(g.CellWidth), formatCoef(g.CellHeight))
	}
	if r.NoData != nil {
		fmt.Fprintf(&sb, "NODATA_value %s\n", formatCoef(*r.NoData))
	}
	for row := range g.Rows {
		for col := range g.Cols {
			if col > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(formatCoef(r.PixelType.Clamp(r.At(0, col, row))))
		}
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), filePerm); err != nil {
		return fmt.Errorf("writing ASCII grid: %w", err)
	}
	return nil
}
