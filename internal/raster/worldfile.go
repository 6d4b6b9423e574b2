package raster

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// worldFileLines is the number of coefficients in a world file.
const worldFileLines = 6

// WorldFilePath returns the world file sidecar path for an image path:
// the first and last letters of the extension followed by "w" (.tif -> .tfw).
func WorldFilePath(path string) string {
	ext := filepath.Ext(path)
	if len(ext) < 3 {
		return path + "w"
	}
	return strings.TrimSuffix(path, ext) + "." + ext[1:2] + ext[len(ext)-1:] + "w"
}

// WriteWorldFile writes the six affine coefficients of g. C and F locate the
// centre of the top-left cell.
func WriteWorldFile(path string, g Grid) error {
	content := strings.Join([]string{
		formatCoef(g.CellWidth),
		"0",
		"0",
		formatCoef(-g.CellHeight),
		formatCoef(g.OriginX + g.CellWidth/2),
		formatCoef(g.OriginY - g.CellHeight/2),
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("writing world file: %w", err)
	}
	return nil
}

// ReadWorldFile reads a north-up world file and returns a grid with the given
// dimensions.
func ReadWorldFile(path string, cols, rows int) (Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Grid{}, fmt.Errorf("%w: %s not found", ErrMissingGeoreference, filepath.Base(path))
		}
		return Grid{}, fmt.Errorf("opening world file: %w", err)
	}
	defer f.Close()

	var coef []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, parseErr := strconv.ParseFloat(line, 64)
		if parseErr != nil {
			return Grid{}, fmt.Errorf("world file %s line %d: %w", path, len(coef)+1, parseErr)
		}
		coef = append(coef, v)
	}
	if err = sc.Err(); err != nil {
		return Grid{}, fmt.Errorf("reading world file: %w", err)
	}
	if len(coef) != worldFileLines {
		return Grid{}, fmt.Errorf("%w: world file %s has %d coefficients", ErrInvalidGrid, path, len(coef))
	}
	if coef[1] != 0 || coef[2] != 0 {
		return Grid{}, fmt.Errorf("%w: rotated world file %s", ErrInvalidGrid, path)
	}
	g := Grid{
		CellWidth:  coef[0],
		CellHeight: -coef[3],
		Cols:       cols,
		Rows:       rows,
	}
	g.OriginX = coef[4] - g.CellWidth/2
	g.OriginY = coef[5] + g.CellHeight/2
	return g, g.Validate()
}

func formatCoef(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
