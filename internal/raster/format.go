package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteOptions are write-time hints passed to a codec.
type WriteOptions struct {
	// Overviews requests reduced-resolution levels where the format supports them.
	Overviews bool
}

// Codec reads and writes one raster file format.
type Codec interface {
	// Name is a short human-readable format name.
	Name() string
	// Read decodes the dataset at path.
	Read(path string) (*Raster, error)
	// Write encodes r to path, replacing any existing dataset.
	Write(path string, r *Raster, opts WriteOptions) error
	// Files lists every file or directory that makes up the dataset at path.
	Files(path string) []string
}

// statsSuffix is appended to a dataset path to name its statistics sidecar.
const statsSuffix = ".stats.yaml"

//nolint:gochecknoglobals // Registry of built-in codecs, populated at init.
var codecs = map[string]Codec{}

func register(suffix string, c Codec) {
	codecs[suffix] = c
}

//nolint:gochecknoinits // codecs register themselves once
func init() {
	register("", nativeCodec{})
	register(".asc", asciiCodec{})
	for _, s := range []string{".tif", ".tiff", ".png", ".jpg", ".jpeg", ".bmp"} {
		register(s, imageCodec{suffix: s})
	}
}

// Lookup returns the codec for an output suffix. The empty suffix selects the
// native GRID format.
func Lookup(suffix string) (Codec, error) {
	c, ok := codecs[strings.ToLower(suffix)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, suffix, strings.Join(Suffixes(), ", "))
	}
	return c, nil
}

// Suffixes lists the registered suffixes in sorted order, with the native
// format shown as GRID.
func Suffixes() []string {
	out := make([]string, 0, len(codecs))
	for s := range codecs {
		if s == "" {
			s = "GRID"
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ForPath picks a codec for an existing or future dataset. A directory
// holding a native header is always native GRID; otherwise the extension
// decides, and a path without a registered extension is native GRID.
func ForPath(path string) Codec {
	if isNativeDataset(path) {
		return nativeCodec{}
	}
	if c, ok := codecs[strings.ToLower(filepath.Ext(path))]; ok {
		return c
	}
	return nativeCodec{}
}

// Native returns the codec of the native grid format.
func Native() Codec {
	return nativeCodec{}
}

// Open reads the raster dataset at path.
func Open(path string) (*Raster, error) {
	return ForPath(path).Read(path)
}

// Exists reports whether any file of the dataset at path exists.
func Exists(path string, c Codec) bool {
	for _, f := range c.Files(path) {
		if _, err := os.Stat(f); err == nil {
			return true
		}
	}
	return false
}

// Remove deletes every file of the dataset at path, including the
// statistics sidecar. Missing files are not an error.
func Remove(path string, c Codec) error {
	var errs []error
	files := append(c.Files(path), path+statsSuffix)
	for _, f := range files {
		if err := os.RemoveAll(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StatsPath returns the statistics sidecar path of a dataset.
func StatsPath(path string) string {
	return path + statsSuffix
}
