// Package vector loads polygon layers and selects records from them by
// identifier.
package vector

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Common layer errors.
var (
	ErrNotPolygon     = errors.New("feature geometry is not a polygon")
	ErrMissingField   = errors.New("identifier field missing")
	ErrEmptyLayer     = errors.New("layer has no features")
	ErrUnsafeID       = errors.New("identifier is not usable as a file name")
	ErrUnsupportedID  = errors.New("identifier value type not supported")
	ErrNotFeatureData = errors.New("not a GeoJSON Feature or FeatureCollection")
)

// Feature is one polygon record of a layer.
type Feature struct {
	// Index is the feature's position in the source layer.
	Index      int
	Properties map[string]any
	Geometry   orb.Geometry
}

// Layer is an ordered collection of polygon features.
type Layer struct {
	Name     string
	Features []Feature
}

// Load reads a GeoJSON FeatureCollection (or a single Feature) and checks
// that every geometry is a Polygon or MultiPolygon.
func Load(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layer: %w", err)
	}

	var raw []*geojson.Feature
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err == nil && fc.Type == "FeatureCollection" {
		raw = fc.Features
	} else {
		f, featErr := geojson.UnmarshalFeature(data)
		if featErr != nil || f.Type != "Feature" {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFeatureData)
		}
		raw = []*geojson.Feature{f}
	}

	layer := &Layer{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	for i, f := range raw {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("%s feature %d: %w (got %s)", path, i, ErrNotPolygon, geometryType(f.Geometry))
		}
		layer.Features = append(layer.Features, Feature{
			Index:      i,
			Properties: map[string]any(f.Properties),
			Geometry:   f.Geometry,
		})
	}
	return layer, nil
}

// Save writes the layer as a GeoJSON FeatureCollection.
func Save(layer *Layer, path string) error {
	fc := geojson.NewFeatureCollection()
	for _, f := range layer.Features {
		gf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding layer: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing layer: %w", err)
	}
	return nil
}

// Bound returns the union of all feature bounds. The zero bound is returned
// for an empty layer.
func (l *Layer) Bound() orb.Bound {
	if len(l.Features) == 0 {
		return orb.Bound{}
	}
	b := l.Features[0].Geometry.Bound()
	for _, f := range l.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// Len returns the number of features.
func (l *Layer) Len() int {
	return len(l.Features)
}

// MultiPolygon merges every feature geometry into one multipolygon.
func (l *Layer) MultiPolygon() orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, f := range l.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		}
	}
	return mp
}

// HasField reports whether at least one feature carries field.
func (l *Layer) HasField(field string) bool {
	for _, f := range l.Features {
		if _, ok := f.Properties[field]; ok {
			return true
		}
	}
	return false
}

// IdentifierOf returns the string form of a feature's identifier field.
// Integral numbers drop the decimal point so that 1 and 1.0 both give "1".
func IdentifierOf(f Feature, field string) (string, error) {
	v, ok := f.Properties[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: feature %d has no %q", ErrMissingField, f.Index, field)
	}
	return stringify(v)
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedID, v)
	}
}

// Identifiers returns the identifier of every feature in layer order.
func Identifiers(l *Layer, field string) ([]string, error) {
	ids := make([]string, 0, len(l.Features))
	for _, f := range l.Features {
		id, err := IdentifierOf(f, field)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Duplicates returns identifiers shared by more than one feature, with their
// counts.
func Duplicates(l *Layer, field string) (map[string]int, error) {
	ids, err := Identifiers(l, field)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	dups := map[string]int{}
	for id, n := range counts {
		if n > 1 {
			dups[id] = n
		}
	}
	return dups, nil
}

// ValidateIdentifier rejects identifiers that cannot be used verbatim as an
// output file name fragment.
func ValidateIdentifier(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrUnsafeID)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrUnsafeID, id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrUnsafeID, id)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrUnsafeID, id)
		}
	}
	return nil
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
