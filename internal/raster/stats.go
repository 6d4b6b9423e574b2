package raster

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// BandStats summarises the data cells of one band.
type BandStats struct {
	Band   int     `yaml:"band"`
	Count  int     `yaml:"count"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
}

// Statistics computes per-band statistics, ignoring NoData cells.
func Statistics(r *Raster) []BandStats {
	out := make([]BandStats, len(r.Bands))
	for i, band := range r.Bands {
		s := BandStats{Band: i + 1, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum, sumSq float64
		for _, v := range band.Values {
			if r.IsNoData(v) {
				continue
			}
			s.Count++
			sum += v
			sumSq += v * v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		if s.Count == 0 {
			s.Min, s.Max = 0, 0
		} else {
			n := float64(s.Count)
			s.Mean = sum / n
			s.StdDev = math.Sqrt(math.Max(0, sumSq/n-s.Mean*s.Mean))
		}
		out[i] = s
	}
	return out
}

// WriteStatistics computes statistics for r and writes them next to the
// dataset at path.
func WriteStatistics(path string, r *Raster) error {
	data, err := yaml.Marshal(map[string]any{"bands": Statistics(r)})
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}
	if err = os.WriteFile(StatsPath(path), data, filePerm); err != nil {
		return fmt.Errorf("writing statistics: %w", err)
	}
	return nil
}
