package clip

import (
	"sort"
	"sync"
	"time"

	"github.com/rshade/rasterclip/internal/engine"
)

// Output is a raster written for one record.
type Output struct {
	Index int
	ID    string
	Path  string
}

// Skip is a record that produced no output.
type Skip struct {
	Index   int
	ID      string
	Kind    engine.Kind
	Message string
	Hint    string
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID   string
	Total   int
	Outputs []Output
	Skipped []Skip
	Elapsed time.Duration

	mu sync.Mutex
}

// Complete reports whether every record was written.
func (s *Summary) Complete() bool {
	return len(s.Skipped) == 0 && len(s.Outputs) == s.Total
}

// Written returns the output paths keyed by identifier.
func (s *Summary) Written() map[string]string {
	out := make(map[string]string, len(s.Outputs))
	for _, o := range s.Outputs {
		out[o.ID] = o.Path
	}
	return out
}

func (s *Summary) addOutput(o Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outputs = append(s.Outputs, o)
}

func (s *Summary) addSkip(sk Skip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped = append(s.Skipped, sk)
}

// sortByIndex orders outputs and skips by record position.
func (s *Summary) sortByIndex() {
	sort.SliceStable(s.Outputs, func(i, j int) bool { return s.Outputs[i].Index < s.Outputs[j].Index })
	sort.SliceStable(s.Skipped, func(i, j int) bool { return s.Skipped[i].Index < s.Skipped[j].Index })
}
