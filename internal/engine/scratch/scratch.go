// Package scratch manages the transient workspace that holds per-record
// intermediates.
//
// Scratch names are deterministic (extract<id>.geojson, mask<id>, r<id>) so
// that a re-run reuses the same paths. Callers must release every acquired
// handle set before the next record; parallel callers each take their own
// namespace so that names never collide.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	dirPerm         = 0o750
	namespacePrefix = "w"
)

// DeleteFunc removes one intermediate dataset. Missing datasets must not be
// reported as errors.
type DeleteFunc func(path string) error

// Workspace is a scratch directory, or a namespace inside one.
type Workspace struct {
	dir    string
	root   *Workspace
	delete DeleteFunc
}

// Handles are the paths of the three intermediates of one record.
type Handles struct {
	ID      string
	Feature string
	Mask    string
	Clip    string
}

// Paths returns the handle paths in release order.
func (h Handles) Paths() []string {
	return []string{h.Feature, h.Mask, h.Clip}
}

// Open creates dir if needed and returns a workspace that releases handles
// through del.
func Open(dir string, del DeleteFunc) (*Workspace, error) {
	if dir == "" {
		return nil, errors.New("scratch directory cannot be empty")
	}
	if del == nil {
		return nil, errors.New("scratch delete func cannot be nil")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving scratch directory: %w", err)
	}
	if err = os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Workspace{dir: abs, delete: del}, nil
}

// Dir returns the absolute directory of the workspace.
func (w *Workspace) Dir() string {
	return w.dir
}

// Namespace returns the private sub-workspace of worker slot n.
func (w *Workspace) Namespace(n int) (*Workspace, error) {
	dir := filepath.Join(w.dir, fmt.Sprintf("%s%d", namespacePrefix, n))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating scratch namespace: %w", err)
	}
	return &Workspace{dir: dir, root: w.rootWorkspace(), delete: w.delete}, nil
}

func (w *Workspace) rootWorkspace() *Workspace {
	if w.root != nil {
		return w.root
	}
	return w
}

// Acquire returns the intermediate paths for record id and a release func
// that deletes all three, reporting every failure.
func (w *Workspace) Acquire(id string) (Handles, func() error) {
	h := Handles{
		ID:      id,
		Feature: filepath.Join(w.dir, "extract"+id+".geojson"),
		Mask:    filepath.Join(w.dir, "mask"+id),
		Clip:    filepath.Join(w.dir, "r"+id),
	}
	release := func() error {
		var errs []error
		for _, p := range h.Paths() {
			if err := w.delete(p); err != nil {
				errs = append(errs, fmt.Errorf("deleting %s: %w", filepath.Base(p), err))
			}
		}
		return errors.Join(errs...)
	}
	return h, release
}

// Residue lists leftover intermediates relative to the workspace root. The
// lock file and empty namespace directories are not residue.
func (w *Workspace) Residue() ([]string, error) {
	var out []string
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == w.dir {
			return nil
		}
		rel, relErr := filepath.Rel(w.dir, path)
		if relErr != nil {
			return relErr
		}
		if rel == LockFile {
			return nil
		}
		if d.IsDir() && w.isNamespace(rel) {
			return nil
		}
		out = append(out, rel)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning scratch directory: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Prune removes empty namespace directories.
func (w *Workspace) Prune() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading scratch directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || !w.isNamespace(e.Name()) {
			continue
		}
		// os.Remove refuses non-empty directories, which is what we want.
		if rmErr := os.Remove(filepath.Join(w.dir, e.Name())); rmErr != nil && !isNotEmpty(rmErr) {
			return rmErr
		}
	}
	return nil
}

func (w *Workspace) isNamespace(rel string) bool {
	if w.root != nil || strings.ContainsRune(rel, filepath.Separator) {
		return false
	}
	rest, ok := strings.CutPrefix(rel, namespacePrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isNotEmpty(err error) bool {
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		return false
	}
	entries, readErr := os.ReadDir(pe.Path)
	return readErr == nil && len(entries) > 0
}
