package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"gopkg.in/yaml.v3"
)

// LockFile is the name of the workspace lock inside the scratch root.
const LockFile = ".rasterclip.lock"

// lockWriteGrace is how long a lock without a readable holder is taken to be
// mid-write by its creator rather than abandoned.
const lockWriteGrace = 30 * time.Second

// ErrLocked indicates another live process holds the workspace lock.
var ErrLocked = errors.New("scratch workspace is locked")

// LockInfo identifies the holder of a workspace lock.
type LockInfo struct {
	PID   int32  `yaml:"pid"`
	RunID string `yaml:"run_id"`
}

// LockPath returns the path of the workspace lock file.
func (w *Workspace) LockPath() string {
	return filepath.Join(w.rootWorkspace().dir, LockFile)
}

// Lock takes the exclusive workspace lock for runID. A lock left behind by a
// process that no longer exists is broken and retaken. A lock whose holder
// cannot be read yet is held until it is older than lockWriteGrace.
func (w *Workspace) Lock(runID string) error {
	info := LockInfo{PID: int32(os.Getpid()), RunID: runID} //nolint:gosec // PIDs fit in int32
	data, err := yaml.Marshal(&info)
	if err != nil {
		return fmt.Errorf("encoding lock: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, openErr := os.OpenFile(w.LockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if openErr == nil {
			_, writeErr := f.Write(data)
			closeErr := f.Close()
			if writeErr != nil || closeErr != nil {
				_ = os.Remove(w.LockPath())
				return fmt.Errorf("writing lock: %w", errors.Join(writeErr, closeErr))
			}
			return nil
		}
		if !errors.Is(openErr, os.ErrExist) {
			return fmt.Errorf("creating lock: %w", openErr)
		}

		holder, readErr := w.LockHolder()
		if errors.Is(readErr, os.ErrNotExist) {
			continue
		}
		if readErr != nil || holder.PID <= 0 {
			if w.lockAge() < lockWriteGrace {
				return fmt.Errorf("%w: lock is being written", ErrLocked)
			}
		} else if holderAlive(holder) {
			return fmt.Errorf("%w by pid %d (run %s)", ErrLocked, holder.PID, holder.RunID)
		}
		if rmErr := os.Remove(w.LockPath()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("breaking stale lock: %w", rmErr)
		}
	}
	return fmt.Errorf("%w: lock contended", ErrLocked)
}

// Unlock releases the workspace lock. Releasing a lock that is not held is
// not an error.
func (w *Workspace) Unlock() error {
	if err := os.Remove(w.LockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock: %w", err)
	}
	return nil
}

// LockHolder reads the current lock file.
func (w *Workspace) LockHolder() (LockInfo, error) {
	var info LockInfo
	data, err := os.ReadFile(w.LockPath())
	if err != nil {
		return info, err
	}
	if err = yaml.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("parsing lock: %w", err)
	}
	return info, nil
}

// Locked reports whether a live process holds the lock, or a lock is still
// being written.
func (w *Workspace) Locked() bool {
	holder, err := w.LockHolder()
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil || holder.PID <= 0 {
		return w.lockAge() < lockWriteGrace
	}
	return holderAlive(holder)
}

// lockAge returns how long ago the lock file was last modified, or zero when
// it cannot be stat'ed.
func (w *Workspace) lockAge() time.Duration {
	info, err := os.Stat(w.LockPath())
	if err != nil {
		return 0
	}
	return time.Since(info.ModTime())
}

func holderAlive(info LockInfo) bool {
	if info.PID <= 0 {
		return false
	}
	alive, err := process.PidExists(info.PID)
	// When liveness cannot be determined the lock is respected.
	return err != nil || alive
}
