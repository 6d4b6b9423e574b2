package engine

import (
	"context"
	"fmt"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Sentinel errors returned by engine operations.
var (
	ErrCapabilityUnavailable = errors.New("raster capability is unavailable")
	ErrEmptySelection        = errors.New("selection matched no features")
	ErrNoOverlap             = errors.New("mask does not overlap source raster data")
	ErrInsufficientSpace     = errors.New("insufficient scratch space")
	ErrDatasetExists         = errors.New("output dataset exists and overwrite is disabled")
	ErrInvalidEnv            = errors.New("invalid engine environment")
	ErrUnknownDataset        = errors.New("unrecognised dataset")
)

// Kind classifies a per-record failure by the step that produced it.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	CapabilityUnavailable
	SelectionFailed
	RasterizationFailed
	MaskExtractionFailed
	ConversionFailed
	CleanupFailed
)

//nolint:gochecknoglobals // Compile-time constant lookup table.
var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	CapabilityUnavailable: "CapabilityUnavailable",
	SelectionFailed:       "SelectionFailed",
	RasterizationFailed:   "RasterizationFailed",
	MaskExtractionFailed:  "MaskExtractionFailed",
	ConversionFailed:      "ConversionFailed",
	CleanupFailed:         "CleanupFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether a failure of this kind aborts the whole run.
// Capability loss and cleanup failures are fatal: the first leaves nothing to
// run, the second lets scratch space grow without bound. Every other kind
// skips the record.
func (k Kind) Fatal() bool {
	return k == CapabilityUnavailable || k == CleanupFailed || k == KindUnknown
}

// KindError ties a failure to its kind and record identifier.
type KindError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *KindError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s for record %s: %v", e.Kind, e.ID, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// Fail wraps err with a kind and record identifier. A nil err stays nil.
func Fail(kind Kind, id string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, ID: id, Err: err}
}

// KindOf returns the kind attached to err, or KindUnknown.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the run rather than skip a record:
// fatal kinds, exhausted disk space and cancellation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrInsufficientSpace) || errors.Is(err, syscall.ENOSPC) {
		return true
	}
	return KindOf(err).Fatal()
}

// Hints returns the user-facing hints attached anywhere in err's chain.
func Hints(err error) string {
	return errors.FlattenHints(err)
}
