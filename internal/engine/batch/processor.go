package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Worker limits.
const (
	// MinWorkers is the smallest usable worker count.
	MinWorkers = 1

	// MaxWorkers caps parallel record processing.
	MaxWorkers = 64
)

// Common batch processing errors.
var (
	ErrInvalidWorkers = errors.New("workers must be between 1 and 64")
	ErrNilCallback    = errors.New("batch callback cannot be nil")
	ErrEmptyItems     = errors.New("items slice cannot be empty")
)

// ItemCallback processes one item. index is the item's position in the input
// and slot identifies the worker running it (always 0 when sequential). Slots
// are never shared by two running callbacks.
type ItemCallback[T any] func(ctx context.Context, item T, index, slot int) error

// ProgressCallback is an optional callback invoked after each item is processed.
// It receives progress information for UI updates or logging.
type ProgressCallback func(progress *Progress)

// SkipPolicy reports whether an item error is recoverable. Recoverable errors
// are counted as failed items and processing continues.
type SkipPolicy func(err error) bool

// Processor runs a callback over a list of items, sequentially or with a
// bounded number of workers.
type Processor[T any] struct {
	// onProgress is an optional callback for progress updates.
	onProgress ProgressCallback

	// skip classifies item errors. nil stops on every error.
	skip SkipPolicy
}

// NewProcessor creates a new processor.
func NewProcessor[T any]() *Processor[T] {
	return &Processor[T]{}
}

// WithProgressCallback sets a progress callback for the processor.
func (p *Processor[T]) WithProgressCallback(callback ProgressCallback) *Processor[T] {
	p.onProgress = callback
	return p
}

// WithSkipPolicy sets the policy deciding which item errors are skipped.
func (p *Processor[T]) WithSkipPolicy(skip SkipPolicy) *Processor[T] {
	p.skip = skip
	return p
}

// Process runs callback over items in order on slot 0. It stops on the first
// error the skip policy does not accept, and on context cancellation between
// items.
func (p *Processor[T]) Process(ctx context.Context, items []T, callback ItemCallback[T]) (*Progress, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	if callback == nil {
		return nil, ErrNilCallback
	}

	progress := NewProgress(len(items))

	for index, item := range items {
		select {
		case <-ctx.Done():
			return progress, ctx.Err()
		default:
		}

		if err := p.run(ctx, progress, callback, item, index, 0); err != nil {
			return progress, err
		}
	}

	return progress, nil
}

// ProcessConcurrent runs callback over items with at most workers callbacks in
// flight. Items start in input order. The first unrecoverable error cancels the
// context passed to running callbacks and stops new items from starting.
func (p *Processor[T]) ProcessConcurrent(
	ctx context.Context,
	items []T,
	callback ItemCallback[T],
	workers int,
) (*Progress, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	if callback == nil {
		return nil, ErrNilCallback
	}

	if workers < MinWorkers || workers > MaxWorkers {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}

	progress := NewProgress(len(items))

	// Slot tokens let each callback know which worker namespace it owns.
	slots := make(chan int, workers)
	for slot := range workers {
		slots <- slot
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for index, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slot := <-slots
			defer func() { slots <- slot }()

			if err := gctx.Err(); err != nil {
				return err
			}
			return p.run(gctx, progress, callback, item, index, slot)
		})
	}

	err := g.Wait()
	if err == nil {
		// Cancellation of the parent context before any item failed.
		err = ctx.Err()
	}
	return progress, err
}

// run executes one item and applies the skip policy.
func (p *Processor[T]) run(
	ctx context.Context,
	progress *Progress,
	callback ItemCallback[T],
	item T,
	index, slot int,
) error {
	err := callback(ctx, item, index, slot)
	switch {
	case err == nil:
		progress.AddProcessed()
	case p.skip != nil && p.skip(err):
		progress.AddFailed()
	default:
		return fmt.Errorf("item %d failed: %w", index, err)
	}

	if p.onProgress != nil {
		p.onProgress(progress)
	}
	return nil
}
