// Package libproc provides concurrent library processing utilities.
package libproc

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// PathError represents an error that occurred while processing a library.
type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Errors collects multiple library processing errors.
type Errors struct {
	Errors []PathError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *Errors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, PathError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *Errors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *Errors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d libraries failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x covers the subprocess-heavy workload where workers mostly wait on the
// symbol tool.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each library is processed.
type ProgressFunc func()

// Map processes library paths in parallel, calling fn for each path.
// Results are collected and returned in arbitrary order along with any
// per-path errors.
func Map[T any](paths []string, fn func(string) (T, error)) ([]T, *Errors) {
	return MapContext(context.Background(), paths, 0, fn, nil)
}

// MapContext processes library paths in parallel with context cancellation,
// configurable worker count, and an optional progress callback. If maxWorkers
// is <= 0, defaults to 2x NumCPU. Individual path failures do not stop the
// pool; they are collected and returned.
func MapContext[T any](ctx context.Context, paths []string, maxWorkers int, fn func(string) (T, error), onProgress ProgressFunc) ([]T, *Errors) {
	if len(paths) == 0 {
		return nil, nil
	}

	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	results := make([]T, 0, len(paths))
	errs := &Errors{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(maxWorkers).WithContext(ctx)
	for _, path := range paths {
		p.Go(func(ctx context.Context) error {
			// Check for cancellation before processing
			select {
			case <-ctx.Done():
				errs.Add(path, ctx.Err())
				if onProgress != nil {
					onProgress()
				}
				return ctx.Err()
			default:
			}

			result, err := fn(path)

			if err != nil {
				errs.Add(path, err)
				if onProgress != nil {
					onProgress()
				}
				return nil // Don't stop pool on individual library errors
			}

			if onProgress != nil {
				onProgress()
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = p.Wait() // Context errors are already captured in errs

	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
