package review

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of reviews allowed to run at once.
const DefaultConcurrency = 3

// Gate bounds how many review pipelines run at the same time. Callers block
// for a permit; the permit is held while fn runs and released afterwards even
// if fn panics.
type Gate struct {
	sem   *semaphore.Weighted
	size  int
	inUse atomic.Int64
}

// NewGate returns a gate with size permits. A non-positive size means
// DefaultConcurrency.
func NewGate(size int) *Gate {
	if size <= 0 {
		size = DefaultConcurrency
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Do waits for a permit, runs fn, and releases the permit. It returns ctx's
// error without running fn if ctx ends while waiting.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("review: gate: waiting for permit: %w", err)
	}
	g.inUse.Add(1)
	defer func() {
		g.inUse.Add(-1)
		g.sem.Release(1)
	}()

	return fn(ctx)
}

// InUse returns the number of permits currently held.
func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

// Size returns the total number of permits.
func (g *Gate) Size() int {
	return g.size
}
