package substrate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dyluth/paramscan/pkg/scan"
)

// LocalGroup runs every rank of a job as a goroutine in this process. The
// barrier is a generation counter whose waiters block on a channel that the
// last arrival closes.
type LocalGroup struct {
	size int

	mu      sync.Mutex
	arrived int
	waitc   chan struct{}
}

// Local is one rank of a LocalGroup.
type Local struct {
	group *LocalGroup
	rank  int
}

var _ scan.ExecutionContext = (*Local)(nil)

// NewLocalGroup creates a group of size ranks.
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker count must be > 0, got %d", size)
	}
	return &LocalGroup{size: size}, nil
}

// Size is the number of ranks in the group.
func (g *LocalGroup) Size() int {
	return g.size
}

// Context returns the execution context for one rank.
func (g *LocalGroup) Context(rank int) *Local {
	return &Local{group: g, rank: rank}
}

// Run calls fn once per rank, each in its own goroutine, and waits for all of
// them. The first error cancels the context passed to the others, which
// releases any rank blocked at the barrier.
func (g *LocalGroup) Run(ctx context.Context, fn func(ctx context.Context, ec scan.ExecutionContext) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for rank := 0; rank < g.size; rank++ {
		ec := g.Context(rank)
		eg.Go(func() error {
			if err := fn(egCtx, ec); err != nil {
				return fmt.Errorf("rank %d: %w", ec.rank, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (g *LocalGroup) barrier(ctx context.Context) error {
	g.mu.Lock()
	if g.waitc == nil {
		g.waitc = make(chan struct{})
	}
	waitc := g.waitc
	g.arrived++
	if g.arrived == g.size {
		close(g.waitc)
		g.waitc = nil
		g.arrived = 0
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	select {
	case <-waitc:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.waitc != waitc {
			// Released while cancelling.
			return nil
		}
		g.arrived--
		return ctx.Err()
	}
}

// Rank implements scan.ExecutionContext.
func (l *Local) Rank() int { return l.rank }

// Size implements scan.ExecutionContext.
func (l *Local) Size() int { return l.group.size }

// Barrier implements scan.ExecutionContext.
func (l *Local) Barrier(ctx context.Context) error {
	return l.group.barrier(ctx)
}
