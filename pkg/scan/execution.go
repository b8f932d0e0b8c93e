package scan

import "context"

// ExecutionContext is the only view the scan engine has of the parallel
// runtime. Implementations live in internal/substrate.
type ExecutionContext interface {
	// Rank is this worker's zero-based identity.
	Rank() int

	// Size is the total number of workers in the job.
	Size() int

	// Barrier blocks until every worker has called Barrier the same number
	// of times, or ctx is done.
	Barrier(ctx context.Context) error
}

// CollatorRank is the rank that gathers partial files after the final barrier.
const CollatorRank = 0
