package scan

import "fmt"

// ScanSpec is the immutable description of one scan job. It is built once at
// job start and must be identical on every worker.
type ScanSpec struct {
	TotalPoints  int // points requested across the whole job
	WorkerCount  int // number of ranks
	MaxChunkSize int // upper bound on points sampled and persisted together
}

// Validate checks that every field is strictly positive.
func (s ScanSpec) Validate() error {
	if s.TotalPoints <= 0 {
		return fmt.Errorf("total points must be > 0, got %d", s.TotalPoints)
	}
	if s.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be > 0, got %d", s.WorkerCount)
	}
	if s.MaxChunkSize <= 0 {
		return fmt.Errorf("max chunk size must be > 0, got %d", s.MaxChunkSize)
	}
	return nil
}

// ChunkPlan says how many chunks every worker processes and how many points
// each chunk holds. All workers share the same plan.
type ChunkPlan struct {
	ChunksPerWorker int
	PointsPerChunk  int
}

// TotalChunks is the number of chunks (and seeds) across the whole job.
func (p ChunkPlan) TotalChunks(workers int) int {
	return workers * p.ChunksPerWorker
}

// Total is the number of points the job actually computes.
func (p ChunkPlan) Total(workers int) int {
	return p.TotalChunks(workers) * p.PointsPerChunk
}

// Plan computes the chunk plan for a scan. It is a pure function of spec, so
// every worker derives the same plan without communicating.
//
// Each worker is given total/workers points (at least one). When that is below
// MaxChunkSize the worker runs a single chunk of exactly that size. Otherwise
// it runs as many full chunks of MaxChunkSize as fit and the remainder is
// dropped, keeping every chunk the same size. The computed total never exceeds
// TotalPoints and, when WorkerCount <= TotalPoints, is more than half of it.
func Plan(spec ScanSpec) ChunkPlan {
	perWorker := 1
	if spec.WorkerCount > 0 && spec.TotalPoints/spec.WorkerCount > 1 {
		perWorker = spec.TotalPoints / spec.WorkerCount
	}

	if perWorker < spec.MaxChunkSize {
		return ChunkPlan{ChunksPerWorker: 1, PointsPerChunk: perWorker}
	}
	return ChunkPlan{
		ChunksPerWorker: perWorker / spec.MaxChunkSize,
		PointsPerChunk:  spec.MaxChunkSize,
	}
}
