package scan

import (
	"context"
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"
)

// Sampler draws a reproducible set of points: the same count and seed always
// yield the same matrix of shape (count, num_params).
type Sampler interface {
	Sample(count int, seed int64) (*mat.Dense, error)
}

// Objective is the loss function being scanned.
type Objective interface {
	// LossData loads auxiliary data once per chunk. It may return nil.
	LossData(ctx context.Context) (any, error)

	// Loss evaluates one point.
	Loss(params []float64, data any) float64
}

// Job is everything a worker needs to run its share of a scan. It must be
// identical on every rank.
type Job struct {
	Output       string // logical output path, e.g. "runs/scan.dat"
	TotalPoints  int
	MaxChunkSize int

	Sampler   Sampler
	Objective Objective
	Store     Store

	// SyncEachChunk adds a barrier after every chunk. Every rank runs the
	// same number of chunks, so this cannot deadlock.
	SyncEachChunk bool
}

// Spec returns the ScanSpec of this job for a given worker count.
func (j Job) Spec(workers int) ScanSpec {
	return ScanSpec{TotalPoints: j.TotalPoints, WorkerCount: workers, MaxChunkSize: j.MaxChunkSize}
}

// Report summarises what one rank did.
type Report struct {
	Rank     int
	Plan     ChunkPlan
	Seeds    []int64
	Files    []string       // partial files written by this rank
	Collated *CollateResult // set on the collator rank only
}

// Run executes one rank's share of job: for each seed assigned to this rank
// it samples a chunk, evaluates the objective on every point and persists the
// chunk. It then waits at the job barrier and, on CollatorRank, collates.
//
// An error returns immediately, before the barrier. Other ranks will block at
// the barrier until their own ctx is done.
func Run(ctx context.Context, exec ExecutionContext, job Job) (*Report, error) {
	spec := job.Spec(exec.Size())
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan: %w", err)
	}
	if job.Sampler == nil || job.Objective == nil || job.Store == nil {
		return nil, fmt.Errorf("job requires a sampler, an objective and a store")
	}

	rank := exec.Rank()
	if rank < 0 || rank >= spec.WorkerCount {
		return nil, fmt.Errorf("rank %d out of range for %d workers", rank, spec.WorkerCount)
	}

	plan := Plan(spec)
	seeds := SeedsForRank(plan.TotalChunks(spec.WorkerCount), spec.WorkerCount, rank)
	report := &Report{Rank: rank, Plan: plan, Seeds: seeds}

	log.Printf("[Worker %d] %d chunks of %d points (seeds %v)", rank, len(seeds), plan.PointsPerChunk, seedRange(seeds))

	persister := NewPersister(job.Store)
	for batch, seed := range seeds {
		file, err := runChunk(ctx, job, persister, rank, batch, seed, plan.PointsPerChunk)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, file)

		if job.SyncEachChunk {
			if err := exec.Barrier(ctx); err != nil {
				return report, fmt.Errorf("barrier after chunk %d failed: %w", batch, err)
			}
		}
	}

	log.Printf("[Worker %d] Finished %d chunks, waiting at barrier", rank, len(seeds))
	if err := exec.Barrier(ctx); err != nil {
		return report, fmt.Errorf("final barrier failed: %w", err)
	}

	if rank != CollatorRank {
		return report, nil
	}

	collator := NewCollator(job.Store)
	collator.Expected = plan.TotalChunks(spec.WorkerCount)
	res, err := collator.Collate(ctx, job.Output)
	if err != nil {
		return report, fmt.Errorf("collation failed: %w", err)
	}
	report.Collated = res
	return report, nil
}

func runChunk(ctx context.Context, job Job, persister *Persister, rank, batch int, seed int64, points int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sample, err := job.Sampler.Sample(points, seed)
	if err != nil {
		return "", fmt.Errorf("failed to sample chunk %d (seed %d): %w", batch, seed, err)
	}

	data, err := job.Objective.LossData(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load loss data for chunk %d: %w", batch, err)
	}

	rows, _ := sample.Dims()
	losses := make([]float64, rows)
	for i := range losses {
		losses[i] = job.Objective.Loss(sample.RawRowView(i), data)
	}

	file, err := persister.Persist(ctx, job.Output, rank, batch, sample, losses)
	if err != nil {
		return "", err
	}
	log.Printf("[Worker %d] Wrote chunk %d (seed %d) to %s", rank, batch, seed, file)
	return file, nil
}

func seedRange(seeds []int64) string {
	switch len(seeds) {
	case 0:
		return "none"
	case 1:
		return fmt.Sprintf("%d", seeds[0])
	}
	return fmt.Sprintf("%d-%d", seeds[0], seeds[len(seeds)-1])
}
