// Package scan partitions a parameter scan across a fixed number of workers
// and gathers their results.
//
// # Overview
//
// A scan of TotalPoints points is split into equally sized chunks. Every
// worker derives the same ChunkPlan from the same ScanSpec, so no
// communication is needed to agree on it. Chunks are numbered by a global
// seed range [0, workers*chunks) which AssignSeeds splits into contiguous
// slices, one per rank. A worker samples each of its chunks with the chunk's
// seed, evaluates the objective, and persists the result to a partial file
// whose name is unique to (rank, batch).
//
// After a job-wide barrier, rank 0 runs the Collator: it rediscovers every
// partial file by glob, stacks them into one matrix at the output path and
// deletes the partial files.
//
// # File naming
//
// For an output "out/scan.dat" partial files are named
//
//	out/scan.<rank>.<batch>.dat<suffix>
//
// where suffix is whatever the Store appends (".mat" for the binary store).
// The consolidated file is "out/scan.dat<suffix>".
//
// # Usage Example
//
//	job := scan.Job{
//		Output:       "runs/scan.dat",
//		TotalPoints:  100000,
//		MaxChunkSize: 5000,
//		Sampler:      sampling.NewLatinHypercube(bounds),
//		Objective:    objective.Constant(-1),
//		Store:        store.NewBinary(),
//	}
//	report, err := scan.Run(ctx, execCtx, job)
//
// # Failure model
//
// There is no retry. A worker that fails never reaches the barrier and the
// remaining workers wait until their context is done.
package scan
