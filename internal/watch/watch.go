package watch

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dyluth/paramscan/internal/substrate"
)

// StatusSource reports a job's coordination state.
type StatusSource interface {
	Status(ctx context.Context) (*substrate.JobStatus, error)
}

// PollProgress polls source every interval and calls onChange with every
// snapshot that differs from the previous one. It returns once done reports
// true for a snapshot, or an error when ctx is cancelled or timeout elapses.
// A zero timeout waits forever. A job that does not exist yet is polled again.
func PollProgress(
	ctx context.Context,
	source StatusSource,
	interval, timeout time.Duration,
	onChange func(*substrate.JobStatus),
	done func(*substrate.JobStatus) bool,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timeoutCh = time.After(timeout)
	}

	var last *substrate.JobStatus
	for {
		status, err := source.Status(ctx)
		switch {
		case substrate.IsNotFound(err):
			// Not joined yet, keep polling
		case err != nil:
			return fmt.Errorf("failed to query job status: %w", err)
		default:
			if !sameProgress(last, status) {
				onChange(status)
				last = status
			}
			if done != nil && done(status) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutCh:
			return fmt.Errorf("timeout waiting for job progress after %v", timeout)
		case <-ticker.C:
		}
	}
}

// AllReached returns a done func that is true once every rank of the job has
// joined and passed at least generation barriers.
func AllReached(generation int) func(*substrate.JobStatus) bool {
	return func(s *substrate.JobStatus) bool {
		if len(s.Workers) < s.Size {
			return false
		}
		for rank := range s.Workers {
			if s.Progress[rank] < generation {
				return false
			}
		}
		return true
	}
}

func sameProgress(a, b *substrate.JobStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Size == b.Size && maps.Equal(a.Workers, b.Workers) && maps.Equal(a.Progress, b.Progress)
}
