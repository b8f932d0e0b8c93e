package substrate

import "fmt"

// Redis key pattern helpers
//
// All keys and channels are namespaced by job ID so several scans can share
// one Redis server.
//
// Key pattern: paramscan:{job}:{entity}

// SizeKey holds the worker count agreed by the first rank to join.
// Pattern: paramscan:{job}:size
func SizeKey(job string) string {
	return fmt.Sprintf("paramscan:%s:size", job)
}

// RankCounterKey hands out ranks to workers that join without one.
// Pattern: paramscan:{job}:rank_counter
func RankCounterKey(job string) string {
	return fmt.Sprintf("paramscan:%s:rank_counter", job)
}

// WorkersKey is a hash of rank -> worker description (host and pid).
// Pattern: paramscan:{job}:workers
func WorkersKey(job string) string {
	return fmt.Sprintf("paramscan:%s:workers", job)
}

// ProgressKey is a hash of rank -> highest barrier generation reached.
// Pattern: paramscan:{job}:progress
func ProgressKey(job string) string {
	return fmt.Sprintf("paramscan:%s:progress", job)
}

// BarrierKey counts arrivals at one barrier generation.
// Pattern: paramscan:{job}:barrier:{generation}
func BarrierKey(job string, generation int) string {
	return fmt.Sprintf("paramscan:%s:barrier:%d", job, generation)
}

// BarrierEventsChannel carries the generation number of every released barrier.
// Pattern: paramscan:{job}:barrier_events
func BarrierEventsChannel(job string) string {
	return fmt.Sprintf("paramscan:%s:barrier_events", job)
}

// JobKeyPattern matches every key of a job, for Reset.
// Pattern: paramscan:{job}:*
func JobKeyPattern(job string) string {
	return fmt.Sprintf("paramscan:%s:*", job)
}
