package scan

// AssignSeeds splits the seed range [0, totalChunks) into one contiguous,
// ascending slice per worker. With q = totalChunks/workers and
// r = totalChunks%workers, the first r workers get q+1 seeds and the rest get q.
// Concatenating the slices in rank order reproduces the full range once.
//
// Returns nil when workers is not positive.
func AssignSeeds(totalChunks, workers int) [][]int64 {
	if workers <= 0 {
		return nil
	}
	if totalChunks < 0 {
		totalChunks = 0
	}

	q, r := totalChunks/workers, totalChunks%workers
	slices := make([][]int64, workers)
	next := int64(0)
	for rank := range slices {
		n := q
		if rank < r {
			n++
		}
		seeds := make([]int64, n)
		for i := range seeds {
			seeds[i] = next
			next++
		}
		slices[rank] = seeds
	}
	return slices
}

// SeedsForRank returns the seed slice owned by one rank, or nil if the rank is
// out of range.
func SeedsForRank(totalChunks, workers, rank int) []int64 {
	if rank < 0 || rank >= workers {
		return nil
	}
	return AssignSeeds(totalChunks, workers)[rank]
}
