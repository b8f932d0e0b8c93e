package substrate

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPair names the rank and size variables exported by one launcher.
type EnvPair struct {
	Rank string
	Size string
}

// EnvPairs are checked in order; the first pair whose rank variable is set wins.
var EnvPairs = []EnvPair{
	{Rank: "PARAMSCAN_RANK", Size: "PARAMSCAN_SIZE"},
	{Rank: "OMPI_COMM_WORLD_RANK", Size: "OMPI_COMM_WORLD_SIZE"}, // Open MPI
	{Rank: "PMI_RANK", Size: "PMI_SIZE"},                         // MPICH, Intel MPI
	{Rank: "SLURM_PROCID", Size: "SLURM_NTASKS"},                 // srun
}

// RankFromEnv reads rank and size from the environment.
// ok is false when no known rank variable is set. A rank variable set without
// its size variable, or with non-numeric values, is an error.
func RankFromEnv() (rank, size int, ok bool, err error) {
	for _, p := range EnvPairs {
		rawRank, found := os.LookupEnv(p.Rank)
		if !found {
			continue
		}
		rawSize, found := os.LookupEnv(p.Size)
		if !found {
			return 0, 0, false, fmt.Errorf("%s is set but %s is not", p.Rank, p.Size)
		}
		rank, err = strconv.Atoi(rawRank)
		if err != nil || rank < 0 {
			return 0, 0, false, fmt.Errorf("invalid %s: %q", p.Rank, rawRank)
		}
		size, err = strconv.Atoi(rawSize)
		if err != nil || size <= 0 {
			return 0, 0, false, fmt.Errorf("invalid %s: %q", p.Size, rawSize)
		}
		if rank >= size {
			return 0, 0, false, fmt.Errorf("%s=%d out of range for %s=%d", p.Rank, rank, p.Size, size)
		}
		return rank, size, true, nil
	}
	return 0, 0, false, nil
}
