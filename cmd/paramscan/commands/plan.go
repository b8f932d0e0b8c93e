package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/printer"
	"github.com/dyluth/paramscan/pkg/scan"
)

var (
	planWorkers  int
	planMaxChunk int
	planOutput   string
)

var planCmd = &cobra.Command{
	Use:   "plan N_TOT",
	Short: "Show how a scan would be partitioned",
	Long: `Print the chunk plan and per-worker seeds for a scan of N_TOT points,
without sampling anything.

Every worker runs the same number of chunks of the same size. When N_TOT
does not divide evenly the remainder is dropped, so the computed total
can be less than N_TOT (but is always more than half of it).

Examples:
  paramscan plan 100000 --workers 8
  paramscan plan 103 --workers 3 --n_max_lh 10 --output runs/scan.dat`,
	Args: exactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVarP(&planWorkers, "workers", "w", runtime.NumCPU(), "Number of workers")
	planCmd.Flags().IntVar(&planMaxChunk, "n_max_lh", 5000, "Maximum points per chunk")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Output name; shows partial file names when set")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	total, err := parsePositive("N_TOT", args[0])
	if err != nil {
		return err
	}
	if planOutput != "" {
		if _, err := parseOutputName(planOutput); err != nil {
			return err
		}
	}

	spec := scan.ScanSpec{TotalPoints: total, WorkerCount: planWorkers, MaxChunkSize: planMaxChunk}
	if err := spec.Validate(); err != nil {
		return printer.Error("invalid plan", err.Error(), []string{"--workers and --n_max_lh must be positive"})
	}

	plan := scan.Plan(spec)
	computed := plan.Total(planWorkers)

	printer.Info("Workers:          %d\n", planWorkers)
	printer.Info("Chunks/worker:    %d\n", plan.ChunksPerWorker)
	printer.Info("Points/chunk:     %d\n", plan.PointsPerChunk)
	printer.Info("Total chunks:     %d\n", plan.TotalChunks(planWorkers))
	printer.Info("Points computed:  %d of %d requested\n", computed, total)
	if computed < total {
		printer.Warning("%d points dropped to keep every chunk the same size\n", total-computed)
	}
	if computed > total {
		printer.Warning("More workers than points: every worker still computes one point\n")
	}

	headers := []string{"RANK", "SEEDS"}
	if planOutput != "" {
		headers = append(headers, "FIRST FILE")
	}
	seeds := scan.AssignSeeds(plan.TotalChunks(planWorkers), planWorkers)
	rows := make([][]string, 0, len(seeds))
	for rank, rankSeeds := range seeds {
		row := []string{fmt.Sprint(rank), formatSeeds(rankSeeds)}
		if planOutput != "" {
			row = append(row, scan.PartialPath(planOutput, rank, 0))
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(printer.Std.Out)
	printer.Table(headers, rows)
	return nil
}

// formatSeeds renders a seed list compactly: contiguous runs as "a-b".
func formatSeeds(seeds []int64) string {
	switch len(seeds) {
	case 0:
		return "-"
	case 1:
		return fmt.Sprint(seeds[0])
	}
	if seeds[len(seeds)-1]-seeds[0] == int64(len(seeds)-1) {
		return fmt.Sprintf("%d-%d", seeds[0], seeds[len(seeds)-1])
	}
	return fmt.Sprint(seeds)
}
