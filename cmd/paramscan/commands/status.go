package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/config"
	"github.com/dyluth/paramscan/internal/printer"
	"github.com/dyluth/paramscan/internal/substrate"
	"github.com/dyluth/paramscan/internal/watch"
)

var (
	statusJob      string
	statusRedisURL string
	statusReset    bool
	statusWatch    bool
	statusUntil    int
	statusTimeout  time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordination state of a Redis-backed job",
	Long: `Show which ranks have joined a job and the last barrier each one reached.

With --watch, keep polling and print every change in progress. --until N
stops watching once every rank has passed N barriers.

With --reset, delete every key of the job so its ID can be reused.

Examples:
  paramscan status --job nightly
  paramscan status --job nightly --watch --until 1
  paramscan status --job nightly --redis-url redis://scheduler:6379 --reset`,
	Args: exactArgs(0),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusJob, "job", "", "Job ID (required)")
	statusCmd.Flags().StringVar(&statusRedisURL, "redis-url", config.DefaultRedisURL, "Redis URL")
	statusCmd.Flags().BoolVar(&statusReset, "reset", false, "Delete the job's coordination state")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "W", false, "Keep polling and print progress changes")
	statusCmd.Flags().IntVar(&statusUntil, "until", 0, "With --watch, stop once every rank has passed this many barriers")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 0, "With --watch, give up after this long (0 waits forever)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusJob == "" {
		return printer.Error("missing job ID", "The --job flag is required.", []string{"paramscan status --job <id>"})
	}

	opts, err := redis.ParseURL(statusRedisURL)
	if err != nil {
		return printer.Error("invalid Redis URL", err.Error(), nil)
	}
	coord, err := substrate.NewCoordinator(opts, statusJob)
	if err != nil {
		return printer.Error("invalid job", err.Error(), nil)
	}
	defer coord.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := coord.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"cannot reach Redis",
			err.Error(),
			map[string]string{"Redis URL": statusRedisURL},
			[]string{"Check that Redis is running and --redis-url is correct"},
		)
	}

	if statusWatch {
		return watchStatus(cmd.Context(), coord)
	}

	if statusReset {
		if err := coord.Reset(ctx); err != nil {
			return printer.Error("failed to reset job", err.Error(), nil)
		}
		printer.Success("Job %s reset\n", statusJob)
		return nil
	}

	status, err := coord.Status(ctx)
	if substrate.IsNotFound(err) {
		printer.Info("Job %s has no coordination state\n", statusJob)
		return nil
	}
	if err != nil {
		return printer.Error("failed to read job status", err.Error(), nil)
	}

	printStatus(status)
	return nil
}

// watchStatus prints every progress change until interrupted or, with
// --until, until every rank has passed that many barriers.
func watchStatus(ctx context.Context, coord *substrate.Coordinator) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var done func(*substrate.JobStatus) bool
	if statusUntil > 0 {
		done = watch.AllReached(statusUntil)
	}

	printer.Info("Watching job %s (Ctrl+C to stop)\n", statusJob)
	err := watch.PollProgress(ctx, coord, coord.PollInterval, statusTimeout, func(s *substrate.JobStatus) {
		printer.Step("%s\n", time.Now().Format(time.TimeOnly))
		printStatus(s)
	}, done)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return printer.ErrorWithContext("watch failed", err.Error(), map[string]string{"Job": statusJob}, nil)
	}
	printer.Success("Every rank has passed %d barriers\n", statusUntil)
	return nil
}

func printStatus(status *substrate.JobStatus) {
	printer.Info("Job %s: %d of %d ranks joined\n\n", status.Job, len(status.Workers), status.Size)
	rows := make([][]string, 0, len(status.Workers))
	for _, rank := range status.Ranks() {
		barriers := "0"
		if g, ok := status.Progress[rank]; ok {
			barriers = fmt.Sprint(g)
		}
		rows = append(rows, []string{fmt.Sprint(rank), status.Workers[rank], barriers})
	}
	printer.Table([]string{"RANK", "WORKER", "BARRIERS"}, rows)
}
