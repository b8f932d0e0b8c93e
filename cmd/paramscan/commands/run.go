package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/config"
	"github.com/dyluth/paramscan/internal/printer"
	"github.com/dyluth/paramscan/internal/substrate"
	"github.com/dyluth/paramscan/pkg/scan"
)

var (
	runConfigPath    string
	runMaxChunk      int
	runBackend       string
	runWorkers       int
	runRank          int
	runSize          int
	runRedisURL      string
	runJob           string
	runSyncEachChunk bool
)

var runCmd = &cobra.Command{
	Use:   "run OUTNAME N_TOT",
	Short: "Run a parameter scan",
	Long: `Sample N_TOT points split over every worker, evaluate the objective on each
point, and collate all partial files into OUTNAME (which must end in .dat).

Backends:
  local - every rank is a goroutine in this process (--workers, default NumCPU)
  redis - this process is one rank; ranks meet at a barrier kept in Redis.
          Rank and size come from --rank/--size, or PARAMSCAN_RANK/SIZE,
          OMPI_COMM_WORLD_RANK/SIZE, PMI_RANK/SIZE or SLURM_PROCID/NTASKS.
          Without a rank, Redis assigns the next free one.

Rank 0 collates once every rank has reached the final barrier.

Examples:
  # 100k points over 8 goroutines, chunks of at most 5000 points
  paramscan run runs/scan.dat 100000 --workers 8

  # One rank of a 16-process job
  paramscan run runs/scan.dat 1000000 --backend redis --job nightly --size 16`,
	Args: exactArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "scan.yml", "Scan configuration file")
	runCmd.Flags().IntVar(&runMaxChunk, "n_max_lh", 0, "Maximum points per chunk (default: max_chunk_size from config)")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Coordination backend: local or redis (default: from config)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", runtime.NumCPU(), "Number of goroutine ranks (local backend)")
	runCmd.Flags().IntVar(&runRank, "rank", -1, "This process's rank (redis backend; -1 to auto-assign)")
	runCmd.Flags().IntVar(&runSize, "size", 0, "Total number of ranks (redis backend)")
	runCmd.Flags().StringVar(&runRedisURL, "redis-url", "", "Redis URL (redis backend; default: from config)")
	runCmd.Flags().StringVar(&runJob, "job", "", "Job ID shared by every rank (redis backend)")
	runCmd.Flags().BoolVar(&runSyncEachChunk, "sync-each-chunk", false, "Wait for every rank after each chunk")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	output, err := parseOutputName(args[0])
	if err != nil {
		return err
	}
	total, err := parsePositive("N_TOT", args[1])
	if err != nil {
		return err
	}

	// A container started by 'paramscan launch' carries its settings in the environment.
	var env *config.WorkerEnv
	if os.Getenv(config.EnvJob) != "" && runJob == "" && runRedisURL == "" {
		env, err = config.LoadWorkerEnv()
		if err != nil {
			return printer.Error("invalid worker environment", err.Error(), nil)
		}
		if !cmd.Flags().Changed("config") {
			runConfigPath = env.ConfigPath
		}
	}

	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	job, err := buildJob(cfg, output, total, runMaxChunk)
	if err != nil {
		return printer.ErrorWithContext("invalid scan", err.Error(), map[string]string{"Config": runConfigPath}, nil)
	}
	if runSyncEachChunk {
		job.SyncEachChunk = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := runBackend
	if backend == "" {
		backend = cfg.Coordination.Backend
	}
	if env != nil {
		backend = config.BackendRedis
	}

	var report *scan.Report
	switch backend {
	case config.BackendLocal:
		report, err = runLocal(ctx, job, runWorkers)
	case config.BackendRedis:
		report, err = runRedis(ctx, cfg, env, job)
	default:
		return printer.Error(
			"invalid backend",
			fmt.Sprintf("Unknown backend: %s", backend),
			[]string{"Valid backends: local, redis"},
		)
	}
	if err != nil {
		return printer.ErrorWithContext("scan failed", err.Error(), map[string]string{"Output": output}, nil)
	}

	printReport(report, job)
	return nil
}

// runLocal runs every rank as a goroutine and returns the collator's report.
func runLocal(ctx context.Context, job scan.Job, workers int) (*scan.Report, error) {
	group, err := substrate.NewLocalGroup(workers)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		collated *scan.Report
	)
	err = group.Run(ctx, func(ctx context.Context, ec scan.ExecutionContext) error {
		report, err := scan.Run(ctx, ec, job)
		if err != nil {
			return err
		}
		if ec.Rank() == scan.CollatorRank {
			mu.Lock()
			collated = report
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collated, nil
}

// runRedis joins a Redis-coordinated job as one rank.
func runRedis(ctx context.Context, cfg *config.ScanConfig, env *config.WorkerEnv, job scan.Job) (*scan.Report, error) {
	jobID := firstNonEmpty(runJob, cfg.Coordination.Job)
	redisURL := firstNonEmpty(runRedisURL, cfg.Coordination.RedisURL, config.DefaultRedisURL)
	if env != nil {
		jobID, redisURL = env.Job, env.RedisURL
	}
	if jobID == "" {
		return nil, errors.New("the redis backend needs a job ID: pass --job or set coordination.job in scan.yml")
	}

	rank, size := runRank, runSize
	if size == 0 {
		envRank, envSize, ok, err := substrate.RankFromEnv()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("the redis backend needs a worker count: pass --size or run under a launcher that sets one")
		}
		rank, size = envRank, envSize
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL %q: %w", redisURL, err)
	}
	coord, err := substrate.NewCoordinator(opts, jobID)
	if err != nil {
		return nil, err
	}
	defer coord.Close()
	coord.PollInterval = cfg.Coordination.Poll()

	if err := coord.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot reach Redis at %s: %w", redisURL, err)
	}

	ec, err := coord.Join(ctx, rank, size)
	if err != nil {
		return nil, err
	}
	printer.Step("Joined job %s as rank %d of %d\n", jobID, ec.Rank(), ec.Size())

	return scan.Run(ctx, ec, job)
}

func printReport(report *scan.Report, job scan.Job) {
	if report == nil {
		return
	}
	if report.Collated == nil {
		printer.Success("Rank %d wrote %d chunks of %d points\n", report.Rank, len(report.Files), report.Plan.PointsPerChunk)
		return
	}

	res := report.Collated
	if res.Rows == 0 {
		printer.Warning("No partial files found for %s; nothing was written\n", job.Output)
		return
	}
	printer.Success("Wrote %d points (%d columns) from %d partial files to %s\n", res.Rows, res.Cols, len(res.Files), res.Output)
	for _, leftover := range res.Leftover {
		printer.Warning("%v\n", leftover)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
