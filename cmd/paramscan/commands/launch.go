package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/docker"
	"github.com/dyluth/paramscan/internal/printer"
)

var (
	launchWorkers    int
	launchMaxChunk   int
	launchImage      string
	launchJob        string
	launchConfigPath string
	launchKeep       bool
)

var launchCmd = &cobra.Command{
	Use:   "launch OUTNAME N_TOT",
	Short: "Run a scan as one container per worker",
	Long: `Start a Redis container and one worker container per rank on a private
Docker network, wait for every worker to exit, then remove everything.

The worker image must have the paramscan binary as its entrypoint; see the
Dockerfile written by 'paramscan init'. The directory of OUTNAME is mounted
into every worker, so partial files and the consolidated output land there.

Examples:
  paramscan launch out/scan.dat 1000000 --workers 16
  paramscan launch out/scan.dat 1000000 --workers 16 --image my-scan:dev --keep`,
	Args: exactArgs(2),
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().IntVarP(&launchWorkers, "workers", "w", 4, "Number of worker containers")
	launchCmd.Flags().IntVar(&launchMaxChunk, "n_max_lh", 0, "Maximum points per chunk (default: max_chunk_size from config)")
	launchCmd.Flags().StringVar(&launchImage, "image", "", "Worker image (default: launch.image from config)")
	launchCmd.Flags().StringVar(&launchJob, "job", "", "Job ID (default: generated)")
	launchCmd.Flags().StringVarP(&launchConfigPath, "config", "c", "scan.yml", "Scan configuration file")
	launchCmd.Flags().BoolVar(&launchKeep, "keep", false, "Keep the network and containers after the workers exit")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	output, err := parseOutputName(args[0])
	if err != nil {
		return err
	}
	total, err := parsePositive("N_TOT", args[1])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(launchConfigPath)
	if err != nil {
		return err
	}

	outputDir, err := filepath.Abs(filepath.Dir(output))
	if err != nil {
		return printer.Error("invalid output path", err.Error(), nil)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return printer.Error("failed to create output directory", err.Error(), nil)
	}
	configPath, err := filepath.Abs(launchConfigPath)
	if err != nil {
		return printer.Error("invalid config path", err.Error(), nil)
	}

	job := launchJob
	if job == "" {
		job = docker.GenerateJobID()
	}
	image := launchImage
	if image == "" {
		image = cfg.Launch.Image
	}

	spec := docker.LaunchSpec{
		Job:          job,
		Image:        image,
		RedisImage:   cfg.Launch.RedisImage,
		Network:      cfg.Launch.Network,
		Workers:      launchWorkers,
		TotalPoints:  total,
		MaxChunkSize: launchMaxChunk,
		OutputDir:    outputDir,
		OutputName:   filepath.Base(output),
		ConfigPath:   configPath,
	}
	if err := spec.Validate(); err != nil {
		return printer.Error("invalid launch", err.Error(), nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker is not available", err.Error(), []string{"Start the Docker daemon, or use 'paramscan run' with the local backend"})
	}
	defer cli.Close()

	launcher := docker.NewLauncher(cli)
	launcher.Step = printer.Step

	printer.Info("Launching job %s: %d workers, %d points\n", job, launchWorkers, total)
	result, err := launcher.Launch(ctx, spec, launchKeep)
	if err != nil {
		return printer.ErrorWithContext("launch failed", err.Error(), map[string]string{"Job": job}, nil)
	}

	if failed := result.Failed(); len(failed) > 0 {
		for _, f := range failed {
			if f.Err != nil {
				printer.Warning("Worker %d: %v\n", f.Rank, f.Err)
			} else {
				printer.Warning("Worker %d exited with status %d\n", f.Rank, f.StatusCode)
			}
		}
		suggestions := []string{fmt.Sprintf("Inspect the logs: docker logs %s", docker.WorkerContainerName(job, failed[0].Rank))}
		if !launchKeep {
			suggestions = []string{"Re-run with --keep to inspect the worker containers"}
		}
		return printer.ErrorWithContext(
			"scan failed",
			fmt.Sprintf("%d of %d workers did not exit cleanly.", len(failed), launchWorkers),
			map[string]string{"Job": job},
			suggestions,
		)
	}

	printer.Success("Job %s finished; output in %s\n", job, outputDir)
	if launchKeep {
		printer.Info("Containers kept. Inspect coordination state with: paramscan status --job %s --redis-url redis://127.0.0.1:%d\n", job, result.RedisPort)
	}
	return nil
}
