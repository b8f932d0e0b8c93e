package commands

import (
	"fmt"

	"github.com/dyluth/paramscan/internal/config"
	"github.com/dyluth/paramscan/internal/objective"
	"github.com/dyluth/paramscan/internal/printer"
	"github.com/dyluth/paramscan/internal/sampling"
	"github.com/dyluth/paramscan/internal/store"
	"github.com/dyluth/paramscan/pkg/scan"
)

// loadConfig loads scan.yml and renders any failure through the printer.
func loadConfig(path string) (*config.ScanConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"failed to load scan configuration",
			err.Error(),
			map[string]string{"Config": path},
			[]string{
				"Create a starter configuration: paramscan init",
				"Point at an existing file: --config path/to/scan.yml",
			},
		)
	}
	return cfg, nil
}

// newSampler builds the configured sampler.
func newSampler(cfg *config.ScanConfig) (scan.Sampler, error) {
	if cfg.Sampler.Method == sampling.MethodCovariance {
		return sampling.NewRotated(cfg.Sampler.Center, cfg.Sampler.Covariance, cfg.Sampler.Sigma)
	}
	return sampling.New(cfg.Sampler.Method, cfg.Bounds())
}

// buildJob assembles a scan.Job from a validated config. maxChunk overrides
// the configured chunk size when positive.
func buildJob(cfg *config.ScanConfig, output string, total, maxChunk int) (scan.Job, error) {
	sampler, err := newSampler(cfg)
	if err != nil {
		return scan.Job{}, fmt.Errorf("sampler: %w", err)
	}

	obj, err := objective.New(cfg.Objective)
	if err != nil {
		return scan.Job{}, err
	}

	st, err := store.Open(cfg.Storage.Format)
	if err != nil {
		return scan.Job{}, err
	}

	if maxChunk <= 0 {
		maxChunk = *cfg.MaxChunkSize
	}

	return scan.Job{
		Output:        output,
		TotalPoints:   total,
		MaxChunkSize:  maxChunk,
		Sampler:       sampler,
		Objective:     obj,
		Store:         st,
		SyncEachChunk: cfg.SyncEachChunk,
	}, nil
}
