package config

import (
	"fmt"
	"os"
)

// Environment variables set on every worker container by `paramscan launch`.
const (
	EnvJob      = "PARAMSCAN_JOB"
	EnvRedisURL = "REDIS_URL"
	EnvConfig   = "PARAMSCAN_CONFIG"
)

// WorkerEnv holds a containerised worker's coordination settings loaded from
// environment variables. Rank and size come from internal/substrate.
type WorkerEnv struct {
	// Job is the coordination namespace shared by every rank (from PARAMSCAN_JOB)
	Job string

	// RedisURL is the Redis connection string (from REDIS_URL)
	RedisURL string

	// ConfigPath is the scan.yml path inside the container (from PARAMSCAN_CONFIG)
	ConfigPath string
}

// LoadWorkerEnv reads and validates the worker environment.
// Returns an error if any required variable is missing.
func LoadWorkerEnv() (*WorkerEnv, error) {
	env := &WorkerEnv{
		Job:        os.Getenv(EnvJob),
		RedisURL:   os.Getenv(EnvRedisURL),
		ConfigPath: os.Getenv(EnvConfig),
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}

// Validate checks that all required fields are present.
// Returns the first validation error encountered.
func (e *WorkerEnv) Validate() error {
	if e.Job == "" {
		return fmt.Errorf("%s environment variable is required", EnvJob)
	}

	if e.RedisURL == "" {
		return fmt.Errorf("%s environment variable is required", EnvRedisURL)
	}

	if e.ConfigPath == "" {
		return fmt.Errorf("%s environment variable is required", EnvConfig)
	}

	return nil
}

// Environ renders e as KEY=VALUE pairs for a container spec.
func (e *WorkerEnv) Environ() []string {
	return []string{
		EnvJob + "=" + e.Job,
		EnvRedisURL + "=" + e.RedisURL,
		EnvConfig + "=" + e.ConfigPath,
	}
}
