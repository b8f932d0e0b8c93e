//go:build integration
// +build integration

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gonum.org/v1/gonum/mat"

	"github.com/dyluth/paramscan/internal/store"
	"github.com/dyluth/paramscan/internal/substrate"
	"github.com/dyluth/paramscan/pkg/scan"
)

// E2EEnvironment is an isolated directory with a scan.yml and a dedicated
// Redis container.
type E2EEnvironment struct {
	T          *testing.T
	TmpDir     string
	ConfigPath string
	Job        string
	RedisURL   string
	Ctx        context.Context
}

// StartRedis starts a Redis container that is terminated when the test ends
// and returns its URL.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err, "Failed to get container host")
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err, "Failed to get container port")

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// SetupE2EEnvironment writes scanYML into a fresh directory and starts Redis.
func SetupE2EEnvironment(t *testing.T, scanYML string) *E2EEnvironment {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "scan.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(scanYML), 0644), "Failed to write scan.yml")

	return &E2EEnvironment{
		T:          t,
		TmpDir:     tmpDir,
		ConfigPath: configPath,
		Job:        fmt.Sprintf("test-e2e-%s", time.Now().Format("20060102-150405-000000")),
		RedisURL:   StartRedis(t),
		Ctx:        context.Background(),
	}
}

// Output returns the path of an output file inside the environment.
func (env *E2EEnvironment) Output(name string) string {
	return filepath.Join(env.TmpDir, name)
}

// Coordinator returns a coordinator for the environment's job.
func (env *E2EEnvironment) Coordinator() *substrate.Coordinator {
	opts, err := redis.ParseURL(env.RedisURL)
	require.NoError(env.T, err)
	coord, err := substrate.NewCoordinator(opts, env.Job)
	require.NoError(env.T, err)
	env.T.Cleanup(func() { coord.Close() })
	return coord
}

// ReadOutput reads a consolidated output written by st.
func (env *E2EEnvironment) ReadOutput(st *store.FileStore, output string) *mat.Dense {
	m, err := st.Read(env.Ctx, output+st.Suffix())
	require.NoError(env.T, err, "Failed to read consolidated output %s", output)
	return m
}

// VerifyNoPartials asserts that every partial file of output was removed.
func (env *E2EEnvironment) VerifyNoPartials(st *store.FileStore, output string) {
	files, err := scan.NewCollator(st).Discover(output)
	require.NoError(env.T, err)
	require.Empty(env.T, files, "Partial files left behind for %s", output)
}

// DefaultScanYML returns a two-parameter scan on the local backend.
func DefaultScanYML() string {
	return `version: "1.0"
params:
  - name: x
    min: -1
    max: 1
  - name: y
    min: 0
    max: 10
objective: sphere
max_chunk_size: 25
`
}

// CovarianceScanYML returns a scan sampled from a correlated Gaussian.
func CovarianceScanYML() string {
	return `version: "1.0"
params:
  - name: a
    min: -10
    max: 10
  - name: b
    min: -10
    max: 10
sampler:
  method: lhs_cov
  center: [1, -1]
  covariance:
    - [1.0, 0.5]
    - [0.5, 2.0]
objective: rosenbrock
storage:
  format: zstd
`
}
