package docker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() LaunchSpec {
	return LaunchSpec{
		Job:          "nightly",
		RunID:        "run-1",
		Image:        "paramscan:latest",
		RedisImage:   "redis:7-alpine",
		Workers:      4,
		TotalPoints:  1000,
		MaxChunkSize: 250,
		OutputDir:    "/data/runs",
		OutputName:   "scan.dat",
		ConfigPath:   "/data/scan.yml",
	}
}

func TestLaunchSpec_Validate(t *testing.T) {
	spec := validSpec()
	require.NoError(t, spec.Validate())

	testCases := []struct {
		name   string
		mutate func(s *LaunchSpec)
		errMsg string
	}{
		{name: "bad job", mutate: func(s *LaunchSpec) { s.Job = "Bad_Job" }, errMsg: "invalid job ID"},
		{name: "no image", mutate: func(s *LaunchSpec) { s.Image = "" }, errMsg: "worker image is required"},
		{name: "no redis image", mutate: func(s *LaunchSpec) { s.RedisImage = "" }, errMsg: "redis image is required"},
		{name: "no workers", mutate: func(s *LaunchSpec) { s.Workers = 0 }, errMsg: "worker count"},
		{name: "no points", mutate: func(s *LaunchSpec) { s.TotalPoints = 0 }, errMsg: "total points"},
		{name: "relative output", mutate: func(s *LaunchSpec) { s.OutputDir = "runs" }, errMsg: "must be absolute"},
		{name: "no output name", mutate: func(s *LaunchSpec) { s.OutputName = "" }, errMsg: "output name"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)
			err := spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestLaunchSpec_WorkerContainer(t *testing.T) {
	spec := validSpec()
	cfg, host := spec.WorkerContainer(2)

	assert.Equal(t, "paramscan:latest", cfg.Image)
	assert.Equal(t, strslice.StrSlice{"run", "/scan/out/scan.dat", "1000", "--backend", "redis", "--n_max_lh", "250"}, cfg.Cmd)
	assert.ElementsMatch(t, []string{
		"PARAMSCAN_JOB=nightly",
		"REDIS_URL=redis://paramscan-redis-nightly:6379",
		"PARAMSCAN_CONFIG=/scan/scan.yml",
		"PARAMSCAN_RANK=2",
		"PARAMSCAN_SIZE=4",
	}, cfg.Env)
	assert.Equal(t, "2", cfg.Labels[LabelRank])
	assert.Equal(t, ComponentWorker, cfg.Labels[LabelComponent])

	assert.Equal(t, container.NetworkMode("paramscan-network-nightly"), host.NetworkMode)
	assert.Equal(t, []string{
		"/data/runs:/scan/out:rw",
		"/data/scan.yml:/scan/scan.yml:ro",
	}, host.Binds)
}

func TestLaunchSpec_WorkerContainerCustomNetwork(t *testing.T) {
	spec := validSpec()
	spec.Network = "scans"
	spec.MaxChunkSize = 0

	cfg, host := spec.WorkerContainer(0)
	assert.Equal(t, container.NetworkMode("scans"), host.NetworkMode)
	assert.NotContains(t, cfg.Cmd, "--n_max_lh")
}

func TestLaunchSpec_RedisContainer(t *testing.T) {
	spec := validSpec()
	cfg, host := spec.RedisContainer(6381)

	assert.Equal(t, "redis:7-alpine", cfg.Image)
	assert.Equal(t, "6381", cfg.Labels[LabelRedisPort])
	assert.Equal(t, ComponentRedis, cfg.Labels[LabelComponent])
	assert.Contains(t, cfg.ExposedPorts, nat.Port("6379/tcp"))

	bindings := host.PortBindings[redisContainerPort]
	require.Len(t, bindings, 1)
	assert.Equal(t, "127.0.0.1", bindings[0].HostIP)
	assert.Equal(t, "6381", bindings[0].HostPort)
}

func TestFirstFreePort(t *testing.T) {
	all := func(int) bool { return true }

	port, err := firstFreePort(map[int]bool{}, all)
	require.NoError(t, err)
	assert.Equal(t, startPort, port)

	port, err = firstFreePort(map[int]bool{6379: true, 6380: true}, all)
	require.NoError(t, err)
	assert.Equal(t, 6381, port)

	port, err = firstFreePort(map[int]bool{}, func(p int) bool { return p == 6400 })
	require.NoError(t, err)
	assert.Equal(t, 6400, port)

	_, err = firstFreePort(map[int]bool{}, func(int) bool { return false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestLaunchResult_Failed(t *testing.T) {
	r := &LaunchResult{Exits: []WorkerExit{
		{Rank: 0},
		{Rank: 1, StatusCode: 1},
		{Rank: 2, Err: errors.New("wait failed")},
	}}

	failed := r.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].Rank)
	assert.Equal(t, 2, failed[1].Rank)
}

func TestWaitForRedis(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		mr := miniredis.RunT(t)
		require.NoError(t, WaitForRedis(context.Background(), mr.Addr(), time.Second))
	})

	t.Run("times out", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		err := WaitForRedis(context.Background(), addr, 300*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not ready")
	})
}
