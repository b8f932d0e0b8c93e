package docker

import (
	"context"
	"fmt"
	"log"
	"net"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/paramscan/internal/config"
)

// Paths inside every worker container.
const (
	ContainerOutputDir  = "/scan/out"
	ContainerConfigPath = "/scan/scan.yml"
)

const (
	redisContainerPort nat.Port = "6379/tcp"

	// Host port range for job Redis containers
	startPort = 6379
	endPort   = 6478

	stopTimeoutSeconds = 10
)

// LaunchSpec describes one containerised scan.
type LaunchSpec struct {
	Job        string
	RunID      string
	Image      string // worker image; its entrypoint must be the paramscan binary
	RedisImage string
	Network    string // empty for NetworkName(Job)

	Workers      int
	TotalPoints  int
	MaxChunkSize int

	OutputDir  string // absolute host directory bind-mounted at ContainerOutputDir
	OutputName string // base name of the consolidated output, e.g. "scan.dat"
	ConfigPath string // absolute host path of scan.yml
}

// Validate checks the spec before anything is created.
func (s *LaunchSpec) Validate() error {
	if err := ValidateJob(s.Job); err != nil {
		return err
	}
	if s.Image == "" {
		return fmt.Errorf("worker image is required")
	}
	if s.RedisImage == "" {
		return fmt.Errorf("redis image is required")
	}
	if s.Workers <= 0 {
		return fmt.Errorf("worker count must be > 0, got %d", s.Workers)
	}
	if s.TotalPoints <= 0 {
		return fmt.Errorf("total points must be > 0, got %d", s.TotalPoints)
	}
	if !filepath.IsAbs(s.OutputDir) || !filepath.IsAbs(s.ConfigPath) {
		return fmt.Errorf("output directory and config path must be absolute")
	}
	if s.OutputName == "" {
		return fmt.Errorf("output name is required")
	}
	return nil
}

func (s *LaunchSpec) network() string {
	if s.Network != "" {
		return s.Network
	}
	return NetworkName(s.Job)
}

// WorkerEnv is the coordination environment every worker container receives.
func (s *LaunchSpec) WorkerEnv() *config.WorkerEnv {
	return &config.WorkerEnv{
		Job:        s.Job,
		RedisURL:   fmt.Sprintf("redis://%s:6379", RedisContainerName(s.Job)),
		ConfigPath: ContainerConfigPath,
	}
}

// WorkerContainer returns the container and host configuration for one rank.
func (s *LaunchSpec) WorkerContainer(rank int) (*container.Config, *container.HostConfig) {
	env := append(s.WorkerEnv().Environ(),
		fmt.Sprintf("PARAMSCAN_RANK=%d", rank),
		fmt.Sprintf("PARAMSCAN_SIZE=%d", s.Workers),
	)

	cmd := []string{
		"run",
		path.Join(ContainerOutputDir, s.OutputName),
		strconv.Itoa(s.TotalPoints),
		"--backend", config.BackendRedis,
	}
	if s.MaxChunkSize > 0 {
		cmd = append(cmd, "--n_max_lh", strconv.Itoa(s.MaxChunkSize))
	}

	cfg := &container.Config{
		Image:  s.Image,
		Labels: WorkerLabels(s.Job, s.RunID, s.OutputDir, rank),
		Env:    env,
		Cmd:    cmd,
	}
	host := &container.HostConfig{
		NetworkMode: container.NetworkMode(s.network()),
		Binds: []string{
			fmt.Sprintf("%s:%s:rw", s.OutputDir, ContainerOutputDir),
			fmt.Sprintf("%s:%s:ro", s.ConfigPath, ContainerConfigPath),
		},
	}
	return cfg, host
}

// RedisContainer returns the container and host configuration for the job's
// Redis, published on 127.0.0.1:hostPort so `paramscan status` can reach it.
func (s *LaunchSpec) RedisContainer(hostPort int) (*container.Config, *container.HostConfig) {
	labels := BuildLabels(s.Job, s.RunID, s.OutputDir, ComponentRedis)
	labels[LabelRedisPort] = strconv.Itoa(hostPort)

	cfg := &container.Config{
		Image:  s.RedisImage,
		Labels: labels,
		ExposedPorts: nat.PortSet{
			redisContainerPort: struct{}{},
		},
	}
	host := &container.HostConfig{
		NetworkMode: container.NetworkMode(s.network()),
		PortBindings: nat.PortMap{
			redisContainerPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: strconv.Itoa(hostPort),
				},
			},
		},
	}
	return cfg, host
}

// WorkerExit is the outcome of one worker container.
type WorkerExit struct {
	Rank       int
	Container  string
	StatusCode int64
	Err        error
}

// LaunchResult summarises a finished launch.
type LaunchResult struct {
	RedisPort int
	Exits     []WorkerExit
}

// Failed reports the workers that did not exit cleanly.
func (r *LaunchResult) Failed() []WorkerExit {
	var failed []WorkerExit
	for _, e := range r.Exits {
		if e.Err != nil || e.StatusCode != 0 {
			failed = append(failed, e)
		}
	}
	return failed
}

// Launcher runs a scan as one container per rank plus a Redis container on a
// dedicated network.
type Launcher struct {
	cli *client.Client

	// Step is called with a short description before each phase.
	Step func(format string, a ...any)
}

// NewLauncher creates a launcher over a connected Docker client.
func NewLauncher(cli *client.Client) *Launcher {
	return &Launcher{cli: cli, Step: log.Printf}
}

// Launch creates the network and Redis, starts every worker and waits for all
// of them to exit. Resources are removed afterwards unless keep is set; on a
// setup error they are always removed.
func (l *Launcher) Launch(ctx context.Context, spec LaunchSpec, keep bool) (result *LaunchResult, err error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.RunID == "" {
		spec.RunID = GenerateRunID()
	}

	defer func() {
		if err != nil || !keep {
			// Cleanup must run even when ctx was cancelled.
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if cerr := l.Cleanup(cleanupCtx, spec.Job); cerr != nil {
				log.Printf("[Launcher] Warning: cleanup encountered errors: %v", cerr)
			}
		}
	}()

	port, err := l.FindRedisPort(ctx)
	if err != nil {
		return nil, err
	}
	result = &LaunchResult{RedisPort: port}

	l.Step("Creating network %s\n", spec.network())
	_, err = l.cli.NetworkCreate(ctx, spec.network(), types.NetworkCreate{
		Driver: "bridge",
		Labels: BuildLabels(spec.Job, spec.RunID, spec.OutputDir, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create network '%s': %w", spec.network(), err)
	}

	l.Step("Starting Redis %s on port %d\n", RedisContainerName(spec.Job), port)
	redisCfg, redisHost := spec.RedisContainer(port)
	if _, err := l.start(ctx, redisCfg, redisHost, RedisContainerName(spec.Job)); err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}
	if err := WaitForRedis(ctx, fmt.Sprintf("127.0.0.1:%d", port), 30*time.Second); err != nil {
		return nil, err
	}

	ids := make([]string, spec.Workers)
	for rank := 0; rank < spec.Workers; rank++ {
		name := WorkerContainerName(spec.Job, rank)
		l.Step("Starting worker %s\n", name)
		cfg, host := spec.WorkerContainer(rank)
		id, err := l.start(ctx, cfg, host, name)
		if err != nil {
			return nil, fmt.Errorf("failed to start worker %d: %w", rank, err)
		}
		ids[rank] = id
	}

	l.Step("Waiting for %d workers\n", spec.Workers)
	result.Exits = l.waitAll(ctx, spec.Job, ids)
	return result, nil
}

func (l *Launcher) start(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (string, error) {
	resp, err := l.cli.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", name, err)
	}
	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return resp.ID, nil
}

// waitAll blocks until every container has stopped. Containers are waited on
// concurrently so a failing rank is reported as soon as it exits.
func (l *Launcher) waitAll(ctx context.Context, job string, ids []string) []WorkerExit {
	exits := make([]WorkerExit, len(ids))
	done := make(chan int, len(ids))
	for rank, id := range ids {
		go func() {
			exit := WorkerExit{Rank: rank, Container: WorkerContainerName(job, rank)}
			statusCh, errCh := l.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
			select {
			case status := <-statusCh:
				exit.StatusCode = status.StatusCode
				if status.Error != nil {
					exit.Err = fmt.Errorf("%s", status.Error.Message)
				}
			case err := <-errCh:
				exit.Err = err
			}
			if exit.Err != nil || exit.StatusCode != 0 {
				log.Printf("[Launcher] Worker %d exited with status %d: %v", rank, exit.StatusCode, exit.Err)
			}
			exits[rank] = exit
			done <- rank
		}()
	}
	for range ids {
		<-done
	}
	return exits
}

// Cleanup stops and removes every container and network labelled with job.
func (l *Launcher) Cleanup(ctx context.Context, job string) error {
	timeout := stopTimeoutSeconds
	byJob := filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", LabelJob, job)))

	containers, err := l.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: byJob})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	var firstErr error
	for _, c := range containers {
		_ = l.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := l.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Printf("[Launcher] Warning: failed to remove %s: %v", c.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	networks, err := l.cli.NetworkList(ctx, types.NetworkListOptions{Filters: byJob})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range networks {
		if err := l.cli.NetworkRemove(ctx, n.ID); err != nil {
			log.Printf("[Launcher] Warning: failed to remove network %s: %v", n.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// FindRedisPort returns the first host port in 6379-6478 that no other
// paramscan Redis container has claimed and that can currently be bound.
func (l *Launcher) FindRedisPort(ctx context.Context) (int, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRedis))

	containers, err := l.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		return 0, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	used := make(map[int]bool)
	for _, c := range containers {
		if p, err := strconv.Atoi(c.Labels[LabelRedisPort]); err == nil {
			used[p] = true
		}
	}
	return firstFreePort(used, isPortBindable)
}

func firstFreePort(used map[int]bool, bindable func(int) bool) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if !used[port] && bindable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available Redis ports (range %d-%d exhausted)", startPort, endPort)
}

func isPortBindable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// WaitForRedis pings addr until it answers or timeout elapses.
func WaitForRedis(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis at %s not ready: %w", addr, err)
		case <-ticker.C:
		}
	}
}
