package substrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/paramscan/pkg/scan"
)

const (
	// DefaultPollInterval is how often a waiting rank re-reads the barrier
	// counter in case the release message was missed.
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultKeyTTL bounds how long a job's keys outlive the job.
	DefaultKeyTTL = 24 * time.Hour
)

// ErrSizeMismatch is returned when a rank joins with a worker count different
// from the one recorded by the first rank.
var ErrSizeMismatch = errors.New("worker count does not match job")

// ErrRankTaken is returned when an explicit rank is already registered.
var ErrRankTaken = errors.New("rank already registered")

// Coordinator provides job-scoped Redis operations for multi-process scans.
// All keys and channels are namespaced with the job ID.
// The coordinator is safe for concurrent use.
type Coordinator struct {
	rdb *redis.Client
	job string

	// PollInterval and KeyTTL default to DefaultPollInterval and DefaultKeyTTL.
	PollInterval time.Duration
	KeyTTL       time.Duration
}

// NewCoordinator creates a coordinator for one job.
// Returns an error if job is empty.
func NewCoordinator(redisOpts *redis.Options, job string) (*Coordinator, error) {
	if job == "" {
		return nil, fmt.Errorf("job ID cannot be empty")
	}

	return &Coordinator{
		rdb:          redis.NewClient(redisOpts),
		job:          job,
		PollInterval: DefaultPollInterval,
		KeyTTL:       DefaultKeyTTL,
	}, nil
}

// Job returns the job ID.
func (c *Coordinator) Job() string {
	return c.job
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Coordinator) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Join registers this process as one rank of a job of size workers.
// A negative rank asks Redis to assign the next free one.
//
// The first rank to join records size; later ranks must agree or Join fails
// with ErrSizeMismatch. A rank already held by another worker fails with
// ErrRankTaken.
func (c *Coordinator) Join(ctx context.Context, rank, size int) (*RedisContext, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker count must be > 0, got %d", size)
	}

	if _, err := c.rdb.SetNX(ctx, SizeKey(c.job), size, c.KeyTTL).Result(); err != nil {
		return nil, fmt.Errorf("failed to record job size: %w", err)
	}
	recorded, err := c.rdb.Get(ctx, SizeKey(c.job)).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to read job size: %w", err)
	}
	if recorded != size {
		return nil, fmt.Errorf("%w: job %s has %d workers, this worker expects %d", ErrSizeMismatch, c.job, recorded, size)
	}

	if rank >= size {
		return nil, fmt.Errorf("rank %d out of range: job %s has %d workers", rank, c.job, size)
	}

	if rank >= 0 {
		ok, err := c.register(ctx, rank)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: rank %d of job %s", ErrRankTaken, rank, c.job)
		}
		return &RedisContext{coord: c, rank: rank, size: size}, nil
	}

	// Auto-assigned ranks skip any rank already claimed explicitly.
	for {
		n, err := c.rdb.Incr(ctx, RankCounterKey(c.job)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to assign rank: %w", err)
		}
		c.rdb.Expire(ctx, RankCounterKey(c.job), c.KeyTTL)
		rank = int(n - 1)
		if rank >= size {
			return nil, fmt.Errorf("rank %d out of range: job %s has %d workers", rank, c.job, size)
		}
		ok, err := c.register(ctx, rank)
		if err != nil {
			return nil, err
		}
		if ok {
			return &RedisContext{coord: c, rank: rank, size: size}, nil
		}
	}
}

// register claims rank in the workers hash. It reports false if another
// worker holds it.
func (c *Coordinator) register(ctx context.Context, rank int) (bool, error) {
	ok, err := c.rdb.HSetNX(ctx, WorkersKey(c.job), strconv.Itoa(rank), describeProcess()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register worker: %w", err)
	}
	c.rdb.Expire(ctx, WorkersKey(c.job), c.KeyTTL)
	return ok, nil
}

// JobStatus is a snapshot of a job's coordination state.
type JobStatus struct {
	Job      string
	Size     int
	Workers  map[int]string // rank -> host/pid
	Progress map[int]int    // rank -> highest barrier generation reached
}

// Ranks returns the registered ranks in ascending order.
func (s *JobStatus) Ranks() []int {
	ranks := make([]int, 0, len(s.Workers))
	for r := range s.Workers {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return ranks
}

// Status reads the job's current coordination state.
// Returns redis.Nil if the job has never been joined.
func (c *Coordinator) Status(ctx context.Context) (*JobStatus, error) {
	size, err := c.rdb.Get(ctx, SizeKey(c.job)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read job size: %w", err)
	}

	workers, err := c.rdb.HGetAll(ctx, WorkersKey(c.job)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workers: %w", err)
	}
	progress, err := c.rdb.HGetAll(ctx, ProgressKey(c.job)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	status := &JobStatus{
		Job:      c.job,
		Size:     size,
		Workers:  make(map[int]string, len(workers)),
		Progress: make(map[int]int, len(progress)),
	}
	for k, v := range workers {
		if r, err := strconv.Atoi(k); err == nil {
			status.Workers[r] = v
		}
	}
	for k, v := range progress {
		r, err1 := strconv.Atoi(k)
		g, err2 := strconv.Atoi(v)
		if err1 == nil && err2 == nil {
			status.Progress[r] = g
		}
	}
	return status, nil
}

// Reset deletes every key of the job so the job ID can be reused.
func (c *Coordinator) Reset(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, JobKeyPattern(c.job), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to list job keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete job keys: %w", err)
	}
	return nil
}

// IsNotFound returns true if the error is redis.Nil, as returned by Status for
// an unknown job.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// RedisContext is one rank of a job coordinated through Redis.
type RedisContext struct {
	coord      *Coordinator
	rank       int
	size       int
	generation int
}

var _ scan.ExecutionContext = (*RedisContext)(nil)

// Rank implements scan.ExecutionContext.
func (r *RedisContext) Rank() int { return r.rank }

// Size implements scan.ExecutionContext.
func (r *RedisContext) Size() int { return r.size }

// Barrier implements scan.ExecutionContext.
//
// Every call opens a new generation. A rank subscribes to the release channel,
// then increments the generation's arrival counter. The rank whose increment
// reaches Size publishes the release. Waiters also poll the counter so a
// missed message cannot strand them.
func (r *RedisContext) Barrier(ctx context.Context) error {
	c := r.coord
	r.generation++
	gen := r.generation
	key := BarrierKey(c.job, gen)

	pubsub := c.rdb.Subscribe(ctx, BarrierEventsChannel(c.job))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to barrier events: %w", err)
	}

	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to arrive at barrier %d: %w", gen, err)
	}
	c.rdb.Expire(ctx, key, c.KeyTTL)
	c.rdb.HSet(ctx, ProgressKey(c.job), strconv.Itoa(r.rank), gen)
	c.rdb.Expire(ctx, ProgressKey(c.job), c.KeyTTL)

	switch {
	case int(n) == r.size:
		if err := c.rdb.Publish(ctx, BarrierEventsChannel(c.job), gen).Err(); err != nil {
			return fmt.Errorf("failed to release barrier %d: %w", gen, err)
		}
		return nil
	case int(n) > r.size:
		return fmt.Errorf("barrier %d overrun: %d arrivals for %d workers (stale job ID?)", gen, n, r.size)
	}

	poll := c.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	msgs := pubsub.Channel()
	want := strconv.Itoa(gen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("barrier %d: subscription closed", gen)
			}
			if msg.Payload == want {
				return nil
			}
		case <-ticker.C:
			count, err := c.rdb.Get(ctx, key).Int()
			if err != nil {
				return fmt.Errorf("failed to poll barrier %d: %w", gen, err)
			}
			if count >= r.size {
				return nil
			}
		}
	}
}

func describeProcess() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}
