package substrate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestCoordinator creates a coordinator connected to a miniredis instance
func setupTestCoordinator(t *testing.T, job string) (*Coordinator, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return newTestCoordinator(t, mr, job), mr
}

func newTestCoordinator(t *testing.T, mr *miniredis.Miniredis, job string) *Coordinator {
	c, err := NewCoordinator(&redis.Options{Addr: mr.Addr()}, job)
	require.NoError(t, err)
	c.PollInterval = 20 * time.Millisecond
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewCoordinator(t *testing.T) {
	t.Run("creates coordinator successfully", func(t *testing.T) {
		c, _ := setupTestCoordinator(t, "job-1")
		assert.Equal(t, "job-1", c.Job())
		assert.NoError(t, c.Ping(context.Background()))
	})

	t.Run("rejects empty job", func(t *testing.T) {
		_, err := NewCoordinator(&redis.Options{Addr: "localhost:6379"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job ID cannot be empty")
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit rank", func(t *testing.T) {
		c, _ := setupTestCoordinator(t, "job")
		rc, err := c.Join(ctx, 2, 4)
		require.NoError(t, err)
		assert.Equal(t, 2, rc.Rank())
		assert.Equal(t, 4, rc.Size())
	})

	t.Run("auto-assigned ranks are distinct", func(t *testing.T) {
		c, _ := setupTestCoordinator(t, "job")
		seen := map[int]bool{}
		for i := 0; i < 3; i++ {
			rc, err := c.Join(ctx, -1, 3)
			require.NoError(t, err)
			assert.False(t, seen[rc.Rank()])
			seen[rc.Rank()] = true
		}
		assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)

		_, err := c.Join(ctx, -1, 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("duplicate explicit rank is rejected", func(t *testing.T) {
		c, mr := setupTestCoordinator(t, "job")
		_, err := c.Join(ctx, 1, 2)
		require.NoError(t, err)
		first := mr.HGet(WorkersKey("job"), "1")

		other := newTestCoordinator(t, mr, "job")
		_, err = other.Join(ctx, 1, 2)
		require.ErrorIs(t, err, ErrRankTaken)
		assert.Contains(t, err.Error(), "rank 1 of job job")
		assert.Equal(t, first, mr.HGet(WorkersKey("job"), "1"))
	})

	t.Run("auto-assignment skips explicit ranks", func(t *testing.T) {
		c, _ := setupTestCoordinator(t, "job")
		_, err := c.Join(ctx, 0, 2)
		require.NoError(t, err)

		rc, err := c.Join(ctx, -1, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, rc.Rank())

		_, err = c.Join(ctx, -1, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("size mismatch", func(t *testing.T) {
		c, _ := setupTestCoordinator(t, "job")
		_, err := c.Join(ctx, 0, 4)
		require.NoError(t, err)

		_, err = c.Join(ctx, 1, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})

	t.Run("rejects invalid size", func(t *testing.T) {
		c, _ := setupTestCoordinator(t, "job")
		_, err := c.Join(ctx, 0, 0)
		assert.Error(t, err)
	})
}

func TestRedisBarrier(t *testing.T) {
	const size = 5
	const rounds = 3

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var counters [rounds]atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, size)
	for i := 0; i < size; i++ {
		// One coordinator per rank, as separate processes would have.
		c := newTestCoordinator(t, mr, "barrier-job")
		rc, err := c.Join(ctx, i, size)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < rounds; round++ {
				counters[round].Add(1)
				if err := rc.Barrier(ctx); err != nil {
					errs <- err
					return
				}
				if got := counters[round].Load(); got != size {
					errs <- fmt.Errorf("rank %d left round %d with %d arrivals", rc.Rank(), round, got)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	status, err := newTestCoordinator(t, mr, "barrier-job").Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, size, status.Size)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, status.Ranks())
	for r := 0; r < size; r++ {
		assert.Equal(t, rounds, status.Progress[r])
	}
}

func TestRedisBarrier_BlocksUntilAllArrive(t *testing.T) {
	c, _ := setupTestCoordinator(t, "job")
	rc, err := c.Join(context.Background(), 0, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = rc.Barrier(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisBarrier_Overrun(t *testing.T) {
	c, mr := setupTestCoordinator(t, "job")
	rc, err := c.Join(context.Background(), 0, 1)
	require.NoError(t, err)

	// A stale arrival from an earlier run with the same job ID.
	require.NoError(t, mr.Set(BarrierKey("job", 1), "1"))

	err = rc.Barrier(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overrun")
}

func TestStatusAndReset(t *testing.T) {
	ctx := context.Background()
	c, mr := setupTestCoordinator(t, "job")

	_, err := c.Status(ctx)
	assert.True(t, IsNotFound(err))

	_, err = c.Join(ctx, 0, 2)
	require.NoError(t, err)

	// Keys of another job are left alone.
	require.NoError(t, mr.Set(SizeKey("other"), "3"))

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Size)
	assert.Equal(t, []int{0}, status.Ranks())

	require.NoError(t, c.Reset(ctx))
	_, err = c.Status(ctx)
	assert.True(t, IsNotFound(err))
	assert.True(t, mr.Exists(SizeKey("other")))
}

func TestSchema(t *testing.T) {
	assert.Equal(t, "paramscan:j:size", SizeKey("j"))
	assert.Equal(t, "paramscan:j:rank_counter", RankCounterKey("j"))
	assert.Equal(t, "paramscan:j:workers", WorkersKey("j"))
	assert.Equal(t, "paramscan:j:progress", ProgressKey("j"))
	assert.Equal(t, "paramscan:j:barrier:7", BarrierKey("j", 7))
	assert.Equal(t, "paramscan:j:barrier_events", BarrierEventsChannel("j"))
	assert.Equal(t, "paramscan:j:*", JobKeyPattern("j"))
}
