package scan_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/dyluth/paramscan/internal/objective"
	"github.com/dyluth/paramscan/internal/sampling"
	"github.com/dyluth/paramscan/internal/store"
	"github.com/dyluth/paramscan/internal/substrate"
	"github.com/dyluth/paramscan/pkg/scan"
)

// recordingStore keeps a copy of every partial file written.
type recordingStore struct {
	*store.FileStore

	mu      sync.Mutex
	written map[string]*mat.Dense
}

func newRecordingStore() *recordingStore {
	return &recordingStore{FileStore: store.NewBinary(), written: map[string]*mat.Dense{}}
}

func (s *recordingStore) Write(ctx context.Context, path string, m *mat.Dense) (string, error) {
	file, err := s.FileStore.Write(ctx, path, m)
	if err == nil {
		s.mu.Lock()
		s.written[file] = mat.DenseCopyOf(m)
		s.mu.Unlock()
	}
	return file, err
}

func testBounds() sampling.Bounds {
	return sampling.Bounds{{Min: -1, Max: 1}, {Min: 0, Max: 10}, {Min: 100, Max: 200}}
}

func runLocal(t *testing.T, workers int, job scan.Job) []*scan.Report {
	t.Helper()
	group, err := substrate.NewLocalGroup(workers)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reports := make([]*scan.Report, workers)
	err = group.Run(ctx, func(ctx context.Context, ec scan.ExecutionContext) error {
		r, err := scan.Run(ctx, ec, job)
		reports[ec.Rank()] = r
		return err
	})
	require.NoError(t, err)
	return reports
}

func TestRun_EndToEnd(t *testing.T) {
	output := filepath.Join(t.TempDir(), "scan.dat")
	sampler, err := sampling.New(sampling.MethodLatinHypercube, testBounds())
	require.NoError(t, err)
	st := newRecordingStore()

	job := scan.Job{
		Output:       output,
		TotalPoints:  1000,
		MaxChunkSize: 5000,
		Sampler:      sampler,
		Objective:    objective.Constant(-1),
		Store:        st,
	}
	reports := runLocal(t, 4, job)

	for rank, r := range reports {
		require.NotNil(t, r)
		assert.Equal(t, scan.ChunkPlan{ChunksPerWorker: 1, PointsPerChunk: 250}, r.Plan)
		assert.Equal(t, []int64{int64(rank)}, r.Seeds)
		assert.Len(t, r.Files, 1)
		if rank == scan.CollatorRank {
			require.NotNil(t, r.Collated)
		} else {
			assert.Nil(t, r.Collated)
		}
	}

	res := reports[scan.CollatorRank].Collated
	assert.Equal(t, 1000, res.Rows)
	assert.Equal(t, 4, res.Cols)
	assert.Empty(t, res.Leftover)

	combined, err := st.Read(context.Background(), res.Output)
	require.NoError(t, err)
	rows, cols := combined.Dims()
	require.Equal(t, 1000, rows)
	require.Equal(t, 4, cols)

	b := testBounds()
	for i := 0; i < rows; i++ {
		row := combined.RawRowView(i)
		assert.True(t, b.Contains(row[:3]), "row %d out of bounds: %v", i, row)
		assert.Equal(t, -1.0, row[3])
	}

	// The consolidated rows are exactly the union of the partial rows.
	var partialRows []string
	for file, m := range st.written {
		if file == res.Output {
			continue
		}
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			partialRows = append(partialRows, rowKey(m.RawRowView(i)))
		}
	}
	var outputRows []string
	for i := 0; i < rows; i++ {
		outputRows = append(outputRows, rowKey(combined.RawRowView(i)))
	}
	assert.ElementsMatch(t, partialRows, outputRows)

	files, err := scan.NewCollator(st).Discover(output)
	require.NoError(t, err)
	assert.Empty(t, files, "partial files are removed after collation")
}

func TestRun_MultipleChunksWithSync(t *testing.T) {
	output := filepath.Join(t.TempDir(), "scan.dat")
	sampler, err := sampling.New(sampling.MethodUniform, sampling.Bounds{r1.Interval{Min: 0, Max: 1}})
	require.NoError(t, err)

	job := scan.Job{
		Output:        output,
		TotalPoints:   103,
		MaxChunkSize:  10,
		Sampler:       sampler,
		Objective:     objective.Func(objective.Sphere),
		Store:         store.NewCompressed(),
		SyncEachChunk: true,
	}
	reports := runLocal(t, 3, job)

	// 103/3 = 34 per worker, three chunks of 10 each, remainder dropped.
	var seeds []int64
	for _, r := range reports {
		assert.Equal(t, scan.ChunkPlan{ChunksPerWorker: 3, PointsPerChunk: 10}, r.Plan)
		assert.Len(t, r.Files, 3)
		seeds = append(seeds, r.Seeds...)
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8}, seeds)
	assert.Equal(t, 90, reports[0].Collated.Rows)
}

func TestRun_SameSeedsSameResult(t *testing.T) {
	sampler, err := sampling.New(sampling.MethodLatinHypercube, testBounds())
	require.NoError(t, err)

	run := func() *mat.Dense {
		output := filepath.Join(t.TempDir(), "scan.dat")
		st := store.NewBinary()
		reports := runLocal(t, 1, scan.Job{
			Output:       output,
			TotalPoints:  40,
			MaxChunkSize: 20,
			Sampler:      sampler,
			Objective:    objective.Func(objective.Rosenbrock),
			Store:        st,
		})
		m, err := st.Read(context.Background(), reports[0].Collated.Output)
		require.NoError(t, err)
		return m
	}

	assert.True(t, mat.Equal(run(), run()))
}

type failingSampler struct{}

func (failingSampler) Sample(int, int64) (*mat.Dense, error) {
	return nil, errors.New("sampler exploded")
}

func TestRun_FailureReleasesOtherRanks(t *testing.T) {
	group, err := substrate.NewLocalGroup(3)
	require.NoError(t, err)

	job := scan.Job{
		Output:       filepath.Join(t.TempDir(), "scan.dat"),
		TotalPoints:  30,
		MaxChunkSize: 10,
		Objective:    objective.Constant(0),
		Store:        store.NewBinary(),
	}
	good, err := sampling.New("", testBounds())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = group.Run(ctx, func(ctx context.Context, ec scan.ExecutionContext) error {
		j := job
		j.Sampler = good
		if ec.Rank() == 2 {
			j.Sampler = failingSampler{}
		}
		_, err := scan.Run(ctx, ec, j)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampler exploded")
	assert.NoError(t, ctx.Err(), "ranks must be released before the test deadline")
}

func TestRun_RejectsInvalidJob(t *testing.T) {
	group, err := substrate.NewLocalGroup(1)
	require.NoError(t, err)
	ec := group.Context(0)

	_, err = scan.Run(context.Background(), ec, scan.Job{TotalPoints: 0, MaxChunkSize: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total points")

	_, err = scan.Run(context.Background(), ec, scan.Job{TotalPoints: 1, MaxChunkSize: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a sampler")
}

func rowKey(row []float64) string {
	return fmt.Sprint(row)
}
