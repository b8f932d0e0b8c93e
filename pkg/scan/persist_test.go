package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/dyluth/paramscan/internal/store"
	"github.com/dyluth/paramscan/pkg/scan"
)

func TestPersist(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	output := filepath.Join(dir, "dummy.ext")
	p := scan.NewPersister(store.NewBinary())

	points := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	losses := []float64{-1, -2, -3}

	file, err := p.Persist(ctx, output, 2, 7, points, losses)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dummy.2.7.ext.mat"), file)

	got, err := store.NewBinary().Read(ctx, file)
	require.NoError(t, err)
	want := mat.NewDense(3, 3, []float64{
		1, 2, -1,
		3, 4, -2,
		5, 6, -3,
	})
	assert.True(t, mat.Equal(want, got))
}

func TestPersist_OverwritesSameAddress(t *testing.T) {
	ctx := context.Background()
	output := filepath.Join(t.TempDir(), "dummy.ext")
	p := scan.NewPersister(store.NewBinary())

	_, err := p.Persist(ctx, output, 0, 0, mat.NewDense(1, 1, []float64{1}), []float64{1})
	require.NoError(t, err)
	file, err := p.Persist(ctx, output, 0, 0, mat.NewDense(1, 1, []float64{2}), []float64{3})
	require.NoError(t, err)

	got, err := store.NewBinary().Read(ctx, file)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 2, []float64{2, 3}), got))
}

func TestPersist_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "dummy.ext")
	p := scan.NewPersister(store.NewBinary())

	_, err := p.Persist(context.Background(), output, 0, 0, mat.NewDense(3, 2, nil), []float64{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrShapeMismatch)

	var shapeErr *scan.ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 3, shapeErr.Points)
	assert.Equal(t, 2, shapeErr.Losses)
	assert.Equal(t, filepath.Join(dir, "dummy.0.0.ext"), shapeErr.Address)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be written on a shape mismatch")
}

func TestPersist_RejectsEmptyChunk(t *testing.T) {
	p := scan.NewPersister(store.NewBinary())
	_, err := p.Persist(context.Background(), filepath.Join(t.TempDir(), "x.dat"), 0, 0, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty chunk")
}
