package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestOpen(t *testing.T) {
	testCases := []struct {
		format  string
		suffix  string
		wantErr bool
	}{
		{format: "", suffix: ".mat"},
		{format: FormatBinary, suffix: ".mat"},
		{format: FormatZstd, suffix: ".mat.zst"},
		{format: "hdf5", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			s, err := Open(tc.format)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown storage format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.suffix, s.Suffix())
		})
	}
}

func TestFileStore_WriteRead(t *testing.T) {
	stores := map[string]*FileStore{
		"binary": NewBinary(),
		"zstd":   NewCompressed(),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			m := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

			written, err := s.Write(ctx, filepath.Join(dir, "nested", "scan.0.0.dat"), m)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "nested", "scan.0.0.dat"+s.Suffix()), written)

			got, err := s.Read(ctx, written)
			require.NoError(t, err)
			assert.True(t, mat.Equal(m, got))

			// No temp files left behind
			entries, err := os.ReadDir(filepath.Join(dir, "nested"))
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestFileStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := NewBinary()
	path := filepath.Join(t.TempDir(), "scan.dat")

	_, err := s.Write(ctx, path, mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	written, err := s.Write(ctx, path, mat.NewDense(1, 2, []float64{7, 8}))
	require.NoError(t, err)

	got, err := s.Read(ctx, written)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 2, []float64{7, 8}), got))
}

func TestFileStore_Remove(t *testing.T) {
	ctx := context.Background()
	s := NewBinary()
	written, err := s.Write(ctx, filepath.Join(t.TempDir(), "scan.dat"), mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)

	require.NoError(t, s.Remove(written))
	_, err = os.Stat(written)
	assert.True(t, os.IsNotExist(err))

	err = s.Remove(written)
	assert.Error(t, err)
}

func TestFileStore_ReadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewBinary().Read(ctx, filepath.Join(t.TempDir(), "missing.mat"))
		assert.Error(t, err)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corrupt.mat")
		require.NoError(t, os.WriteFile(path, []byte("not a matrix"), 0o644))
		_, err := NewBinary().Read(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode matrix")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewBinary().Write(cctx, filepath.Join(t.TempDir(), "x.dat"), mat.NewDense(1, 1, nil))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
