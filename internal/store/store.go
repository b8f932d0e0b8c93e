package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"

	"github.com/dyluth/paramscan/pkg/scan"
)

const (
	// FormatBinary stores matrices in gonum's binary encoding.
	FormatBinary = "binary"

	// FormatZstd stores the binary encoding compressed with zstd.
	FormatZstd = "zstd"

	binarySuffix = ".mat"
	zstdSuffix   = ".mat.zst"

	defaultBufSize = 64 * 1024
)

// FileStore persists matrices as local files. Writes go to a temporary file in
// the destination directory and are renamed into place, so a reader never
// sees a half-written matrix.
type FileStore struct {
	compress bool
	permFile os.FileMode
	permDir  os.FileMode
}

var _ scan.Store = (*FileStore)(nil)

// NewBinary creates an uncompressed store (suffix ".mat").
func NewBinary() *FileStore {
	return &FileStore{permFile: 0o644, permDir: 0o755}
}

// NewCompressed creates a zstd-compressed store (suffix ".mat.zst").
func NewCompressed() *FileStore {
	return &FileStore{compress: true, permFile: 0o644, permDir: 0o755}
}

// Open returns the store for a configured format name.
func Open(format string) (*FileStore, error) {
	switch format {
	case "", FormatBinary:
		return NewBinary(), nil
	case FormatZstd:
		return NewCompressed(), nil
	}
	return nil, fmt.Errorf("unknown storage format: %s (must be '%s' or '%s')", format, FormatBinary, FormatZstd)
}

// Suffix implements scan.Store.
func (s *FileStore) Suffix() string {
	if s.compress {
		return zstdSuffix
	}
	return binarySuffix
}

// Write implements scan.Store.
func (s *FileStore) Write(ctx context.Context, path string, m *mat.Dense) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := path + s.Suffix()
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, s.permDir); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := s.encode(tmp, m); err != nil {
		return "", fmt.Errorf("failed to encode matrix for %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmpPath, s.permFile); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	committed = true

	return dest, nil
}

func (s *FileStore) encode(w io.Writer, m *mat.Dense) error {
	bw := bufio.NewWriterSize(w, defaultBufSize)
	if !s.compress {
		if _, err := m.MarshalBinaryTo(bw); err != nil {
			return err
		}
		return bw.Flush()
	}

	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return err
	}
	if _, err := m.MarshalBinaryTo(zw); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// Read implements scan.Store.
func (s *FileStore) Read(ctx context.Context, file string) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, defaultBufSize)
	if s.compress {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream in %s: %w", file, err)
		}
		defer dec.Close()
		r = dec
	}

	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("failed to decode matrix in %s: %w", file, err)
	}
	return &m, nil
}

// Remove implements scan.Store.
func (s *FileStore) Remove(file string) error {
	return os.Remove(file)
}
