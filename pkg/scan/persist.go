package scan

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Persister writes one chunk's result to its rank/batch partial file.
type Persister struct {
	Store Store
}

// NewPersister creates a persister backed by store.
func NewPersister(store Store) *Persister {
	return &Persister{Store: store}
}

// Persist appends losses as a trailing column to points and writes the result
// to PartialPath(output, rank, batch). It fails with a *ShapeMismatchError,
// before touching the filesystem, when the point row count and the number of
// losses differ. Writing the same rank/batch twice overwrites the first file.
//
// Returns the file name written (including any store suffix).
func (p *Persister) Persist(ctx context.Context, output string, rank, batch int, points mat.Matrix, losses []float64) (string, error) {
	address := PartialPath(output, rank, batch)

	rows, cols := 0, 0
	if points != nil {
		rows, cols = points.Dims()
	}
	if rows != len(losses) {
		return "", &ShapeMismatchError{Address: address, Points: rows, Losses: len(losses)}
	}
	if rows == 0 || cols == 0 {
		return "", fmt.Errorf("refusing to write empty chunk to %s", address)
	}

	record := mat.NewDense(rows, cols+1, nil)
	record.Slice(0, rows, 0, cols).(*mat.Dense).Copy(points)
	record.SetCol(cols, losses)

	file, err := p.Store.Write(ctx, address, record)
	if err != nil {
		return "", fmt.Errorf("failed to write chunk %d of rank %d: %w", batch, rank, err)
	}
	return file, nil
}
