package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Collator gathers every partial file of an output into one consolidated
// matrix and removes the partial files. Exactly one worker runs it, and only
// after the final barrier.
type Collator struct {
	Store Store

	// Expected is the number of partial files the job should have produced.
	// When non-zero a different discovered count is logged as a warning.
	Expected int
}

// CollateResult describes one collation.
type CollateResult struct {
	Output   string          // consolidated file written, empty when nothing was found
	Files    []string        // partial files read, in discovery order
	Rows     int             // rows in the consolidated matrix
	Cols     int             // columns in the consolidated matrix
	Leftover []*CleanupError // partial files that could not be removed
}

// NewCollator creates a collator backed by store.
func NewCollator(store Store) *Collator {
	return &Collator{Store: store}
}

// Discover lists the partial files of output in file name order. Only
// regular files in the output's own directory whose names parse as
// stem.<rank>.<batch>.ext plus the store suffix are returned, so the
// directory name never takes part in matching.
func (c *Collator) Discover(output string) ([]string, error) {
	pattern := Pattern(output)
	suffix := c.Store.Suffix()

	dir := pattern.Dir
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list partial files for %s: %w", output, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := pattern.Parse(e.Name(), suffix); ok {
			files = append(files, pattern.join(e.Name()))
		}
	}
	return files, nil
}

// Collate concatenates all partial files of output row-wise in discovery
// order, writes the result at output, then deletes the partial files.
// No particular row order is promised.
//
// Finding no partial files is not an error: nothing is written and the result
// has zero rows. Failing to delete a partial file is not an error either; it
// is logged and reported in CollateResult.Leftover.
func (c *Collator) Collate(ctx context.Context, output string) (*CollateResult, error) {
	files, err := c.Discover(output)
	if err != nil {
		return nil, err
	}

	result := &CollateResult{Files: files}
	if c.Expected > 0 && len(files) != c.Expected {
		log.Printf("[Collator] Warning: expected %d partial files for %s, found %d", c.Expected, output, len(files))
	}
	if len(files) == 0 {
		log.Printf("[Collator] No partial files found for %s", output)
		return result, nil
	}

	parts := make([]*mat.Dense, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := c.Store.Read(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read partial file %s: %w", f, err)
		}
		r, cols := m.Dims()
		if result.Cols == 0 {
			result.Cols = cols
		} else if cols != result.Cols {
			return nil, fmt.Errorf("%w: %s has %d columns, expected %d", ErrColumnMismatch, f, cols, result.Cols)
		}
		result.Rows += r
		parts = append(parts, m)
	}

	combined := stackRows(parts, result.Rows, result.Cols)
	written, err := c.Store.Write(ctx, output, combined)
	if err != nil {
		return nil, fmt.Errorf("failed to write consolidated file: %w", err)
	}
	result.Output = written
	log.Printf("[Collator] Wrote %d rows from %d partial files to %s", result.Rows, len(files), written)

	for _, f := range files {
		if err := c.Store.Remove(f); err != nil {
			cerr := &CleanupError{Path: f, Err: err}
			log.Printf("[Collator] %v", cerr)
			result.Leftover = append(result.Leftover, cerr)
		}
	}

	return result, nil
}

func stackRows(parts []*mat.Dense, rows, cols int) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	at := 0
	for _, p := range parts {
		r, _ := p.Dims()
		out.Slice(at, at+r, 0, cols).(*mat.Dense).Copy(p)
		at += r
	}
	return out
}
