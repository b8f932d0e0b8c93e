package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is matched by every *ShapeMismatchError.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrColumnMismatch is returned when partial files disagree on column count.
	ErrColumnMismatch = errors.New("partial files have different column counts")

	// ErrCleanupFailure is matched by every *CleanupError.
	ErrCleanupFailure = errors.New("cleanup failure")
)

// ShapeMismatchError reports a chunk whose point rows and loss values disagree.
// It is a caller bug and is never retried.
type ShapeMismatchError struct {
	Address string
	Points  int
	Losses  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch writing %s: %d point rows but %d losses", e.Address, e.Points, e.Losses)
}

// Is lets errors.Is(err, ErrShapeMismatch) match.
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// CleanupError reports a partial file that could not be removed after
// collation. The consolidated result is unaffected.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("failed to remove partial file %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCleanupFailure) match.
func (e *CleanupError) Is(target error) bool {
	return target == ErrCleanupFailure
}
