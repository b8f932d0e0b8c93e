package scan

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Store persists numeric matrices. A store may append its own suffix to every
// path it writes (for example ".mat"); Suffix reports it so partial files can
// be rediscovered by glob.
type Store interface {
	// Suffix is appended to every path passed to Write.
	Suffix() string

	// Write stores m at path+Suffix(), replacing any existing file, and
	// returns the file name actually written.
	Write(ctx context.Context, path string, m *mat.Dense) (string, error)

	// Read loads a matrix from a file name returned by Write or discovered
	// by glob.
	Read(ctx context.Context, file string) (*mat.Dense, error)

	// Remove deletes a file name returned by Write or discovered by glob.
	Remove(file string) error
}
