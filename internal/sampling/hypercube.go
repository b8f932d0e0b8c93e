package sampling

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/dyluth/paramscan/pkg/scan"
)

// Sampling methods accepted by New.
const (
	MethodLatinHypercube = "lhs"
	MethodUniform        = "uniform"
	MethodCovariance     = "lhs_cov"
)

// pcgStream is the fixed second PCG word; only the seed varies between chunks.
const pcgStream = 0x9e3779b97f4a7c15

func source(seed int64) rand.Source {
	return rand.NewPCG(uint64(seed), pcgStream)
}

// LatinHypercube draws n stratified points inside bounds. The same seed
// always yields the same matrix.
func LatinHypercube(bounds Bounds, n int, seed int64) (*mat.Dense, error) {
	if err := check(bounds, n); err != nil {
		return nil, err
	}
	src := source(seed)
	batch := mat.NewDense(n, bounds.Dim(), nil)
	samplemv.LatinHypercube{
		Q:   distmv.NewUniform(bounds, src),
		Src: src,
	}.Sample(batch)
	return batch, nil
}

// UniformHypercube draws n independent uniform points inside bounds.
func UniformHypercube(bounds Bounds, n int, seed int64) (*mat.Dense, error) {
	if err := check(bounds, n); err != nil {
		return nil, err
	}
	batch := mat.NewDense(n, bounds.Dim(), nil)
	samplemv.IID{Dist: distmv.NewUniform(bounds, source(seed))}.Sample(batch)
	return batch, nil
}

// LatinHypercubeFromCov draws a Latin hypercube of half-width sig[i] (in units
// of the covariance eigenvalues) and rotates it into the eigenbasis of cov,
// centred on mu. sig may hold one value for every dimension or one per
// dimension.
func LatinHypercubeFromCov(mu []float64, cov mat.Symmetric, sig []float64, n int, seed int64) (*mat.Dense, error) {
	dim := len(mu)
	if cov.SymmetricDim() != dim {
		return nil, fmt.Errorf("covariance is %dx%d but mu has %d entries", cov.SymmetricDim(), cov.SymmetricDim(), dim)
	}
	switch len(sig) {
	case 1:
		s := sig[0]
		sig = make([]float64, dim)
		for i := range sig {
			sig[i] = s
		}
	case dim:
	default:
		return nil, fmt.Errorf("sig must have 1 or %d entries, got %d", dim, len(sig))
	}
	for i, s := range sig {
		if !(s > 0) {
			return nil, fmt.Errorf("sig[%d] must be strictly positive, got %g", i, s)
		}
	}

	transform, err := eigenbasisTransform(cov)
	if err != nil {
		return nil, err
	}

	box, err := LatinHypercube(Symmetric(sig), n, seed)
	if err != nil {
		return nil, err
	}

	var out mat.Dense
	out.Mul(box, transform)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += mu[j]
		}
	}
	return &out, nil
}

// eigenbasisTransform returns T such that x = y*T maps eigenbasis coordinates
// (scaled by the square root of the eigenvalues) back to the original axes.
func eigenbasisTransform(cov mat.Symmetric) (*mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("eigendecomposition of covariance failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	scale := make([]float64, len(vals))
	for i, v := range vals {
		if v < 0 {
			return nil, fmt.Errorf("covariance is not positive semi-definite (eigenvalue %g)", v)
		}
		scale[i] = math.Sqrt(v)
	}

	var rs mat.Dense
	rs.Mul(&vecs, mat.NewDiagDense(len(scale), scale))
	t := mat.DenseCopyOf(rs.T())
	return t, nil
}

func check(bounds Bounds, n int) error {
	if err := bounds.Validate(); err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("sample size must be > 0, got %d", n)
	}
	return nil
}

// Hypercube is a scan.Sampler over fixed bounds.
type Hypercube struct {
	Method string
	Bounds Bounds
}

var _ scan.Sampler = (*Hypercube)(nil)

// New creates a sampler. Bounds are validated here so a malformed scan fails
// before any worker samples.
func New(method string, bounds Bounds) (*Hypercube, error) {
	switch method {
	case "":
		method = MethodLatinHypercube
	case MethodLatinHypercube, MethodUniform:
	default:
		return nil, fmt.Errorf("unknown sampling method: %s (must be '%s' or '%s')", method, MethodLatinHypercube, MethodUniform)
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &Hypercube{Method: method, Bounds: bounds}, nil
}

// Sample implements scan.Sampler.
func (h *Hypercube) Sample(count int, seed int64) (*mat.Dense, error) {
	if h.Method == MethodUniform {
		return UniformHypercube(h.Bounds, count, seed)
	}
	return LatinHypercube(h.Bounds, count, seed)
}

// Rotated is a scan.Sampler that draws Latin hypercubes in the eigenbasis of a
// covariance matrix, see LatinHypercubeFromCov.
type Rotated struct {
	Mu  []float64
	Cov *mat.SymDense
	Sig []float64
}

var _ scan.Sampler = (*Rotated)(nil)

// NewRotated builds a Rotated sampler from a dense covariance given row by
// row. The matrix must be square, symmetric and match mu.
func NewRotated(mu []float64, cov [][]float64, sig []float64) (*Rotated, error) {
	dim := len(mu)
	if dim == 0 {
		return nil, fmt.Errorf("%w: at least one parameter is required", ErrBoundsViolation)
	}
	if len(cov) != dim {
		return nil, fmt.Errorf("covariance has %d rows, expected %d", len(cov), dim)
	}
	data := make([]float64, 0, dim*dim)
	for i, row := range cov {
		if len(row) != dim {
			return nil, fmt.Errorf("covariance row %d has %d entries, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	for i := 0; i < dim; i++ {
		for j := i + 1; j < dim; j++ {
			if cov[i][j] != cov[j][i] {
				return nil, fmt.Errorf("covariance is not symmetric at (%d,%d)", i, j)
			}
		}
	}

	r := &Rotated{Mu: mu, Cov: mat.NewSymDense(dim, data), Sig: sig}
	// Fail on a bad sig or an indefinite matrix now rather than in a worker.
	if _, err := r.Sample(1, 0); err != nil {
		return nil, err
	}
	return r, nil
}

// Sample implements scan.Sampler.
func (r *Rotated) Sample(count int, seed int64) (*mat.Dense, error) {
	return LatinHypercubeFromCov(r.Mu, r.Cov, r.Sig, count, seed)
}
