// Package linsolve defines the linear-solver backend contract used by the
// Radau IIA integrator and provides a dense LU implementation on top of
// gonum/mat.
//
// The integrator never performs factorizations or triangular solves itself;
// it assembles shifted Jacobian matrices in triplet form and hands them to a
// Backend. Concrete backends may use dense LU (the default here) or a
// sparse-direct factorizer; their internal ordering and scaling heuristics
// are opaque to the caller.
package linsolve

import "errors"

// Backend error conditions, discriminated by the caller with errors.Is.
var (
	// ErrSingular reports a numerically singular iteration matrix.
	ErrSingular = errors.New("singular matrix")
	// ErrFactorize reports a factorization failure other than singularity.
	ErrFactorize = errors.New("factorization failed")
	// ErrSolve reports a failure during a triangular solve.
	ErrSolve = errors.New("linear solve failed")
)

// Triplet is a square sparse matrix in coordinate form. Duplicate (row, col)
// entries are summed during assembly, so callers may simply append
// contributions. Dense problems fill all n² entries.
type Triplet struct {
	N    int
	Rows []int
	Cols []int
	Vals []float64
}

// NewTriplet allocates a Triplet for an n×n matrix with room for nnz entries.
func NewTriplet(n, nnz int) *Triplet {
	return &Triplet{
		N:    n,
		Rows: make([]int, 0, nnz),
		Cols: make([]int, 0, nnz),
		Vals: make([]float64, 0, nnz),
	}
}

// Put appends the entry (i, j) → v.
func (t *Triplet) Put(i, j int, v float64) {
	t.Rows = append(t.Rows, i)
	t.Cols = append(t.Cols, j)
	t.Vals = append(t.Vals, v)
}

// Reset discards all entries, keeping the allocated capacity.
func (t *Triplet) Reset() {
	t.Rows = t.Rows[:0]
	t.Cols = t.Cols[:0]
	t.Vals = t.Vals[:0]
}

// Len returns the number of stored entries.
func (t *Triplet) Len() int { return len(t.Vals) }

// RealFactorization is an opaque handle for a factorized real matrix
// fac·I − J. It stays valid until the owning Backend factorizes again with a
// different matrix; the integrator enforces that discipline.
type RealFactorization interface {
	// Solve solves (fac·I − J)·x = rhs, writing the solution into x.
	// rhs and x must both have length n and may not alias.
	Solve(rhs, x []float64) error
}

// ComplexFactorization is an opaque handle for a factorized complex matrix
// (alpha + i·beta)·I − J with real J.
type ComplexFactorization interface {
	// Solve solves ((alpha+i·beta)·I − J)·(x + i·y) = (re + i·im),
	// writing the solution into x and y. All slices must have length n.
	Solve(re, im, x, y []float64) error
}

// Backend factorizes the shifted iteration matrices of the Radau5
// transformation. Both calls are synchronous and must be deterministic for
// identical inputs. J is the Jacobian in triplet form; the backend builds
// the shifted matrix itself so that sparse implementations can assemble
// directly into their own storage.
type Backend interface {
	// FactorizeReal factorizes fac·I − J.
	FactorizeReal(jac *Triplet, fac float64) (RealFactorization, error)
	// FactorizeComplex factorizes (alpha + i·beta)·I − J.
	FactorizeComplex(jac *Triplet, alpha, beta float64) (ComplexFactorization, error)
}
