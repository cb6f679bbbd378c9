package linsolve

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dense is a Backend using gonum's dense LU factorization. The complex-pair
// matrix is factorized through its 2n×2n real embedding
//
//	[ A  -B ] [x]   [re]
//	[ B   A ] [y] = [im]
//
// with A = alpha·I − J and B = beta·I, which keeps the whole backend on one
// real LU kernel.
type Dense struct{}

// NewDense returns a dense LU backend.
func NewDense() *Dense { return &Dense{} }

func (d *Dense) FactorizeReal(jac *Triplet, fac float64) (RealFactorization, error) {
	n := jac.N
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, fac)
	}
	for k, v := range jac.Vals {
		i, j := jac.Rows[k], jac.Cols[k]
		m.Set(i, j, m.At(i, j)-v)
	}
	lu := &luFactors{n: n}
	lu.lu.Factorize(m)
	if singularLU(&lu.lu) {
		return nil, fmt.Errorf("real iteration matrix (fac=%g): %w", fac, ErrSingular)
	}
	return lu, nil
}

func (d *Dense) FactorizeComplex(jac *Triplet, alpha, beta float64) (ComplexFactorization, error) {
	n := jac.N
	m := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, alpha)
		m.Set(n+i, n+i, alpha)
		m.Set(i, n+i, -beta)
		m.Set(n+i, i, beta)
	}
	for k, v := range jac.Vals {
		i, j := jac.Rows[k], jac.Cols[k]
		m.Set(i, j, m.At(i, j)-v)
		m.Set(n+i, n+j, m.At(n+i, n+j)-v)
	}
	lu := &luPairFactors{n: n}
	lu.lu.Factorize(m)
	if singularLU(&lu.lu) {
		return nil, fmt.Errorf("complex iteration matrix (alpha=%g beta=%g): %w", alpha, beta, ErrSingular)
	}
	return lu, nil
}

// singularLU reports whether a factorized LU is numerically singular.
// LogDet returns -Inf for an exactly singular matrix and NaN when the
// factorization produced non-finite pivots.
func singularLU(lu *mat.LU) bool {
	logDet, sign := lu.LogDet()
	return sign == 0 || math.IsInf(logDet, -1) || math.IsNaN(logDet)
}

type luFactors struct {
	n  int
	lu mat.LU
}

func (f *luFactors) Solve(rhs, x []float64) error {
	dst := mat.NewVecDense(f.n, x)
	if err := f.lu.SolveVecTo(dst, false, mat.NewVecDense(f.n, rhs)); err != nil {
		if _, nearSingular := err.(mat.Condition); !nearSingular {
			return fmt.Errorf("dense real solve: %v: %w", err, ErrSolve)
		}
		// Ill-conditioned but solved; the step controller copes by shrinking h.
	}
	return nil
}

type luPairFactors struct {
	n   int
	lu  mat.LU
	rhs []float64
	sol []float64
}

func (f *luPairFactors) Solve(re, im, x, y []float64) error {
	if f.rhs == nil {
		f.rhs = make([]float64, 2*f.n)
		f.sol = make([]float64, 2*f.n)
	}
	copy(f.rhs[:f.n], re)
	copy(f.rhs[f.n:], im)
	dst := mat.NewVecDense(2*f.n, f.sol)
	if err := f.lu.SolveVecTo(dst, false, mat.NewVecDense(2*f.n, f.rhs)); err != nil {
		if _, nearSingular := err.(mat.Condition); !nearSingular {
			return fmt.Errorf("dense complex solve: %v: %w", err, ErrSolve)
		}
	}
	copy(x, f.sol[:f.n])
	copy(y, f.sol[f.n:])
	return nil
}
