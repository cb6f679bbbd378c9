package radau

import (
	"fmt"
	"math"
	"time"

	"github.com/stiffode/stiffode/radau/linsolve"
)

// iterationMatrixBuilder assembles the real shifted matrix (u1/h)·I − J and
// the complex-conjugate pair ((alpha+i·beta)/h)·I − J, delegating the actual
// factorization to the linear-solver backend. Handles are cached keyed by
// Jacobian version and h within the relative tolerance EpsilonH; skipping
// re-factorization when both are unchanged is the single largest
// cost-avoidance mechanism in the solver.
type iterationMatrixBuilder struct {
	backend linsolve.Backend
	coef    *coefficients
	epsH    float64
	stats   *Statistics

	real    linsolve.RealFactorization
	complex linsolve.ComplexFactorization

	cachedH       float64
	cachedVersion uint64

	// reused reports whether the last buildAndFactorize call hit the cache.
	reused bool
}

func newIterationMatrixBuilder(b linsolve.Backend, coef *coefficients, epsH float64, stats *Statistics) *iterationMatrixBuilder {
	return &iterationMatrixBuilder{backend: b, coef: coef, epsH: epsH, stats: stats}
}

// buildAndFactorize ensures factorized handles exist for (jac, h).
func (mb *iterationMatrixBuilder) buildAndFactorize(jac *linsolve.Triplet, version uint64, h float64) error {
	if mb.real != nil && version == mb.cachedVersion &&
		math.Abs(h-mb.cachedH) <= mb.epsH*math.Abs(mb.cachedH) {
		mb.reused = true
		return nil
	}
	mb.reused = false
	start := time.Now()
	rf, err := mb.backend.FactorizeReal(jac, mb.coef.u1/h)
	if err != nil {
		mb.invalidate()
		return fmt.Errorf("h=%g: %w", h, err)
	}
	cf, err := mb.backend.FactorizeComplex(jac, mb.coef.alpha/h, mb.coef.beta/h)
	if err != nil {
		mb.invalidate()
		return fmt.Errorf("h=%g: %w", h, err)
	}
	mb.stats.Factorizations++
	mb.stats.noteFactorTime(time.Since(start))
	mb.real = rf
	mb.complex = cf
	mb.cachedH = h
	mb.cachedVersion = version
	return nil
}

// invalidate drops both handles; called whenever the Jacobian is refreshed.
func (mb *iterationMatrixBuilder) invalidate() {
	mb.real = nil
	mb.complex = nil
	mb.reused = false
}

func (mb *iterationMatrixBuilder) factors() (linsolve.RealFactorization, linsolve.ComplexFactorization) {
	return mb.real, mb.complex
}
