package radau

import (
	"fmt"
	"math"
	"time"

	"github.com/stiffode/stiffode/radau/linsolve"
)

// ErrorEstimate is the embedded-method local error verdict for one step
// attempt. Transient.
type ErrorEstimate struct {
	Norm   float64
	Accept bool // Norm ≤ 1
}

// errorEstimator computes the embedded order-3 error estimate through the
// real factorization and optionally applies one corrective re-evaluation to
// stabilize the estimate on very stiff steps, avoiding spurious rejections.
type errorEstimator struct {
	coef *coefficients
	n    int

	ee   []float64 // weighted stage combination (e·z)/h
	rhs  []float64
	sol  []float64
	yTmp []float64
	fTmp []float64
}

func newErrorEstimator(coef *coefficients, n int) *errorEstimator {
	return &errorEstimator{
		coef: coef,
		n:    n,
		ee:   make([]float64, n),
		rhs:  make([]float64, n),
		sol:  make([]float64, n),
		yTmp: make([]float64, n),
		fTmp: make([]float64, n),
	}
}

// estimate computes the scaled error norm for the attempt at (x, y, h) with
// converged stages z1..z3 and rhs value f0 at the step start. The refine flag
// enables the corrective iteration (first step, retry after rejection, or
// stiffness-flagged runs). Weights must already be updated for this attempt.
func (ee *errorEstimator) estimate(prob Problem, en *errorNorm, stats *Statistics,
	realF linsolve.RealFactorization, x, h float64,
	y, z1, z2, z3, f0 []float64, refine bool) (ErrorEstimate, error) {

	c := ee.coef
	for i := 0; i < ee.n; i++ {
		ee.ee[i] = (c.e1*z1[i] + c.e2*z2[i] + c.e3*z3[i]) / h
		ee.rhs[i] = ee.ee[i] + f0[i]
	}
	solveStart := time.Now()
	if err := realF.Solve(ee.rhs, ee.sol); err != nil {
		return ErrorEstimate{}, fmt.Errorf("error estimate solve: %w", err)
	}
	stats.LinearSolves++
	norm := math.Max(en.wrmsErr(ee.sol), 1e-10)

	if norm >= 1 && refine {
		// One Newton-like correction of the estimate: re-evaluate the rhs at
		// the perturbed solution and solve once more.
		for i := 0; i < ee.n; i++ {
			ee.yTmp[i] = y[i] + ee.sol[i]
		}
		if err := prob.Rhs(ee.fTmp, x, ee.yTmp); err != nil {
			return ErrorEstimate{}, fmt.Errorf("at x=%g: %v: %w", x, err, ErrRhsEvaluation)
		}
		stats.FunctionEvals++
		for i := 0; i < ee.n; i++ {
			ee.rhs[i] = ee.fTmp[i] + ee.ee[i]
		}
		if err := realF.Solve(ee.rhs, ee.sol); err != nil {
			return ErrorEstimate{}, fmt.Errorf("error estimate re-solve: %w", err)
		}
		stats.LinearSolves++
		norm = math.Max(en.wrmsErr(ee.sol), 1e-10)
	}
	stats.noteSolveTime(time.Since(solveStart))

	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		// Treated as a rejection with a large norm; the controller shrinks h.
		return ErrorEstimate{Norm: math.MaxFloat64, Accept: false}, nil
	}
	return ErrorEstimate{Norm: norm, Accept: norm <= 1}, nil
}
