package radau

import (
	"fmt"
	"math"
	"time"

	"github.com/stiffode/stiffode/radau/linsolve"
)

// NewtonVerdict classifies the outcome of one simplified-Newton attempt.
type NewtonVerdict int

const (
	// NewtonConverged means the contraction-scaled correction norm fell
	// below the Newton tolerance.
	NewtonConverged NewtonVerdict = iota
	// NewtonDiverged means the contraction rate reached 1, the correction
	// went non-finite, or divergence was predicted from the remaining
	// iteration budget.
	NewtonDiverged
	// NewtonStalled means the iteration budget was exhausted while still
	// contracting; the integrator treats it like divergence.
	NewtonStalled
)

func (v NewtonVerdict) String() string {
	switch v {
	case NewtonConverged:
		return "converged"
	case NewtonDiverged:
		return "diverged"
	case NewtonStalled:
		return "stalled"
	}
	return "unknown"
}

// NewtonRecord reports one simplified-Newton attempt. Transient: created and
// discarded each step attempt.
type NewtonRecord struct {
	Iterations int
	LastNorm   float64 // weighted norm of the last correction
	Rate       float64 // contraction rate estimate (theta)
	Verdict    NewtonVerdict

	// ShrinkFactor is the step-size factor suggested when divergence was
	// predicted from the contraction rate; 0 means no suggestion (halve).
	ShrinkFactor float64
}

// newtonSolver performs simplified-Newton iterations on the 3-stage
// collocation residual in the transformed variables W = T⁻¹·Z. The factorized
// matrices stay fixed for every correction solve within an attempt; that is
// what makes the iteration "simplified". Each iteration costs three rhs
// evaluations, one real solve, and one complex solve.
type newtonSolver struct {
	cfg  NewtonConfig
	coef *coefficients
	n    int
	tol  float64

	z1, z2, z3 []float64 // stage increments
	w1, w2, w3 []float64 // transformed stages
	r1, r2, r3 []float64 // transformed residuals (solver rhs)
	d1, d2, d3 []float64 // corrections
	yTmp       []float64
	f1, f2, f3 []float64

	// contraction bookkeeping carried across attempts within a run
	theta  float64
	faccon float64
	first  bool
}

func newNewtonSolver(cfg NewtonConfig, coef *coefficients, n int, tol float64) *newtonSolver {
	ns := &newtonSolver{cfg: cfg, coef: coef, n: n, tol: tol}
	ns.z1 = make([]float64, n)
	ns.z2 = make([]float64, n)
	ns.z3 = make([]float64, n)
	ns.w1 = make([]float64, n)
	ns.w2 = make([]float64, n)
	ns.w3 = make([]float64, n)
	ns.r1 = make([]float64, n)
	ns.r2 = make([]float64, n)
	ns.r3 = make([]float64, n)
	ns.d1 = make([]float64, n)
	ns.d2 = make([]float64, n)
	ns.d3 = make([]float64, n)
	ns.yTmp = make([]float64, n)
	ns.f1 = make([]float64, n)
	ns.f2 = make([]float64, n)
	ns.f3 = make([]float64, n)
	ns.reset()
	return ns
}

func (ns *newtonSolver) reset() {
	ns.theta = 0
	ns.faccon = 1
	ns.first = true
}

// rate returns the last contraction rate estimate, consumed by the Jacobian
// staleness policy.
func (ns *newtonSolver) rate() float64 { return ns.theta }

// prepare sets the stage start values for the next attempt: zero on the first
// step (or when configured), otherwise extrapolated from the previous
// accepted step's dense output evaluated at the new collocation points.
func (ns *newtonSolver) prepare(interp *DenseOutput, x, h float64, y []float64) {
	c := ns.coef
	if ns.first || ns.cfg.ZeroInitialGuess || !interp.current() {
		for i := 0; i < ns.n; i++ {
			ns.z1[i], ns.z2[i], ns.z3[i] = 0, 0, 0
			ns.w1[i], ns.w2[i], ns.w3[i] = 0, 0, 0
		}
		return
	}
	interp.evaluateUnchecked(ns.f1, x+c.c1*h)
	interp.evaluateUnchecked(ns.f2, x+c.c2*h)
	interp.evaluateUnchecked(ns.f3, x+h)
	for i := 0; i < ns.n; i++ {
		ns.z1[i] = ns.f1[i] - y[i]
		ns.z2[i] = ns.f2[i] - y[i]
		ns.z3[i] = ns.f3[i] - y[i]
		ns.w1[i] = c.ti11*ns.z1[i] + c.ti12*ns.z2[i] + c.ti13*ns.z3[i]
		ns.w2[i] = c.ti21*ns.z1[i] + c.ti22*ns.z2[i] + c.ti23*ns.z3[i]
		ns.w3[i] = c.ti31*ns.z1[i] + c.ti32*ns.z2[i] + c.ti33*ns.z3[i]
	}
}

// stages exposes the converged stage increments; z3 is the increment to the
// new solution y_new = y + z3.
func (ns *newtonSolver) stages() (z1, z2, z3 []float64) {
	return ns.z1, ns.z2, ns.z3
}

// iterate runs the simplified-Newton loop for one step attempt. A non-nil
// error is fatal (user callback or backend failure); recoverable outcomes are
// reported through the verdict.
func (ns *newtonSolver) iterate(prob Problem, en *errorNorm, stats *Statistics,
	realF linsolve.RealFactorization, cplxF linsolve.ComplexFactorization,
	x, h float64, y []float64) (NewtonRecord, error) {

	c := ns.coef
	n := ns.n
	nit := ns.cfg.MaxIterations
	fac1 := c.u1 / h
	alphn := c.alpha / h
	betan := c.beta / h

	if ns.first {
		ns.faccon = 1
	} else {
		ns.faccon = math.Pow(math.Max(ns.faccon, uround), 0.8)
	}

	rec := NewtonRecord{}
	dynOld := 0.0
	thqOld := 0.0

	for newt := 1; newt <= nit; newt++ {
		rec.Iterations = newt

		// rhs at the three stage points
		if ok, err := ns.evalStage(prob, stats, ns.f1, x+c.c1*h, y, ns.z1); err != nil {
			return rec, err
		} else if !ok {
			rec.Verdict = NewtonDiverged
			ns.theta = 2
			return rec, nil
		}
		if ok, err := ns.evalStage(prob, stats, ns.f2, x+c.c2*h, y, ns.z2); err != nil {
			return rec, err
		} else if !ok {
			rec.Verdict = NewtonDiverged
			ns.theta = 2
			return rec, nil
		}
		if ok, err := ns.evalStage(prob, stats, ns.f3, x+h, y, ns.z3); err != nil {
			return rec, err
		} else if !ok {
			rec.Verdict = NewtonDiverged
			ns.theta = 2
			return rec, nil
		}

		// transformed residuals: Ti·f minus the shifted W terms
		for i := 0; i < n; i++ {
			a1, a2, a3 := ns.f1[i], ns.f2[i], ns.f3[i]
			ns.r1[i] = c.ti11*a1 + c.ti12*a2 + c.ti13*a3 - fac1*ns.w1[i]
			ns.r2[i] = c.ti21*a1 + c.ti22*a2 + c.ti23*a3 - alphn*ns.w2[i] + betan*ns.w3[i]
			ns.r3[i] = c.ti31*a1 + c.ti32*a2 + c.ti33*a3 - betan*ns.w2[i] - alphn*ns.w3[i]
		}

		// correction solves with the fixed factorizations
		solveStart := time.Now()
		if err := realF.Solve(ns.r1, ns.d1); err != nil {
			return rec, fmt.Errorf("newton real solve: %w", err)
		}
		if err := cplxF.Solve(ns.r2, ns.r3, ns.d2, ns.d3); err != nil {
			return rec, fmt.Errorf("newton complex solve: %w", err)
		}
		stats.LinearSolves += 2
		stats.noteSolveTime(time.Since(solveStart))

		dyno := en.wrmsNewton3(ns.d1, ns.d2, ns.d3)
		rec.LastNorm = dyno
		if math.IsNaN(dyno) || math.IsInf(dyno, 0) {
			rec.Verdict = NewtonDiverged
			ns.theta = 2
			return rec, nil
		}

		// convergence-rate control
		if newt > 1 && newt < nit {
			thq := dyno / dynOld
			if newt == 2 {
				ns.theta = thq
			} else {
				ns.theta = math.Sqrt(thq * thqOld)
			}
			thqOld = thq
			if ns.theta >= 0.99 {
				rec.Rate = ns.theta
				rec.Verdict = NewtonDiverged
				return rec, nil
			}
			ns.faccon = ns.theta / (1 - ns.theta)
			// projected final correction under the current rate
			dyth := ns.faccon * dyno * math.Pow(ns.theta, float64(nit-1-newt)) / ns.tol
			if dyth >= 1 {
				qnewt := math.Max(1e-4, math.Min(20, dyth))
				rec.Rate = ns.theta
				rec.Verdict = NewtonDiverged
				rec.ShrinkFactor = 0.8 * math.Pow(qnewt, -1.0/float64(4+nit-1-newt))
				return rec, nil
			}
		}
		dynOld = math.Max(dyno, uround)

		// update W then map back to the stage increments Z = T·W
		for i := 0; i < n; i++ {
			ns.w1[i] += ns.d1[i]
			ns.w2[i] += ns.d2[i]
			ns.w3[i] += ns.d3[i]
			ns.z1[i] = c.t11*ns.w1[i] + c.t12*ns.w2[i] + c.t13*ns.w3[i]
			ns.z2[i] = c.t21*ns.w1[i] + c.t22*ns.w2[i] + c.t23*ns.w3[i]
			ns.z3[i] = c.t31*ns.w1[i] + ns.w2[i]
		}

		if ns.faccon*dyno <= ns.tol {
			rec.Rate = ns.theta
			rec.Verdict = NewtonConverged
			ns.first = false
			return rec, nil
		}
	}

	rec.Rate = ns.theta
	rec.Verdict = NewtonStalled
	return rec, nil
}

// evalStage computes f(xs, y+z) into f. Returns ok=false on non-finite
// output, which the caller treats as divergence; a callback error is fatal.
func (ns *newtonSolver) evalStage(prob Problem, stats *Statistics, f []float64, xs float64, y, z []float64) (bool, error) {
	for i := 0; i < ns.n; i++ {
		ns.yTmp[i] = y[i] + z[i]
	}
	if err := prob.Rhs(f, xs, ns.yTmp); err != nil {
		return false, fmt.Errorf("at x=%g: %v: %w", xs, err, ErrRhsEvaluation)
	}
	stats.FunctionEvals++
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false, nil
		}
	}
	return true, nil
}

const uround = 2.220446049250313e-16
