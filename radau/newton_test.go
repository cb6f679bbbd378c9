package radau

import (
	"errors"
	"math"
	"testing"

	"github.com/stiffode/stiffode/radau/linsolve"
)

// stabilityR is the rational stability function of the 3-stage Radau IIA
// method; one exact step of y' = λy from y produces R(hλ)·y.
func stabilityR(z float64) float64 {
	num := 1 + 2*z/5 + z*z/20
	den := 1 - 3*z/5 + 3*z*z/20 - z*z*z/60
	return num / den
}

func newtonFixture(t *testing.T, prob Problem, y []float64, h float64) (*newtonSolver, *errorNorm, *Statistics, linsolve.RealFactorization, linsolve.ComplexFactorization) {
	t.Helper()
	cfg := DefaultConfig()
	coef := newCoefficients()
	n := prob.Dim()

	jac := linsolve.NewTriplet(n, n*n)
	if err := prob.Jacobian(jac, 0, y); err != nil {
		t.Fatalf("jacobian: %v", err)
	}
	backend := linsolve.NewDense()
	realF, err := backend.FactorizeReal(jac, coef.u1/h)
	if err != nil {
		t.Fatalf("factorize real: %v", err)
	}
	cplxF, err := backend.FactorizeComplex(jac, coef.alpha/h, coef.beta/h)
	if err != nil {
		t.Fatalf("factorize complex: %v", err)
	}

	ns := newNewtonSolver(cfg.Newton, coef, n, cfg.newtonTolerance())
	en := newErrorNorm(cfg.Tolerances, n)
	en.updateNewtonWeights(y)
	var stats Statistics
	return ns, en, &stats, realF, cplxF
}

// TestNewtonSolver_LinearProblemMatchesStabilityFunction verifies that the
// converged stages reproduce the exact Radau IIA step on y' = λy.
func TestNewtonSolver_LinearProblemMatchesStabilityFunction(t *testing.T) {
	// GIVEN y' = -2y, y(0) = 1, h = 0.1
	lambda := -2.0
	h := 0.1
	y := []float64{1}
	prob := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, yy []float64) error {
			f[0] = lambda * yy[0]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, yy []float64) error {
			jac.Put(0, 0, lambda)
			return nil
		},
	}
	ns, en, stats, realF, cplxF := newtonFixture(t, prob, y, h)

	// WHEN the simplified-Newton iteration runs with an exact Jacobian
	ns.prepare(newDenseOutput(newCoefficients(), 1), 0, h, y)
	rec, err := ns.iterate(prob, en, stats, realF, cplxF, 0, h, y)

	// THEN it converges and y + z3 equals R(hλ)·y
	if err != nil {
		t.Fatalf("iterate: unexpected error %v", err)
	}
	if rec.Verdict != NewtonConverged {
		t.Fatalf("verdict = %v, want converged", rec.Verdict)
	}
	_, _, z3 := ns.stages()
	got := y[0] + z3[0]
	want := stabilityR(h * lambda)
	if math.Abs(got-want) > 1e-10 {
		t.Errorf("y_new = %.15f, want R(hλ) = %.15f", got, want)
	}
	if stats.FunctionEvals != 3*rec.Iterations {
		t.Errorf("FunctionEvals = %d, want %d (3 per iteration)", stats.FunctionEvals, 3*rec.Iterations)
	}
	if stats.LinearSolves != 2*rec.Iterations {
		t.Errorf("LinearSolves = %d, want %d (real + complex per iteration)", stats.LinearSolves, 2*rec.Iterations)
	}
}

// TestNewtonSolver_NonlinearProblemConverges verifies contraction on a
// nonlinear rhs.
func TestNewtonSolver_NonlinearProblemConverges(t *testing.T) {
	h := 0.05
	y := []float64{1}
	prob := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, yy []float64) error {
			f[0] = -yy[0] * yy[0]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, yy []float64) error {
			jac.Put(0, 0, -2*yy[0])
			return nil
		},
	}
	ns, en, stats, realF, cplxF := newtonFixture(t, prob, y, h)

	ns.prepare(newDenseOutput(newCoefficients(), 1), 0, h, y)
	rec, err := ns.iterate(prob, en, stats, realF, cplxF, 0, h, y)

	if err != nil {
		t.Fatalf("iterate: unexpected error %v", err)
	}
	if rec.Verdict != NewtonConverged {
		t.Fatalf("verdict = %v, want converged", rec.Verdict)
	}
	// exact solution of y' = -y² is 1/(1+x); the stage increment must land
	// near it even before error control
	_, _, z3 := ns.stages()
	got := y[0] + z3[0]
	want := 1.0 / (1.0 + h)
	if math.Abs(got-want) > 1e-8 {
		t.Errorf("y_new = %v, want ≈ %v", got, want)
	}
}

// TestNewtonSolver_NonFiniteRhsIsDivergence verifies that a non-finite stage
// evaluation rejects recoverably instead of failing the run.
func TestNewtonSolver_NonFiniteRhsIsDivergence(t *testing.T) {
	h := 0.1
	y := []float64{1}
	lin := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, yy []float64) error {
			f[0] = -yy[0]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, yy []float64) error {
			jac.Put(0, 0, -1)
			return nil
		},
	}
	ns, en, stats, realF, cplxF := newtonFixture(t, lin, y, h)

	bad := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, yy []float64) error {
			f[0] = math.NaN()
			return nil
		},
		JacFunc: lin.JacFunc,
	}
	ns.prepare(newDenseOutput(newCoefficients(), 1), 0, h, y)
	rec, err := ns.iterate(bad, en, stats, realF, cplxF, 0, h, y)

	if err != nil {
		t.Fatalf("iterate: unexpected fatal error %v", err)
	}
	if rec.Verdict != NewtonDiverged {
		t.Errorf("verdict = %v, want diverged", rec.Verdict)
	}
}

// TestNewtonSolver_CallbackErrorIsFatal verifies user-callback failure
// propagation.
func TestNewtonSolver_CallbackErrorIsFatal(t *testing.T) {
	h := 0.1
	y := []float64{1}
	lin := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, yy []float64) error {
			f[0] = -yy[0]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, yy []float64) error {
			jac.Put(0, 0, -1)
			return nil
		},
	}
	ns, en, stats, realF, cplxF := newtonFixture(t, lin, y, h)

	bad := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, yy []float64) error {
			return errors.New("model blew up")
		},
		JacFunc: lin.JacFunc,
	}
	ns.prepare(newDenseOutput(newCoefficients(), 1), 0, h, y)
	_, err := ns.iterate(bad, en, stats, realF, cplxF, 0, h, y)

	if !errors.Is(err, ErrRhsEvaluation) {
		t.Errorf("error = %v, want ErrRhsEvaluation", err)
	}
	if !errors.Is(err, ErrUserCallback) {
		t.Errorf("error = %v, want ErrUserCallback ancestry", err)
	}
}
