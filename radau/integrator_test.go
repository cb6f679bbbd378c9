package radau

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stiffode/stiffode/radau/linsolve"
	"github.com/stiffode/stiffode/radau/trace"
)

// decayProblem builds y' = -lambda*y with the exact Jacobian.
func decayProblem(lambda float64) *FuncProblem {
	return &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, y []float64) error {
			f[0] = -lambda * y[0]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
			jac.Put(0, 0, -lambda)
			return nil
		},
		Nnz: 1,
	}
}

// stiffPairProblem is a 2x2 linear system with eigenvalues -1 and -1000:
// A = [[-500.5, 499.5], [499.5, -500.5]].
func stiffPairProblem() *FuncProblem {
	return &FuncProblem{
		N: 2,
		RhsFunc: func(f []float64, x float64, y []float64) error {
			f[0] = -500.5*y[0] + 499.5*y[1]
			f[1] = 499.5*y[0] - 500.5*y[1]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
			jac.Put(0, 0, -500.5)
			jac.Put(0, 1, 499.5)
			jac.Put(1, 0, 499.5)
			jac.Put(1, 1, -500.5)
			return nil
		},
	}
}

func runDecay(t *testing.T, lambda, xEnd float64, cfg Config) (*trace.RunTrace, *Integrator) {
	t.Helper()
	in, err := New(decayProblem(lambda), linsolve.NewDense(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt, err := in.Run(context.Background(), 0, []float64{1}, xEnd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rt, in
}

// TestIntegrator_DecayAccuracyTracksTolerance integrates y' = -50y and checks
// that the achieved error shrinks as the tolerances tighten, and that every
// accepted step satisfied the error predicate.
func TestIntegrator_DecayAccuracyTracksTolerance(t *testing.T) {
	const lambda = 50.0
	const xEnd = 0.5

	maxErr := func(tol float64) float64 {
		cfg := DefaultConfig()
		cfg.Tolerances.AbsTol = tol
		cfg.Tolerances.RelTol = tol
		rt, _ := runDecay(t, lambda, xEnd, cfg)
		if len(rt.Steps) == 0 {
			t.Fatal("empty trace")
		}
		worst := 0.0
		for _, rec := range rt.Steps {
			if rec.ErrorNorm > 1 {
				t.Errorf("accepted step %d has error norm %g > 1", rec.Index, rec.ErrorNorm)
			}
			e := math.Abs(rec.Y[0] - math.Exp(-lambda*rec.X))
			if e > worst {
				worst = e
			}
		}
		last := rt.Last()
		if last.X != xEnd {
			t.Errorf("final x = %v, want exactly %v", last.X, xEnd)
		}
		return worst
	}

	e4 := maxErr(1e-4)
	e8 := maxErr(1e-8)
	if e8 > e4 {
		t.Errorf("tighter tolerance got worse: err(1e-8)=%g > err(1e-4)=%g", e8, e4)
	}
	if e8 > 1e-6 {
		t.Errorf("err(1e-8) = %g, want below 1e-6", e8)
	}
}

// TestIntegrator_RepeatedRunsAreIdentical verifies bitwise determinism: two
// runs with identical inputs produce identical trajectories and counters.
func TestIntegrator_RepeatedRunsAreIdentical(t *testing.T) {
	cfg := DefaultConfig()
	rt1, in1 := runDecay(t, 20, 1.0, cfg)
	rt2, in2 := runDecay(t, 20, 1.0, cfg)

	if len(rt1.Steps) != len(rt2.Steps) {
		t.Fatalf("step counts differ: %d vs %d", len(rt1.Steps), len(rt2.Steps))
	}
	for i := range rt1.Steps {
		a, b := rt1.Steps[i], rt2.Steps[i]
		if a.X != b.X || a.H != b.H || a.ErrorNorm != b.ErrorNorm || a.Y[0] != b.Y[0] {
			t.Errorf("step %d differs: %+v vs %+v", i, a, b)
		}
	}

	s1, s2 := in1.Stats(), in2.Stats()
	s1.StepTimeMax, s2.StepTimeMax = 0, 0
	s1.JacobianTimeMax, s2.JacobianTimeMax = 0, 0
	s1.FactorTimeMax, s2.FactorTimeMax = 0, 0
	s1.SolveTimeMax, s2.SolveTimeMax = 0, 0
	s1.TotalTime, s2.TotalTime = 0, 0
	if s1 != s2 {
		t.Errorf("statistics differ:\n%+v\n%+v", s1, s2)
	}
}

// TestIntegrator_FixedStepReusesFactorization pins h so that the constant
// Jacobian and unchanged step size let every step after the first reuse the
// cached factorization.
func TestIntegrator_FixedStepReusesFactorization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Step.InitialStep = 0.01
	cfg.Step.MaxStep = 0.01

	rt, in := runDecay(t, 1, 0.2, cfg)
	stats := in.Stats()

	if stats.RejectedSteps != 0 {
		t.Errorf("RejectedSteps = %d, want 0", stats.RejectedSteps)
	}
	if stats.AcceptedSteps != 20 {
		t.Errorf("AcceptedSteps = %d, want 20", stats.AcceptedSteps)
	}
	if stats.Factorizations != 1 {
		t.Errorf("Factorizations = %d, want 1 (full reuse)", stats.Factorizations)
	}
	sum := rt.Summarize()
	if sum.Refactorizations != 1 {
		t.Errorf("trace refactorizations = %d, want 1", sum.Refactorizations)
	}
	if sum.JacobianRefreshes != 1 {
		t.Errorf("trace jacobian refreshes = %d, want 1", sum.JacobianRefreshes)
	}
}

// TestIntegrator_SampleMatchesTraceEndpoints checks the dense output against
// both grid points of the last accepted step.
func TestIntegrator_SampleMatchesTraceEndpoints(t *testing.T) {
	rt, in := runDecay(t, 5, 1.0, DefaultConfig())
	if len(rt.Steps) < 2 {
		t.Fatalf("need at least 2 steps, got %d", len(rt.Steps))
	}
	last := rt.Steps[len(rt.Steps)-1]
	prev := rt.Steps[len(rt.Steps)-2]

	out := make([]float64, 1)
	if err := in.Sample(out, last.X); err != nil {
		t.Fatalf("sample at right endpoint: %v", err)
	}
	if out[0] != last.Y[0] {
		t.Errorf("P(xEnd) = %v, want exactly %v", out[0], last.Y[0])
	}

	if err := in.Sample(out, prev.X); err != nil {
		t.Fatalf("sample at left endpoint: %v", err)
	}
	if math.Abs(out[0]-prev.Y[0]) > 1e-12 {
		t.Errorf("P(x_prev) = %v, want %v", out[0], prev.Y[0])
	}

	if err := in.Sample(out, prev.X-last.H); err == nil {
		t.Error("sampling before the last step's span should fail")
	}
}

// TestIntegrator_StiffTransientRejectsThenRecovers starts a stiff 2x2 system
// with an oversized first step: the controller must reject, shrink, and still
// reach the end accurately.
func TestIntegrator_StiffTransientRejectsThenRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Step.InitialStep = 0.1

	in, err := New(stiffPairProblem(), linsolve.NewDense(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt, err := in.Run(context.Background(), 0, []float64{2, 0}, 1.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := in.Stats()
	if stats.RejectedSteps < 1 {
		t.Errorf("RejectedSteps = %d, want at least 1", stats.RejectedSteps)
	}

	// y(1) = e^{-1}·[1,1] once the e^{-1000x} mode has died
	want := math.Exp(-1)
	last := rt.Last()
	if last == nil {
		t.Fatal("empty trace")
	}
	for i := 0; i < 2; i++ {
		if math.Abs(last.Y[i]-want) > 1e-3 {
			t.Errorf("y[%d](1) = %v, want %v", i, last.Y[i], want)
		}
	}
}

// TestIntegrator_JacobianFailureKeepsPartialTrace forces a Jacobian refresh
// every step and fails the second evaluation with a non-finite entry.
func TestIntegrator_JacobianFailureKeepsPartialTrace(t *testing.T) {
	calls := 0
	prob := &FuncProblem{
		N: 1,
		RhsFunc: func(f []float64, x float64, y []float64) error {
			f[0] = -y[0]
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
			calls++
			if calls >= 2 {
				jac.Put(0, 0, math.NaN())
				return nil
			}
			jac.Put(0, 0, -1)
			return nil
		},
	}
	cfg := DefaultConfig()
	cfg.Jacobian.MaxStepAge = 1

	in, err := New(prob, linsolve.NewDense(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt, err := in.Run(context.Background(), 0, []float64{1}, 10.0)

	if !errors.Is(err, ErrJacobianEvaluation) {
		t.Errorf("error = %v, want ErrJacobianEvaluation", err)
	}
	if !errors.Is(err, ErrUserCallback) {
		t.Errorf("error = %v, want ErrUserCallback ancestry", err)
	}
	if len(rt.Steps) == 0 {
		t.Error("partial trace is empty, want the accepted steps before the failure")
	}
}

func TestIntegrator_MaxStepsAborts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Step.MaxStep = 1e-4
	cfg.MaxSteps = 3

	in, err := New(decayProblem(1), linsolve.NewDense(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt, err := in.Run(context.Background(), 0, []float64{1}, 1.0)
	if !errors.Is(err, ErrMaxSteps) {
		t.Errorf("error = %v, want ErrMaxSteps", err)
	}
	if len(rt.Steps) == 0 {
		t.Error("partial trace is empty")
	}
}

func TestIntegrator_CanceledContextAborts(t *testing.T) {
	in, err := New(decayProblem(1), linsolve.NewDense(), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = in.Run(ctx, 0, []float64{1}, 1.0)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Errorf("error = %v, want ErrDeadlineExceeded", err)
	}
}

func TestIntegrator_SampleBeforeRunIsStale(t *testing.T) {
	in, err := New(decayProblem(1), linsolve.NewDense(), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := make([]float64, 1)
	if err := in.Sample(out, 0.5); !errors.Is(err, ErrStaleInterpolant) {
		t.Errorf("error = %v, want ErrStaleInterpolant", err)
	}
}

func TestIntegrator_OnStepAbortPropagates(t *testing.T) {
	abort := errors.New("observer said stop")
	seen := 0
	cfg := DefaultConfig()
	cfg.Output.OnStep = func(step int, x float64, y []float64) error {
		seen++
		if step == 2 {
			return abort
		}
		return nil
	}

	in, err := New(decayProblem(1), linsolve.NewDense(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt, err := in.Run(context.Background(), 0, []float64{1}, 1.0)
	if !errors.Is(err, abort) {
		t.Errorf("error = %v, want the callback error", err)
	}
	if seen != 2 {
		t.Errorf("callback ran %d times, want 2", seen)
	}
	if len(rt.Steps) != 2 {
		t.Errorf("trace has %d steps, want 2", len(rt.Steps))
	}
}

// TestIntegrator_DenseGridFollowsSolution emits equidistant samples and checks
// them against the analytic solution.
func TestIntegrator_DenseGridFollowsSolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.DenseSpacing = 0.1

	rt, _ := runDecay(t, 1, 1.0, cfg)
	if len(rt.Dense) != 11 {
		t.Fatalf("dense points = %d, want 11", len(rt.Dense))
	}
	for k, p := range rt.Dense {
		wantX := 0.1 * float64(k)
		if math.Abs(p.X-wantX) > 1e-12 {
			t.Errorf("dense[%d].X = %v, want %v", k, p.X, wantX)
		}
		want := math.Exp(-p.X)
		if math.Abs(p.Y[0]-want) > 1e-4 {
			t.Errorf("dense[%d] = %v at x=%v, want %v", k, p.Y[0], p.X, want)
		}
	}
}

func TestIntegrator_InputValidation(t *testing.T) {
	in, err := New(decayProblem(1), linsolve.NewDense(), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := in.Run(context.Background(), 0, []float64{1, 2}, 1.0); err == nil {
		t.Error("wrong y0 length accepted")
	}
	if _, err := in.Run(context.Background(), 1.0, []float64{1}, 0.5); err == nil {
		t.Error("xEnd <= x0 accepted")
	}

	bad := DefaultConfig()
	bad.Tolerances.RelTol = -1
	if _, err := New(decayProblem(1), linsolve.NewDense(), bad); err == nil {
		t.Error("invalid configuration accepted")
	}
}
