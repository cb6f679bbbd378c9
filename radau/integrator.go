package radau

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stiffode/stiffode/radau/linsolve"
	"github.com/stiffode/stiffode/radau/trace"
)

// Integrator drives adaptive Radau IIA (order 5) steps for stiff ODE systems.
// It owns the integration state (x, y, h) and the statistics counters, and
// coordinates the Jacobian cache, iteration-matrix factorization, Newton
// iteration, error estimation, step control, and dense output. One Integrator
// serves one run at a time; it is single-threaded and sequential, and a step
// fully resolves (accept or reject) before the next begins.
type Integrator struct {
	cfg     Config
	problem Problem
	backend linsolve.Backend
	n       int

	coef       *coefficients
	norm       *errorNorm
	jm         *jacobianManager
	builder    *iterationMatrixBuilder
	newton     *newtonSolver
	estimator  *errorEstimator
	controller *stepController
	interp     *DenseOutput

	stats Statistics

	x         float64
	y         []float64
	h, hPrev  float64
	stepIndex int

	f0   []float64 // rhs at (x, y), maintained across accepted steps
	yNew []float64
}

// New constructs an Integrator for the problem with the given linear-solver
// backend and configuration. The configuration is copied and never mutated.
func New(problem Problem, backend linsolve.Backend, cfg Config) (*Integrator, error) {
	n := problem.Dim()
	if err := cfg.Validate(n); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	coef := newCoefficients()
	in := &Integrator{
		cfg:     cfg,
		problem: problem,
		backend: backend,
		n:       n,
		coef:    coef,
		norm:    newErrorNorm(cfg.Tolerances, n),
		y:       make([]float64, n),
		f0:      make([]float64, n),
		yNew:    make([]float64, n),
	}
	in.jm = newJacobianManager(problem, cfg.Jacobian, &in.stats)
	in.builder = newIterationMatrixBuilder(backend, coef, cfg.Step.EpsilonH, &in.stats)
	in.newton = newNewtonSolver(cfg.Newton, coef, n, cfg.newtonTolerance())
	in.estimator = newErrorEstimator(coef, n)
	in.controller = newStepController(cfg.Step, cfg.Stiffness, cfg.Newton.MaxIterations)
	in.interp = newDenseOutput(coef, n)
	return in, nil
}

// Stats returns a copy of the statistics of the current or most recent run.
func (in *Integrator) Stats() Statistics { return in.stats }

// Interpolant exposes the dense output of the most recent accepted step.
func (in *Integrator) Interpolant() *DenseOutput { return in.interp }

// Sample evaluates the dense output of the most recent accepted step at x.
// Valid only immediately after a run; fails with ErrStaleInterpolant outside
// the last step's span or before any step was accepted.
func (in *Integrator) Sample(out []float64, x float64) error {
	return in.interp.Evaluate(out, x)
}

// StiffnessRatio returns the diagnostic ratio of Newton iterations used to
// the iteration budget, averaged over the configured window.
func (in *Integrator) StiffnessRatio() float64 { return in.controller.StiffnessRatio() }

// Run integrates from (x0, y0) to xEnd and returns the accepted trajectory.
// On a fatal error the partial trajectory computed so far is returned
// together with the terminating error; recoverable conditions (rejections,
// Newton divergence) are contained inside the step loop. Cancellation via ctx
// is cooperative, checked once per step attempt.
func (in *Integrator) Run(ctx context.Context, x0 float64, y0 []float64, xEnd float64) (*trace.RunTrace, error) {
	rt := trace.NewRunTrace()
	if len(y0) != in.n {
		return rt, fmt.Errorf("y0 has length %d, want %d", len(y0), in.n)
	}
	if xEnd <= x0 {
		return rt, fmt.Errorf("xEnd=%g must exceed x0=%g", xEnd, x0)
	}

	runStart := time.Now()
	in.stats.reset()
	in.newton.reset()
	in.controller.start(x0, xEnd)
	in.jm.invalidate()
	in.builder.invalidate()
	in.interp.invalidate()
	in.x = x0
	copy(in.y, y0)
	in.hPrev = 0
	in.stepIndex = 0

	logrus.Infof("radau: starting run over [%g, %g], n=%d", x0, xEnd, in.n)

	if err := in.evalRhsAtState(); err != nil {
		return rt, in.fail(runStart, err)
	}

	h := in.cfg.Step.InitialStep
	if h <= 0 {
		est, err := in.estimateInitialStep(x0, xEnd)
		if err != nil {
			return rt, in.fail(runStart, err)
		}
		h = est
	}
	in.h = math.Min(math.Min(h, in.controller.hMax), xEnd-x0)
	logrus.Debugf("radau: initial step size h=%g", in.h)

	spacing := in.cfg.Output.DenseSpacing
	nextDense := x0 + spacing
	if spacing > 0 {
		rt.RecordDense(x0, append([]float64(nil), y0...))
	}

	divergences := 0
	singularRetries := 0

	for in.x < xEnd {
		if in.stats.Steps >= in.cfg.MaxSteps {
			return rt, in.fail(runStart, fmt.Errorf("%d attempts: %w", in.stats.Steps, ErrMaxSteps))
		}
		select {
		case <-ctx.Done():
			return rt, in.fail(runStart, fmt.Errorf("%v: %w", ctx.Err(), ErrDeadlineExceeded))
		default:
		}

		last := false
		if in.x+1.0001*in.h >= xEnd {
			in.h = xEnd - in.x
			last = true
		}

		stepStart := time.Now()
		in.stats.Steps++

		// Jacobian staleness and re-factorization
		jacFresh := false
		if in.jm.needsRefresh(in.newton.rate()) {
			if err := in.jm.refresh(in.x, in.y); err != nil {
				return rt, in.fail(runStart, err)
			}
			in.builder.invalidate()
			jacFresh = true
		}
		jac, version := in.jm.current()
		if err := in.builder.buildAndFactorize(jac, version, in.h); err != nil {
			if singularRetries < 1 &&
				(errors.Is(err, linsolve.ErrSingular) || errors.Is(err, linsolve.ErrFactorize)) {
				singularRetries++
				logrus.Warnf("[step %04d] factorization failed at h=%g, retrying with h/2: %v",
					in.stats.Steps, in.h, err)
				in.h *= 0.5
				continue
			}
			return rt, in.fail(runStart, err)
		}
		singularRetries = 0
		refactorized := !in.builder.reused

		// simplified-Newton iteration on the stage equations
		in.norm.updateNewtonWeights(in.y)
		in.newton.prepare(in.interp, in.x, in.h, in.y)
		realF, cplxF := in.builder.factors()
		rec, err := in.newton.iterate(in.problem, in.norm, &in.stats, realF, cplxF, in.x, in.h, in.y)
		if err != nil {
			return rt, in.fail(runStart, err)
		}
		in.stats.noteNewtonIterations(rec.Iterations)

		if rec.Verdict != NewtonConverged {
			divergences++
			if divergences >= 2 {
				in.jm.forceStale()
			}
			in.stats.RejectedSteps++
			hNext, cerr := in.controller.onDiverged(in.h, rec.ShrinkFactor)
			logrus.Debugf("[step %04d] newton %s after %d iterations at x=%g, h %g -> %g",
				in.stats.Steps, rec.Verdict, rec.Iterations, in.x, in.h, hNext)
			if cerr != nil {
				return rt, in.fail(runStart, cerr)
			}
			in.h = hNext
			in.stats.noteStepTime(time.Since(stepStart))
			continue
		}
		divergences = 0

		// embedded error estimate
		z1, z2, z3 := in.newton.stages()
		for i := 0; i < in.n; i++ {
			in.yNew[i] = in.y[i] + z3[i]
		}
		in.norm.updateErrorWeights(in.y, in.yNew)
		est, err := in.estimator.estimate(in.problem, in.norm, &in.stats, realF,
			in.x, in.h, in.y, z1, z2, z3, in.f0, in.controller.refine())
		if err != nil {
			return rt, in.fail(runStart, err)
		}

		if !est.Accept {
			in.stats.RejectedSteps++
			hNext, cerr := in.controller.onRejected(in.h, est.Norm)
			logrus.Debugf("[step %04d] rejected at x=%g: err=%g, h %g -> %g",
				in.stats.Steps, in.x, est.Norm, in.h, hNext)
			if cerr != nil {
				return rt, in.fail(runStart, cerr)
			}
			in.h = hNext
			in.stats.noteStepTime(time.Since(stepStart))
			continue
		}

		// acceptance: advance state, rebuild the interpolant, emit outputs
		hUsed := in.h
		hNext := in.controller.onAccepted(hUsed, est.Norm, rec.Iterations)
		newX := in.x + hUsed
		if last {
			newX = xEnd
		}
		in.interp.update(in.yNew, newX, hUsed, z1, z2, z3)
		copy(in.y, in.yNew)
		in.x = newX
		in.hPrev = hUsed
		in.stepIndex++
		in.jm.markAccepted()
		in.stats.AcceptedSteps++
		in.stats.LastStepSize = hUsed
		in.stats.NextStepSize = hNext

		if err := in.evalRhsAtState(); err != nil {
			return rt, in.fail(runStart, err)
		}

		yOut := append([]float64(nil), in.y...)
		rt.RecordStep(trace.StepRecord{
			Index:            in.stepIndex,
			X:                in.x,
			Y:                yOut,
			H:                hUsed,
			ErrorNorm:        est.Norm,
			NewtonIterations: rec.Iterations,
			JacobianFresh:    jacFresh,
			Refactorized:     refactorized,
		})
		for spacing > 0 && nextDense <= in.x+spacing*1e-9 {
			sample := make([]float64, in.n)
			in.interp.evaluateUnchecked(sample, math.Min(nextDense, in.x))
			rt.RecordDense(nextDense, sample)
			nextDense += spacing
		}
		if cb := in.cfg.Output.OnStep; cb != nil {
			if err := cb(in.stepIndex, in.x, yOut); err != nil {
				return rt, in.fail(runStart, err)
			}
		}

		logrus.Debugf("[step %04d] accepted x=%g h=%g err=%g newton=%d",
			in.stats.Steps, in.x, hUsed, est.Norm, rec.Iterations)

		in.stats.noteStepTime(time.Since(stepStart))
		in.h = hNext
	}

	in.stats.TotalTime = time.Since(runStart)
	logrus.Infof("radau: run finished at x=%g after %d accepted / %d rejected steps",
		in.x, in.stats.AcceptedSteps, in.stats.RejectedSteps)
	return rt, nil
}

// evalRhsAtState refreshes f0 = f(x, y) at the current state. Non-finite
// output at an accepted grid point is a fatal callback failure.
func (in *Integrator) evalRhsAtState() error {
	if err := in.problem.Rhs(in.f0, in.x, in.y); err != nil {
		return fmt.Errorf("at x=%g: %v: %w", in.x, err, ErrRhsEvaluation)
	}
	in.stats.FunctionEvals++
	for i, v := range in.f0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite f[%d] at x=%g: %w", i, in.x, ErrRhsEvaluation)
		}
	}
	return nil
}

// estimateInitialStep is the standard Hairer-Wanner starting-step heuristic:
// compare the solution and rhs magnitudes, probe with one explicit Euler
// step, and bound by an estimate of the second derivative.
func (in *Integrator) estimateInitialStep(x0, xEnd float64) (float64, error) {
	in.norm.updateNewtonWeights(in.y)
	w := in.norm.wNewton
	dnf, dny := 0.0, 0.0
	for i := 0; i < in.n; i++ {
		rf := in.f0[i] / w[i]
		ry := in.y[i] / w[i]
		dnf += rf * rf
		dny += ry * ry
	}
	h := 1e-6
	if math.Min(dnf, dny) >= 1e-10 {
		h = 0.01 * math.Sqrt(dny/dnf)
	}
	h = math.Min(h, in.controller.hMax)

	for i := 0; i < in.n; i++ {
		in.yNew[i] = in.y[i] + h*in.f0[i]
	}
	f2 := make([]float64, in.n)
	if err := in.problem.Rhs(f2, x0+h, in.yNew); err != nil {
		return 0, fmt.Errorf("at x=%g: %v: %w", x0+h, err, ErrRhsEvaluation)
	}
	in.stats.FunctionEvals++

	der2 := 0.0
	for i := 0; i < in.n; i++ {
		r := (f2[i] - in.f0[i]) / w[i]
		der2 += r * r
	}
	der2 = math.Sqrt(der2) / h
	der12 := math.Max(der2, math.Sqrt(dnf))

	var h1 float64
	if der12 <= 1e-15 {
		h1 = math.Max(1e-6, h*1e-3)
	} else {
		h1 = math.Pow(0.01/der12, 0.2)
	}
	return math.Min(100*h, math.Min(h1, in.controller.hMax)), nil
}

// fail stamps the total run time and returns err unchanged, so callers can
// hand back the partial trajectory with the terminating error kind.
func (in *Integrator) fail(runStart time.Time, err error) error {
	in.stats.TotalTime = time.Since(runStart)
	logrus.Warnf("radau: run aborted at x=%g: %v", in.x, err)
	return err
}
