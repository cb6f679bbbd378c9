package radau

import (
	"fmt"
	"math"
)

// Tolerances groups the per-run error tolerances. Scalar AbsTol/RelTol apply
// to every component; the optional vectors override them component-wise and
// must then have the problem dimension.
type Tolerances struct {
	AbsTol float64 // scalar absolute tolerance (default 1e-6)
	RelTol float64 // scalar relative tolerance (default 1e-6)

	AbsTolVec []float64 // optional per-component absolute tolerances
	RelTolVec []float64 // optional per-component relative tolerances
}

// StepConfig groups step-size control parameters.
type StepConfig struct {
	InitialStep float64 // first h; 0 = automatic estimate
	MinStep     float64 // floor for h; 0 = 10·ulp of the interval span
	MaxStep     float64 // ceiling for h; 0 = interval length

	Safety    float64 // controller safety factor (default 0.9)
	MinFactor float64 // strongest allowed shrink per accepted step (default 0.2)
	MaxFactor float64 // strongest allowed growth per accepted step (default 8)

	// KeepLow/KeepHigh bound the hysteresis band: when the proposed growth
	// factor falls inside [KeepLow, KeepHigh] the current h is kept, which
	// lets the next step reuse the cached factorization (defaults 1.0, 1.2).
	KeepLow  float64
	KeepHigh float64

	// EpsilonH is the relative tolerance under which two step sizes count as
	// equal for factorization reuse (default 1e-3).
	EpsilonH float64

	// MaxRejections caps consecutive rejections of a single step
	// (default 10).
	MaxRejections int

	// Predictive enables the Gustafsson predictive modification of the
	// controller, using the previous accepted step's error (default on).
	Predictive bool
}

// NewtonConfig groups the simplified-Newton iteration parameters.
type NewtonConfig struct {
	MaxIterations int // iteration budget per attempt (default 7)

	// Tolerance is the convergence threshold for the contraction-scaled
	// correction norm; 0 = derived from RelTol as
	// max(10·ε/rtol, min(0.03, √rtol)).
	Tolerance float64

	// ZeroInitialGuess disables extrapolating the stage start values from the
	// previous step's dense output.
	ZeroInitialGuess bool
}

// JacobianConfig groups the Jacobian staleness policy.
type JacobianConfig struct {
	// RefreshThreshold is the Newton contraction rate above which the cached
	// Jacobian is considered stale after an accepted step (default 1e-3).
	RefreshThreshold float64

	// MaxStepAge forces a refresh after this many accepted steps;
	// 0 disables the age limit.
	MaxStepAge int
}

// StiffnessConfig tunes the stiffness diagnostic: the moving ratio of Newton
// iterations used to the iteration budget. The exact heuristic is a policy
// choice; these defaults are documented, not derived.
type StiffnessConfig struct {
	Window    int     // accepted steps in the moving window (default 10)
	Threshold float64 // mean iteration ratio above which the run is flagged stiff (default 0.8)

	// AssumeStiff marks the problem stiff from the start, enabling the
	// error-estimate stabilization on every step.
	AssumeStiff bool
}

// OutputConfig controls optional per-run output.
type OutputConfig struct {
	// OnStep, when non-nil, is invoked after every accepted step with the
	// step index, x, and the accepted y. A non-nil return aborts the run
	// with that error.
	OnStep func(step int, x float64, y []float64) error

	// DenseSpacing, when > 0, emits interpolated samples at x0 + k·spacing
	// into the run trace using the dense output of each accepted step.
	DenseSpacing float64
}

// Config is the immutable configuration of one integration run. Build it
// with DefaultConfig and adjust fields before constructing the Integrator;
// the Integrator copies it and never mutates it.
type Config struct {
	Tolerances Tolerances
	Step       StepConfig
	Newton     NewtonConfig
	Jacobian   JacobianConfig
	Stiffness  StiffnessConfig
	Output     OutputConfig

	// MaxSteps caps attempted steps per run (default 100000).
	MaxSteps int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Tolerances: Tolerances{AbsTol: 1e-6, RelTol: 1e-6},
		Step: StepConfig{
			Safety:        0.9,
			MinFactor:     0.2,
			MaxFactor:     8.0,
			KeepLow:       1.0,
			KeepHigh:      1.2,
			EpsilonH:      1e-3,
			MaxRejections: 10,
			Predictive:    true,
		},
		Newton:    NewtonConfig{MaxIterations: 7},
		Jacobian:  JacobianConfig{RefreshThreshold: 1e-3},
		Stiffness: StiffnessConfig{Window: 10, Threshold: 0.8},
		MaxSteps:  100000,
	}
}

// Validate checks the configuration against problem dimension n.
func (c *Config) Validate(n int) error {
	if n <= 0 {
		return fmt.Errorf("problem dimension must be positive, got %d", n)
	}
	t := &c.Tolerances
	if len(t.AbsTolVec) == 0 && t.AbsTol <= 0 {
		return fmt.Errorf("AbsTol must be positive, got %g", t.AbsTol)
	}
	if len(t.RelTolVec) == 0 && t.RelTol <= 0 {
		return fmt.Errorf("RelTol must be positive, got %g", t.RelTol)
	}
	if len(t.AbsTolVec) != 0 && len(t.AbsTolVec) != n {
		return fmt.Errorf("AbsTolVec has length %d, want %d", len(t.AbsTolVec), n)
	}
	if len(t.RelTolVec) != 0 && len(t.RelTolVec) != n {
		return fmt.Errorf("RelTolVec has length %d, want %d", len(t.RelTolVec), n)
	}
	for i, v := range t.AbsTolVec {
		if v <= 0 {
			return fmt.Errorf("AbsTolVec[%d] must be positive, got %g", i, v)
		}
	}
	for i, v := range t.RelTolVec {
		if v <= 0 {
			return fmt.Errorf("RelTolVec[%d] must be positive, got %g", i, v)
		}
	}
	s := &c.Step
	if s.Safety <= 0 || s.Safety >= 1 {
		return fmt.Errorf("Safety must be in (0, 1), got %g", s.Safety)
	}
	if s.MinFactor <= 0 || s.MinFactor >= 1 {
		return fmt.Errorf("MinFactor must be in (0, 1), got %g", s.MinFactor)
	}
	if s.MaxFactor <= 1 {
		return fmt.Errorf("MaxFactor must exceed 1, got %g", s.MaxFactor)
	}
	if s.KeepLow > s.KeepHigh {
		return fmt.Errorf("KeepLow %g must not exceed KeepHigh %g", s.KeepLow, s.KeepHigh)
	}
	if s.EpsilonH < 0 {
		return fmt.Errorf("EpsilonH must be non-negative, got %g", s.EpsilonH)
	}
	if s.MaxRejections <= 0 {
		return fmt.Errorf("MaxRejections must be positive, got %d", s.MaxRejections)
	}
	if s.InitialStep < 0 || s.MinStep < 0 || s.MaxStep < 0 {
		return fmt.Errorf("step bounds must be non-negative")
	}
	if c.Newton.MaxIterations <= 0 {
		return fmt.Errorf("Newton.MaxIterations must be positive, got %d", c.Newton.MaxIterations)
	}
	if c.Jacobian.RefreshThreshold < 0 {
		return fmt.Errorf("Jacobian.RefreshThreshold must be non-negative, got %g", c.Jacobian.RefreshThreshold)
	}
	if c.Stiffness.Window <= 0 {
		return fmt.Errorf("Stiffness.Window must be positive, got %d", c.Stiffness.Window)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("MaxSteps must be positive, got %d", c.MaxSteps)
	}
	return nil
}

// newtonTolerance resolves the Newton convergence threshold, deriving it from
// the relative tolerance when unset.
func (c *Config) newtonTolerance() float64 {
	if c.Newton.Tolerance > 0 {
		return c.Newton.Tolerance
	}
	rtol := c.Tolerances.RelTol
	if rtol <= 0 && len(c.Tolerances.RelTolVec) > 0 {
		rtol = c.Tolerances.RelTolVec[0]
	}
	return math.Max(10*uround/rtol, math.Min(0.03, math.Sqrt(rtol)))
}
