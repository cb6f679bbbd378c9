package radau

import (
	"fmt"
	"math"
)

// stepController owns the accept/reject decision bookkeeping and proposes the
// next step size. The order is fixed at 5; only h changes. The controller
// also accumulates the stiffness diagnostic: a moving ratio of Newton
// iterations used to the iteration budget.
type stepController struct {
	cfg       StepConfig
	stiffCfg  StiffnessConfig
	newtonCap int

	hMin, hMax float64

	firstStep    bool
	rejectedLast bool
	rejections   int // consecutive

	// previous accepted step, for the predictive (Gustafsson) part
	hAcc, errAcc float64

	// stiffness window of iteration ratios per accepted step
	ratios []float64
	next   int
	filled int
}

func newStepController(cfg StepConfig, stiffCfg StiffnessConfig, newtonCap int) *stepController {
	return &stepController{
		cfg:       cfg,
		stiffCfg:  stiffCfg,
		newtonCap: newtonCap,
		ratios:    make([]float64, stiffCfg.Window),
	}
}

// start resets the controller for a new run over [x0, xEnd].
func (sc *stepController) start(x0, xEnd float64) {
	span := xEnd - x0
	sc.hMin = sc.cfg.MinStep
	if sc.hMin <= 0 {
		sc.hMin = 10 * uround * span
	}
	sc.hMax = sc.cfg.MaxStep
	if sc.hMax <= 0 {
		sc.hMax = span
	}
	sc.firstStep = true
	sc.rejectedLast = false
	sc.rejections = 0
	sc.hAcc = 0
	sc.errAcc = 0
	sc.next = 0
	sc.filled = 0
}

// refine reports whether the error estimator should run its corrective
// iteration for the next attempt.
func (sc *stepController) refine() bool {
	return sc.firstStep || sc.rejectedLast || sc.stiffCfg.AssumeStiff || sc.Stiff()
}

// onAccepted records an accepted step and returns the next step size. The
// returned h equals the current one when the proposed growth lands inside the
// keep band, preserving the cached factorization.
func (sc *stepController) onAccepted(h, norm float64, newtonIters int) float64 {
	// safety shrinks when the Newton iteration worked hard
	cfac := sc.cfg.Safety * float64(1+2*sc.newtonCap)
	fac := math.Min(sc.cfg.Safety, cfac/float64(newtonIters+2*sc.newtonCap))

	factor := fac * math.Pow(norm, -0.2)
	factor = math.Max(sc.cfg.MinFactor, math.Min(sc.cfg.MaxFactor, factor))

	if sc.cfg.Predictive && sc.hAcc > 0 {
		// Gustafsson: damp growth using the previous accepted step's error
		facGus := fac * (h / sc.hAcc) * math.Pow(sc.errAcc/(norm*norm), 0.2)
		facGus = math.Max(sc.cfg.MinFactor, math.Min(sc.cfg.MaxFactor, facGus))
		factor = math.Min(factor, facGus)
	}

	hNext := h * factor
	if factor >= sc.cfg.KeepLow && factor <= sc.cfg.KeepHigh {
		hNext = h
	}
	hNext = math.Min(hNext, sc.hMax)

	sc.hAcc = h
	sc.errAcc = math.Max(norm, 1e-2)
	sc.firstStep = false
	sc.rejectedLast = false
	sc.rejections = 0

	sc.ratios[sc.next] = float64(newtonIters) / float64(sc.newtonCap)
	sc.next = (sc.next + 1) % len(sc.ratios)
	if sc.filled < len(sc.ratios) {
		sc.filled++
	}
	return hNext
}

// onRejected records a rejection (error norm > 1) and returns the shrunken
// step size, or a fatal error when the rejection or step-size budget is
// exhausted.
func (sc *stepController) onRejected(h, norm float64) (float64, error) {
	factor := math.Max(sc.cfg.MinFactor, sc.cfg.Safety*math.Pow(norm, -0.2))
	factor = math.Min(factor, 0.9)
	hNext := h * factor
	if sc.firstStep {
		hNext = h * 0.1
	}
	sc.rejectedLast = true
	return hNext, sc.noteRejection(hNext)
}

// onDiverged records a Newton divergence (recoverable) and returns the
// shrunken step size. A zero suggested factor halves h.
func (sc *stepController) onDiverged(h, suggestedFactor float64) (float64, error) {
	factor := 0.5
	if suggestedFactor > 0 {
		factor = math.Min(suggestedFactor, 0.5)
	}
	hNext := h * factor
	sc.rejectedLast = true
	return hNext, sc.noteRejection(hNext)
}

func (sc *stepController) noteRejection(hNext float64) error {
	sc.rejections++
	if sc.rejections > sc.cfg.MaxRejections {
		return fmt.Errorf("%d consecutive rejections: %w", sc.rejections, ErrTooManyRejections)
	}
	if hNext < sc.hMin {
		return fmt.Errorf("h=%g below floor %g: %w", hNext, sc.hMin, ErrStepSizeTooSmall)
	}
	return nil
}

// StiffnessRatio returns the mean Newton iteration ratio over the moving
// window; a diagnostic, not a behavioral fork.
func (sc *stepController) StiffnessRatio() float64 {
	if sc.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < sc.filled; i++ {
		sum += sc.ratios[i]
	}
	return sum / float64(sc.filled)
}

// Stiff reports whether the diagnostic exceeds the configured threshold over
// a full window.
func (sc *stepController) Stiff() bool {
	return sc.filled == len(sc.ratios) && sc.StiffnessRatio() >= sc.stiffCfg.Threshold
}
