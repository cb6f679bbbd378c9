package radau

import (
	"errors"
	"math"
	"testing"
)

func newTestController() *stepController {
	cfg := DefaultConfig()
	sc := newStepController(cfg.Step, cfg.Stiffness, cfg.Newton.MaxIterations)
	sc.start(0, 1)
	return sc
}

// TestStepController_AcceptGrowsStepForSmallError verifies growth and the
// max-factor clamp.
func TestStepController_AcceptGrowsStepForSmallError(t *testing.T) {
	// GIVEN a controller on [0, 1]
	sc := newTestController()
	sc.cfg.MaxStep = math.Inf(1)
	sc.hMax = math.Inf(1)

	// WHEN a step is accepted with a tiny error norm
	hNext := sc.onAccepted(0.01, 1e-10, 2)

	// THEN growth is capped by MaxFactor
	if got, want := hNext, 0.01*sc.cfg.MaxFactor; math.Abs(got-want) > 1e-15 {
		t.Errorf("hNext = %v, want MaxFactor-clamped %v", got, want)
	}
}

// TestStepController_KeepBandPreservesH verifies the hysteresis that keeps h
// unchanged (and the factorization reusable) for mild growth proposals.
func TestStepController_KeepBandPreservesH(t *testing.T) {
	sc := newTestController()

	// err chosen so the growth factor lands inside [KeepLow, KeepHigh]:
	// min(0.9, 13.5/16)·(0.3)^(-1/5) ≈ 1.07
	hNext := sc.onAccepted(0.01, 0.3, 2)

	if hNext != 0.01 {
		t.Errorf("hNext = %v, want unchanged 0.01 inside the keep band", hNext)
	}
}

// TestStepController_AcceptClampsToMaxStep verifies the hMax ceiling.
func TestStepController_AcceptClampsToMaxStep(t *testing.T) {
	sc := newTestController()
	// hMax defaults to the interval span (1.0)
	hNext := sc.onAccepted(0.9, 1e-12, 1)
	if hNext > 1.0 {
		t.Errorf("hNext = %v exceeds hMax 1.0", hNext)
	}
}

// TestStepController_FirstStepRejectionShrinksTenfold documents the 10×
// shrink on a first-step rejection.
func TestStepController_FirstStepRejectionShrinksTenfold(t *testing.T) {
	sc := newTestController()

	hNext, err := sc.onRejected(0.5, 4.0)

	if err != nil {
		t.Fatalf("onRejected: unexpected error %v", err)
	}
	if got, want := hNext, 0.05; math.Abs(got-want) > 1e-15 {
		t.Errorf("hNext = %v, want %v", got, want)
	}
}

// TestStepController_RejectionAlwaysShrinks verifies that a rejected step
// never proposes a larger h.
func TestStepController_RejectionAlwaysShrinks(t *testing.T) {
	sc := newTestController()
	sc.onAccepted(0.1, 0.9, 3) // leave the first-step state

	for _, norm := range []float64{1.0001, 1.5, 10, 1e6} {
		hNext, err := sc.onRejected(0.1, norm)
		if err != nil {
			t.Fatalf("onRejected(norm=%v): unexpected error %v", norm, err)
		}
		if hNext >= 0.1 {
			t.Errorf("onRejected(norm=%v): hNext = %v, want < 0.1", norm, hNext)
		}
		sc.rejections = 0
	}
}

// TestStepController_TooManyRejectionsIsFatal verifies the consecutive
// rejection cap.
func TestStepController_TooManyRejectionsIsFatal(t *testing.T) {
	sc := newTestController()
	sc.onAccepted(0.5, 0.9, 3)

	// WHEN the same step keeps being rejected
	h := 0.5
	var last error
	for i := 0; i < sc.cfg.MaxRejections+1; i++ {
		h, last = sc.onRejected(h, 2.0)
	}

	// THEN the run must fail with ErrTooManyRejections
	if !errors.Is(last, ErrTooManyRejections) {
		t.Errorf("error = %v, want ErrTooManyRejections", last)
	}
}

// TestStepController_StepSizeFloorIsFatal verifies the h floor check.
func TestStepController_StepSizeFloorIsFatal(t *testing.T) {
	sc := newTestController()
	sc.cfg.MaxRejections = 1000
	sc.onAccepted(1e-12, 0.9, 3)

	_, err := sc.onRejected(1e-15, 1e8)

	if !errors.Is(err, ErrStepSizeTooSmall) {
		t.Errorf("error = %v, want ErrStepSizeTooSmall", err)
	}
}

// TestStepController_DivergenceHalvesByDefault verifies the divergence
// shrink policy.
func TestStepController_DivergenceHalvesByDefault(t *testing.T) {
	sc := newTestController()
	sc.onAccepted(0.2, 0.9, 3)

	hNext, err := sc.onDiverged(0.2, 0)
	if err != nil {
		t.Fatalf("onDiverged: unexpected error %v", err)
	}
	if got, want := hNext, 0.1; math.Abs(got-want) > 1e-15 {
		t.Errorf("hNext = %v, want halved %v", got, want)
	}

	// a predicted shrink factor below 1/2 takes precedence
	hNext, err = sc.onDiverged(0.2, 0.25)
	if err != nil {
		t.Fatalf("onDiverged: unexpected error %v", err)
	}
	if got, want := hNext, 0.05; math.Abs(got-want) > 1e-15 {
		t.Errorf("hNext = %v, want %v from the suggested factor", got, want)
	}
}

// TestStepController_StiffnessDiagnostic verifies the moving iteration-ratio
// window.
func TestStepController_StiffnessDiagnostic(t *testing.T) {
	sc := newTestController()

	// GIVEN a full window of near-budget Newton iteration counts (7 of 7)
	for i := 0; i < sc.stiffCfg.Window; i++ {
		sc.onAccepted(0.01, 0.9, sc.newtonCap)
	}

	// THEN the diagnostic reports stiffness
	if got := sc.StiffnessRatio(); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("StiffnessRatio = %v, want 1.0", got)
	}
	if !sc.Stiff() {
		t.Error("Stiff() = false, want true for a saturated window")
	}
}

// TestStepController_RefineAfterRejection verifies that the error-estimate
// stabilization is requested on the first step and directly after a
// rejection.
func TestStepController_RefineAfterRejection(t *testing.T) {
	sc := newTestController()

	if !sc.refine() {
		t.Error("refine() = false on the first step, want true")
	}
	sc.onAccepted(0.1, 0.9, 2)
	if sc.refine() {
		t.Error("refine() = true after a clean acceptance, want false")
	}
	sc.onRejected(0.1, 2.0)
	if !sc.refine() {
		t.Error("refine() = false after a rejection, want true")
	}
}
