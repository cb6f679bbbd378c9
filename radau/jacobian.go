package radau

import (
	"fmt"
	"math"
	"time"

	"github.com/stiffode/stiffode/radau/linsolve"
)

// jacobianManager owns the last-evaluated Jacobian and decides staleness.
// The cache survives accepted steps while the Newton iteration contracts
// fast; a slow contraction rate, a configured age limit, or repeated
// divergence forces a refresh.
type jacobianManager struct {
	problem Problem
	cfg     JacobianConfig
	stats   *Statistics

	jac     *linsolve.Triplet
	version uint64 // bumped on every successful refresh
	valid   bool
	age     int // accepted steps since the last refresh
	forced  bool
}

func newJacobianManager(p Problem, cfg JacobianConfig, stats *Statistics) *jacobianManager {
	return &jacobianManager{
		problem: p,
		cfg:     cfg,
		stats:   stats,
		jac:     linsolve.NewTriplet(p.Dim(), problemNnz(p)),
	}
}

// needsRefresh decides staleness from the last Newton contraction rate.
func (jm *jacobianManager) needsRefresh(contractionRate float64) bool {
	if !jm.valid || jm.forced {
		return true
	}
	if contractionRate > jm.cfg.RefreshThreshold {
		return true
	}
	if jm.cfg.MaxStepAge > 0 && jm.age >= jm.cfg.MaxStepAge {
		return true
	}
	return false
}

// refresh re-evaluates the Jacobian at (x, y). On success the cache becomes
// valid; the caller must invalidate all outstanding factorization handles.
func (jm *jacobianManager) refresh(x float64, y []float64) error {
	start := time.Now()
	jm.jac.Reset()
	if err := jm.problem.Jacobian(jm.jac, x, y); err != nil {
		jm.valid = false
		return fmt.Errorf("at x=%g: %v: %w", x, err, ErrJacobianEvaluation)
	}
	jm.stats.JacobianEvals++
	jm.stats.noteJacobianTime(time.Since(start))
	for k, v := range jm.jac.Vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			jm.valid = false
			return fmt.Errorf("non-finite entry (%d,%d) at x=%g: %w",
				jm.jac.Rows[k], jm.jac.Cols[k], x, ErrJacobianEvaluation)
		}
	}
	jm.valid = true
	jm.forced = false
	jm.age = 0
	jm.version++
	return nil
}

// markAccepted ages the cache by one accepted step.
func (jm *jacobianManager) markAccepted() { jm.age++ }

// forceStale schedules a refresh before the next attempt, used after the
// Newton iteration diverged twice in a row.
func (jm *jacobianManager) forceStale() { jm.forced = true }

// current returns the cached Jacobian and its version. Valid only after a
// successful refresh.
func (jm *jacobianManager) current() (*linsolve.Triplet, uint64) {
	return jm.jac, jm.version
}

func (jm *jacobianManager) invalidate() { jm.valid = false }
