package radau

import (
	"errors"
	"fmt"
)

// Fatal error conditions surfaced to the caller of Run. Recoverable
// conditions (step rejection, Newton divergence) never escape the step-retry
// loop. On a fatal error the caller still receives the partial trajectory
// accepted so far plus the terminating error kind, discriminated with
// errors.Is.
var (
	// ErrUserCallback is the common ancestor of rhs and Jacobian callback
	// failures; both specific sentinels wrap it.
	ErrUserCallback = errors.New("user callback failed")

	// ErrRhsEvaluation reports a failed or non-finite right-hand-side
	// evaluation.
	ErrRhsEvaluation = fmt.Errorf("rhs evaluation: %w", ErrUserCallback)

	// ErrJacobianEvaluation reports a failed or non-finite Jacobian
	// evaluation.
	ErrJacobianEvaluation = fmt.Errorf("jacobian evaluation: %w", ErrUserCallback)

	// ErrStepSizeTooSmall signals that step shrinking drove h below the
	// configured (or machine) floor; the problem is unsolvable at the
	// requested tolerance.
	ErrStepSizeTooSmall = errors.New("step size too small")

	// ErrTooManyRejections signals that the consecutive-rejection cap was
	// reached.
	ErrTooManyRejections = errors.New("too many consecutive step rejections")

	// ErrMaxSteps signals that the step budget was exhausted before reaching
	// the end of the interval (cooperative cancellation).
	ErrMaxSteps = errors.New("maximum number of steps reached")

	// ErrDeadlineExceeded signals cooperative cancellation through the run
	// context, checked once per step attempt.
	ErrDeadlineExceeded = errors.New("integration deadline exceeded")

	// ErrStaleInterpolant reports sampling the dense output when no accepted
	// step is current or outside the last accepted step's span.
	ErrStaleInterpolant = errors.New("stale dense-output interpolant")
)
