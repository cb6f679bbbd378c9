package radau

import (
	"fmt"
	"time"
)

// Statistics aggregates monotone counters and informational timings for one
// integration run. Counters are reset only when a new run starts; they are
// never part of the solving contract.
type Statistics struct {
	FunctionEvals  int // calls to the rhs callback
	JacobianEvals  int // calls to the Jacobian callback
	Factorizations int // iteration-matrix assemblies (real + complex pair count as one)
	LinearSolves   int // backend solve calls, real and complex

	Steps         int // attempted steps, successful or not
	AcceptedSteps int
	RejectedSteps int

	NewtonIterationsLast int // iterations of the last attempt
	NewtonIterationsMax  int // max iterations over all attempts

	LastStepSize float64 // h of the last accepted step
	NextStepSize float64 // h the controller would use next

	// Per-phase peak durations plus the total run duration; informational.
	StepTimeMax     time.Duration
	JacobianTimeMax time.Duration
	FactorTimeMax   time.Duration
	SolveTimeMax    time.Duration
	TotalTime       time.Duration
}

func (s *Statistics) reset() {
	*s = Statistics{}
}

func (s *Statistics) noteNewtonIterations(iters int) {
	s.NewtonIterationsLast = iters
	if iters > s.NewtonIterationsMax {
		s.NewtonIterationsMax = iters
	}
}

func (s *Statistics) noteStepTime(d time.Duration) {
	if d > s.StepTimeMax {
		s.StepTimeMax = d
	}
}

func (s *Statistics) noteJacobianTime(d time.Duration) {
	if d > s.JacobianTimeMax {
		s.JacobianTimeMax = d
	}
}

func (s *Statistics) noteFactorTime(d time.Duration) {
	if d > s.FactorTimeMax {
		s.FactorTimeMax = d
	}
}

func (s *Statistics) noteSolveTime(d time.Duration) {
	if d > s.SolveTimeMax {
		s.SolveTimeMax = d
	}
}

// String renders the counters as a fixed-width report block.
func (s *Statistics) String() string {
	return fmt.Sprintf(
		"Function evaluations    : %d\n"+
			"Jacobian evaluations    : %d\n"+
			"Matrix factorizations   : %d\n"+
			"Linear solves           : %d\n"+
			"Steps attempted         : %d\n"+
			"Steps accepted          : %d\n"+
			"Steps rejected          : %d\n"+
			"Newton iterations (last): %d\n"+
			"Newton iterations (max) : %d\n"+
			"Last accepted step size : %g\n"+
			"Next step size          : %g\n"+
			"Max step time           : %v\n"+
			"Max Jacobian time       : %v\n"+
			"Max factorization time  : %v\n"+
			"Max solve time          : %v\n"+
			"Total time              : %v",
		s.FunctionEvals, s.JacobianEvals, s.Factorizations, s.LinearSolves,
		s.Steps, s.AcceptedSteps, s.RejectedSteps,
		s.NewtonIterationsLast, s.NewtonIterationsMax,
		s.LastStepSize, s.NextStepSize,
		s.StepTimeMax, s.JacobianTimeMax, s.FactorTimeMax, s.SolveTimeMax,
		s.TotalTime)
}
