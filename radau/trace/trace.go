// Package trace collects the accepted trajectory of one integration run as
// per-step records plus interpolated dense-output samples, with an aggregate
// summary for reporting.
package trace

// StepRecord describes one accepted step.
type StepRecord struct {
	Index int     // step index, strictly increasing
	X     float64 // accepted grid point
	Y     []float64
	H     float64 // step size that produced this point

	ErrorNorm        float64 // scaled error norm of the accepted attempt (≤ 1)
	NewtonIterations int
	JacobianFresh    bool // Jacobian was re-evaluated for this step
	Refactorized     bool // iteration matrices were re-factorized for this step
}

// DensePoint is an off-grid sample produced by the dense-output interpolant.
type DensePoint struct {
	X float64
	Y []float64
}

// RunTrace collects records during one integration run. Not safe for
// concurrent use; one trace belongs to one run.
type RunTrace struct {
	Steps []StepRecord
	Dense []DensePoint
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace() *RunTrace {
	return &RunTrace{
		Steps: make([]StepRecord, 0),
		Dense: make([]DensePoint, 0),
	}
}

// RecordStep appends an accepted-step record. The Y slice is stored as
// given; callers must pass a copy they will not mutate.
func (rt *RunTrace) RecordStep(r StepRecord) {
	rt.Steps = append(rt.Steps, r)
}

// RecordDense appends an interpolated sample.
func (rt *RunTrace) RecordDense(x float64, y []float64) {
	rt.Dense = append(rt.Dense, DensePoint{X: x, Y: y})
}

// Last returns the most recent accepted step, or nil before the first
// acceptance.
func (rt *RunTrace) Last() *StepRecord {
	if len(rt.Steps) == 0 {
		return nil
	}
	return &rt.Steps[len(rt.Steps)-1]
}

// Summary aggregates a RunTrace for reporting.
type Summary struct {
	Steps                 int
	DensePoints           int
	MinH, MaxH, LastH     float64
	MaxErrorNorm          float64
	TotalNewtonIterations int
	JacobianRefreshes     int
	Refactorizations      int
}

// Summarize computes the aggregate view of the trace.
func (rt *RunTrace) Summarize() Summary {
	s := Summary{Steps: len(rt.Steps), DensePoints: len(rt.Dense)}
	for i, rec := range rt.Steps {
		if i == 0 || rec.H < s.MinH {
			s.MinH = rec.H
		}
		if rec.H > s.MaxH {
			s.MaxH = rec.H
		}
		if rec.ErrorNorm > s.MaxErrorNorm {
			s.MaxErrorNorm = rec.ErrorNorm
		}
		s.TotalNewtonIterations += rec.NewtonIterations
		if rec.JacobianFresh {
			s.JacobianRefreshes++
		}
		if rec.Refactorized {
			s.Refactorizations++
		}
		s.LastH = rec.H
	}
	return s
}
