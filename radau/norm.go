package radau

import "math"

// errorNorm computes weighted RMS norms with per-component weights derived
// from the absolute and relative tolerances.
type errorNorm struct {
	atol []float64
	rtol []float64

	// wNewton scales Newton corrections: atol + rtol·|y| at the step start.
	// wErr scales the error estimate: atol + rtol·max(|y|, |yNew|).
	wNewton []float64
	wErr    []float64
}

func newErrorNorm(t Tolerances, n int) *errorNorm {
	en := &errorNorm{
		atol:    make([]float64, n),
		rtol:    make([]float64, n),
		wNewton: make([]float64, n),
		wErr:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		if len(t.AbsTolVec) != 0 {
			en.atol[i] = t.AbsTolVec[i]
		} else {
			en.atol[i] = t.AbsTol
		}
		if len(t.RelTolVec) != 0 {
			en.rtol[i] = t.RelTolVec[i]
		} else {
			en.rtol[i] = t.RelTol
		}
	}
	return en
}

// updateNewtonWeights refreshes wNewton from the solution at the step start.
func (en *errorNorm) updateNewtonWeights(y []float64) {
	for i := range y {
		en.wNewton[i] = en.atol[i] + en.rtol[i]*math.Abs(y[i])
	}
}

// updateErrorWeights refreshes wErr from the step's endpoints.
func (en *errorNorm) updateErrorWeights(y, yNew []float64) {
	for i := range y {
		en.wErr[i] = en.atol[i] + en.rtol[i]*math.Max(math.Abs(y[i]), math.Abs(yNew[i]))
	}
}

// wrmsErr returns the weighted RMS norm of v under the error weights.
func (en *errorNorm) wrmsErr(v []float64) float64 {
	n := len(v)
	sum := 0.0
	for i := 0; i < n; i++ {
		r := v[i] / en.wErr[i]
		sum += r * r
	}
	return math.Sqrt(sum / float64(n))
}

// wrmsNewton3 returns the joint weighted RMS norm of the three stage
// corrections under the Newton weights.
func (en *errorNorm) wrmsNewton3(d1, d2, d3 []float64) float64 {
	n := len(d1)
	sum := 0.0
	for i := 0; i < n; i++ {
		r1 := d1[i] / en.wNewton[i]
		r2 := d2[i] / en.wNewton[i]
		r3 := d3[i] / en.wNewton[i]
		sum += r1*r1 + r2*r2 + r3*r3
	}
	return math.Sqrt(sum / float64(3*n))
}
