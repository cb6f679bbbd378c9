package radau

// DenseOutput is the continuous extension of the most recent accepted step:
// a degree-4 collocation polynomial per solution component, valid over
// [xEnd−h, xEnd]. The coefficients are replaced wholesale on every accepted
// step and are read-only in between; evaluating while no accepted step is
// current (or outside the span) fails with ErrStaleInterpolant.
type DenseOutput struct {
	n     int
	xEnd  float64
	h     float64
	valid bool

	c0, c1, c2, c3 []float64

	nodeC1, nodeC2    float64
	c1m1, c2m1, c1mc2 float64
}

func newDenseOutput(coef *coefficients, n int) *DenseOutput {
	return &DenseOutput{
		n:      n,
		c0:     make([]float64, n),
		c1:     make([]float64, n),
		c2:     make([]float64, n),
		c3:     make([]float64, n),
		nodeC1: coef.c1,
		nodeC2: coef.c2,
		c1m1:   coef.c1m1,
		c2m1:   coef.c2m1,
		c1mc2:  coef.c1mc2,
	}
}

// update derives the polynomial from the accepted step: yNew is the solution
// at xEnd and z1..z3 are the converged stage increments.
func (d *DenseOutput) update(yNew []float64, xEnd, h float64, z1, z2, z3 []float64) {
	for i := 0; i < d.n; i++ {
		d.c0[i] = yNew[i]
		d.c1[i] = (z2[i] - z3[i]) / d.c2m1
		ak := (z1[i] - z2[i]) / d.c1mc2
		acont3 := z1[i] / d.nodeC1
		acont3 = (ak - acont3) / d.nodeC2
		d.c2[i] = (ak - d.c1[i]) / d.c1m1
		d.c3[i] = d.c2[i] - acont3
	}
	d.xEnd = xEnd
	d.h = h
	d.valid = true
}

func (d *DenseOutput) invalidate() { d.valid = false }

// current reports whether an accepted step's interpolant is available.
func (d *DenseOutput) current() bool { return d.valid }

// Span returns the interval over which Evaluate is defined.
func (d *DenseOutput) Span() (x0, x1 float64) { return d.xEnd - d.h, d.xEnd }

// Evaluate writes the interpolated solution at x into out (length n).
func (d *DenseOutput) Evaluate(out []float64, x float64) error {
	if !d.valid {
		return ErrStaleInterpolant
	}
	x0, x1 := d.Span()
	tol := 1e-12 * (1 + d.h)
	if x < x0-tol || x > x1+tol {
		return ErrStaleInterpolant
	}
	d.evaluateUnchecked(out, x)
	return nil
}

// evaluateUnchecked interpolates (or extrapolates) without span checks; used
// internally for the Newton stage start values just beyond the last step.
func (d *DenseOutput) evaluateUnchecked(out []float64, x float64) {
	s := (x - d.xEnd) / d.h
	for i := 0; i < d.n; i++ {
		out[i] = d.c0[i] + s*(d.c1[i]+(s-d.c2m1)*(d.c2[i]+(s-d.c1m1)*d.c3[i]))
	}
}
