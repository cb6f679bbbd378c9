package radau

import "math"

// coefficients holds the Radau IIA order-5 tableau in the transformed form
// used by the classic Radau5 scheme: the 3-stage implicit system is decoupled
// through the eigen-decomposition of the inverse Runge-Kutta matrix into one
// real and one complex-conjugate linear problem of dimension n, instead of a
// single 3n×3n block. This transformation is what makes factorization reuse
// cheap and must not be bypassed.
type coefficients struct {
	// collocation nodes: c1 = (4−√6)/10, c2 = (4+√6)/10, c3 = 1
	c1, c2 float64

	// node differences reused by the dense-output polynomial
	c1m1, c2m1, c1mc2 float64

	// eigenvalues of A⁻¹: one real (u1) and a conjugate pair (alpha ± i·beta);
	// dividing by h gives the shifts of the two iteration matrices
	u1, alpha, beta float64

	// similarity transform T and its inverse (t32 = 1, t33 = 0)
	t11, t12, t13 float64
	t21, t22, t23 float64
	t31           float64

	ti11, ti12, ti13 float64
	ti21, ti22, ti23 float64
	ti31, ti32, ti33 float64

	// weights of the embedded order-3 error estimate
	e1, e2, e3 float64
}

func newCoefficients() *coefficients {
	sq6 := math.Sqrt(6.0)
	cbrt9 := math.Cbrt(9.0)
	cbrt81 := math.Cbrt(81.0)

	c := &coefficients{
		c1: (4.0 - sq6) / 10.0,
		c2: (4.0 + sq6) / 10.0,

		u1: 1.0 / ((6.0 + cbrt81 - cbrt9) / 30.0),

		t11: 9.1232394870892942792e-02,
		t12: -0.14125529502095420843,
		t13: -3.0029194105147424492e-02,
		t21: 0.24171793270710701896,
		t22: 0.20412935229379993199,
		t23: 0.38294211275726193779,
		t31: 0.96604818261509293619,

		ti11: 4.3255798900631553510,
		ti12: 0.33919925181580986954,
		ti13: 0.54177053993587487119,
		ti21: -4.1787185915519047273,
		ti22: -0.32768282076106238708,
		ti23: 0.47662355450055045196,
		ti31: -0.50287263494578687595,
		ti32: 2.5719269498556054292,
		ti33: -0.59603920482822492497,

		e1: -(13.0 + 7.0*sq6) / 3.0,
		e2: (-13.0 + 7.0*sq6) / 3.0,
		e3: -1.0 / 3.0,
	}
	c.c1m1 = c.c1 - 1.0
	c.c2m1 = c.c2 - 1.0
	c.c1mc2 = c.c1 - c.c2

	alpha := (12.0 - cbrt81 + cbrt9) / 60.0
	beta := (cbrt81 + cbrt9) * math.Sqrt(3.0) / 60.0
	norm := alpha*alpha + beta*beta
	c.alpha = alpha / norm
	c.beta = beta / norm

	return c
}
