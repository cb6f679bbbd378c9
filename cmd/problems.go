package cmd

import (
	"fmt"
	"sort"

	"github.com/stiffode/stiffode/radau"
	"github.com/stiffode/stiffode/radau/linsolve"
)

// builtinProblem bundles a test system with its conventional initial state,
// integration interval, and the tolerances it is usually run at.
type builtinProblem struct {
	Description string
	Problem     *radau.FuncProblem
	Y0          []float64
	X0, XEnd    float64
	AbsTol      float64
	RelTol      float64
	AssumeStiff bool

	// Reference, when non-nil, is the known solution at XEnd for reporting.
	Reference []float64
}

// builtinProblems maps names accepted by --problem to classic stiff systems.
var builtinProblems = map[string]builtinProblem{
	"decay": {
		Description: "linear decay y' = -50y",
		Problem: &radau.FuncProblem{
			N: 1,
			RhsFunc: func(f []float64, x float64, y []float64) error {
				f[0] = -50 * y[0]
				return nil
			},
			JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
				jac.Put(0, 0, -50)
				return nil
			},
			Nnz: 1,
		},
		Y0:     []float64{1},
		XEnd:   1,
		AbsTol: 1e-6,
		RelTol: 1e-6,
	},

	"hwlinear": {
		Description: "2x2 linear system with eigenvalues -1 and -1000",
		Problem: &radau.FuncProblem{
			N: 2,
			RhsFunc: func(f []float64, x float64, y []float64) error {
				f[0] = -500.5*y[0] + 499.5*y[1]
				f[1] = 499.5*y[0] - 500.5*y[1]
				return nil
			},
			JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
				jac.Put(0, 0, -500.5)
				jac.Put(0, 1, 499.5)
				jac.Put(1, 0, 499.5)
				jac.Put(1, 1, -500.5)
				return nil
			},
		},
		Y0:     []float64{2, 0},
		XEnd:   1,
		AbsTol: 1e-6,
		RelTol: 1e-6,
	},

	"vanderpol": {
		Description: "Van der Pol oscillator, eps = 1e-6",
		Problem:     vanDerPol(1e-6),
		Y0:          []float64{2, -0.6},
		XEnd:        2,
		AbsTol:      1e-7,
		RelTol:      1e-7,
		AssumeStiff: true,
	},

	"robertson": {
		Description: "Robertson chemical kinetics",
		Problem: &radau.FuncProblem{
			N: 3,
			RhsFunc: func(f []float64, x float64, y []float64) error {
				f[0] = -0.04*y[0] + 1e4*y[1]*y[2]
				f[1] = 0.04*y[0] - 1e4*y[1]*y[2] - 3e7*y[1]*y[1]
				f[2] = 3e7 * y[1] * y[1]
				return nil
			},
			JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
				jac.Put(0, 0, -0.04)
				jac.Put(0, 1, 1e4*y[2])
				jac.Put(0, 2, 1e4*y[1])
				jac.Put(1, 0, 0.04)
				jac.Put(1, 1, -1e4*y[2]-6e7*y[1])
				jac.Put(1, 2, -1e4*y[1])
				jac.Put(2, 1, 6e7*y[1])
				return nil
			},
			Nnz: 7,
		},
		Y0:          []float64{1, 0, 0},
		XEnd:        0.3,
		AbsTol:      1e-8,
		RelTol:      1e-8,
		AssumeStiff: true,
	},
}

func vanDerPol(eps float64) *radau.FuncProblem {
	return &radau.FuncProblem{
		N: 2,
		RhsFunc: func(f []float64, x float64, y []float64) error {
			f[0] = y[1]
			f[1] = ((1-y[0]*y[0])*y[1] - y[0]) / eps
			return nil
		},
		JacFunc: func(jac *linsolve.Triplet, x float64, y []float64) error {
			jac.Put(0, 1, 1)
			jac.Put(1, 0, (-2*y[0]*y[1]-1)/eps)
			jac.Put(1, 1, (1-y[0]*y[0])/eps)
			return nil
		},
	}
}

// lookupProblem resolves a --problem name, listing the known names on failure.
func lookupProblem(name string) (builtinProblem, error) {
	p, ok := builtinProblems[name]
	if !ok {
		names := make([]string, 0, len(builtinProblems))
		for k := range builtinProblems {
			names = append(names, k)
		}
		sort.Strings(names)
		return builtinProblem{}, fmt.Errorf("unknown problem %q, available: %v", name, names)
	}
	return p, nil
}
