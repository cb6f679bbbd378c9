package radau

import (
	"fmt"

	"github.com/stiffode/stiffode/radau/linsolve"
)

// Problem defines the ODE system dy/dx = f(x, y) together with its Jacobian
// ∂f/∂y. Both callbacks are injected capabilities with a fixed contract: they
// must be deterministic for identical inputs and report failure through their
// error return (non-finite output is additionally caught by the integrator).
type Problem interface {
	// Dim returns the number of equations n.
	Dim() int

	// Rhs writes f(x, y) into f. Both slices have length n.
	Rhs(f []float64, x float64, y []float64) error

	// Jacobian writes ∂f/∂y at (x, y) into jac, which arrives reset and
	// sized for the problem. Dense problems fill all n² entries.
	Jacobian(jac *linsolve.Triplet, x float64, y []float64) error
}

// FuncProblem adapts plain functions to the Problem interface; handy for
// tests and the built-in CLI problems.
type FuncProblem struct {
	N       int
	RhsFunc func(f []float64, x float64, y []float64) error
	JacFunc func(jac *linsolve.Triplet, x float64, y []float64) error

	// Nnz hints the Jacobian entry count for triplet pre-allocation;
	// 0 means dense (n²).
	Nnz int
}

func (p *FuncProblem) Dim() int { return p.N }

func (p *FuncProblem) Rhs(f []float64, x float64, y []float64) error {
	return p.RhsFunc(f, x, y)
}

func (p *FuncProblem) Jacobian(jac *linsolve.Triplet, x float64, y []float64) error {
	if p.JacFunc == nil {
		return fmt.Errorf("no jacobian callback provided")
	}
	return p.JacFunc(jac, x, y)
}

func (p *FuncProblem) nnz() int {
	if p.Nnz > 0 {
		return p.Nnz
	}
	return p.N * p.N
}

// problemNnz extracts the triplet capacity hint from a Problem.
func problemNnz(p Problem) int {
	if fp, ok := p.(*FuncProblem); ok {
		return fp.nnz()
	}
	n := p.Dim()
	return n * n
}
