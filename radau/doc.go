// Package radau implements an adaptive implicit Runge-Kutta integrator of
// the Radau IIA family (order 5 with an embedded lower-order error estimate)
// for stiff ordinary differential equations.
//
// # Reading Guide
//
// Start with these three files to understand the solver kernel:
//   - integrator.go: the step loop, accept/reject/fatal outcomes, statistics
//   - newton.go: the simplified-Newton iteration on the transformed stages
//   - itermatrix.go: factorization caching, the main cost-avoidance mechanism
//
// # Architecture
//
// The package defines the orchestration and the external contracts;
// implementations live in sub-packages:
//   - radau/linsolve: the pluggable linear-solver backend (dense gonum LU)
//   - radau/trace: trajectory records and run summaries
//
// The 3-stage implicit system is decoupled via the classic Radau5 eigenvalue
// transformation into one real and one complex-conjugate linear problem of
// the ODE dimension (constants.go), so a step costs two factorizations that
// are cached across steps and iterations whenever h and the Jacobian are
// unchanged.
//
// A run is a pure function of (problem, config, x0, y0, xEnd): identical
// inputs with a deterministic backend produce bit-identical trajectories and
// statistics.
package radau
