// Package integrator provides pluggable ODE step solvers for
// model-exchange slaves, addressed by name through a small registry rather
// than a fixed enum, so a caller can add its own without touching this
// package.
package integrator

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Deriv evaluates dy/dt at (t, y), writing nothing and returning a fresh
// slice the same length as y.
type Deriv func(t float64, y []float64) []float64

// Solver advances a state vector y0 at t0 by one step of size h, returning
// the new state.
type Solver interface {
	Step(fn Deriv, y0 []float64, t0, h float64) ([]float64, error)
}

// ErrUnknownSolver is returned by Lookup for an unregistered name.
var ErrUnknownSolver = errors.New("integrator: unknown solver")

var registry = map[string]func() Solver{
	"rk4":  func() Solver { return RK4{} },
	"bdf1": func() Solver { return BDF1{MaxIterations: 25, Tolerance: 1e-9} },
}

// Register adds or replaces a named solver constructor.
func Register(name string, ctor func() Solver) {
	registry[name] = ctor
}

// Lookup constructs the solver registered under name.
func Lookup(name string) (Solver, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
	}
	return ctor(), nil
}

// RK4 is the classical explicit fourth-order Runge-Kutta method: four
// derivative evaluations per step, combined with the usual 1/6-2/6-2/6-1/6
// weights.
type RK4 struct{}

func (RK4) Step(fn Deriv, y0 []float64, t0, h float64) ([]float64, error) {
	n := len(y0)
	y := mat.NewVecDense(n, append([]float64(nil), y0...))

	k1 := mat.NewVecDense(n, fn(t0, y.RawVector().Data))

	aux2 := mat.NewVecDense(n, nil)
	aux2.AddScaledVec(y, 0.5*h, k1)
	k2 := mat.NewVecDense(n, fn(t0+0.5*h, aux2.RawVector().Data))

	aux3 := mat.NewVecDense(n, nil)
	aux3.AddScaledVec(y, 0.5*h, k2)
	k3 := mat.NewVecDense(n, fn(t0+0.5*h, aux3.RawVector().Data))

	aux4 := mat.NewVecDense(n, nil)
	aux4.AddScaledVec(y, h, k3)
	k4 := mat.NewVecDense(n, fn(t0+h, aux4.RawVector().Data))

	// sum = k1 + 2*k2 + 2*k3 + k4
	sum := mat.NewVecDense(n, nil)
	sum.AddVec(k1, k4)
	twoK2K3 := mat.NewVecDense(n, nil)
	twoK2K3.AddVec(k2, k3)
	twoK2K3.ScaleVec(2, twoK2K3)
	sum.AddVec(sum, twoK2K3)

	out := mat.NewVecDense(n, nil)
	out.AddScaledVec(y, h/6, sum)

	result := make([]float64, n)
	copy(result, out.RawVector().Data)
	return result, nil
}

// BDF1 is first-order backward differentiation (backward Euler), the
// implicit stand-in for gemseo-fmu's default stiff CVode solver. The
// implicit equation y1 = y0 + h*f(t0+h, y1) is solved by fixed-point
// iteration, adequate for the mildly stiff closed-form virtualfmu models
// this repository ships; a genuinely stiff model should register its own
// Newton-based Solver.
type BDF1 struct {
	MaxIterations int
	Tolerance     float64
}

var ErrDidNotConverge = errors.New("integrator: bdf1 did not converge")

func (b BDF1) Step(fn Deriv, y0 []float64, t0, h float64) ([]float64, error) {
	n := len(y0)
	y1 := make([]float64, n)
	copy(y1, y0)

	maxIter := b.MaxIterations
	if maxIter <= 0 {
		maxIter = 25
	}
	tol := b.Tolerance
	if tol <= 0 {
		tol = 1e-9
	}

	for iter := 0; iter < maxIter; iter++ {
		deriv := fn(t0+h, y1)
		next := mat.NewVecDense(n, append([]float64(nil), y0...))
		derivVec := mat.NewVecDense(n, deriv)
		next.AddScaledVec(next, h, derivVec)

		diff := 0.0
		for i := 0; i < n; i++ {
			d := next.AtVec(i) - y1[i]
			if d < 0 {
				d = -d
			}
			if d > diff {
				diff = d
			}
		}
		copy(y1, next.RawVector().Data)
		if diff < tol {
			return y1, nil
		}
	}

	return y1, fmt.Errorf("%w after %d iterations", ErrDidNotConverge, maxIter)
}
