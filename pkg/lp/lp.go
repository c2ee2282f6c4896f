// Package lp is a thin adapter over gonum's simplex solver. It accepts a
// general-form linear program (minimize, equalities, <= inequalities, variable
// bounds), substitutes each variable down to the nonnegative orthant, converts
// to standard form and solves. Solver failures come back as typed errors;
// nothing panics through this package.
package lp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	// ErrInfeasible means no point satisfies all constraints.
	ErrInfeasible = errors.New("infeasible problem")
	// ErrUnbounded means the objective can decrease without limit.
	ErrUnbounded = errors.New("unbounded problem")
	// ErrSolver covers numerical failures inside the simplex.
	ErrSolver = errors.New("solver failure")
)

const simplexTol = 1e-10

// Term is one coefficient of a constraint row.
type Term struct {
	Col  int
	Coef float64
}

type row struct {
	terms []Term
	rhs   float64
}

// Problem is a general-form LP over n variables:
//
//	minimize  cᵀx
//	subject to  eq rows, <= rows, and Lower <= x <= Upper
//
// Variables default to [0, +Inf).
type Problem struct {
	C     []float64
	Lower []float64
	Upper []float64

	eqs  []row
	less []row
}

// NewProblem creates a problem with n variables, zero objective and default
// [0, +Inf) bounds.
func NewProblem(n int) *Problem {
	p := &Problem{
		C:     make([]float64, n),
		Lower: make([]float64, n),
		Upper: make([]float64, n),
	}
	for i := range p.Upper {
		p.Upper[i] = math.Inf(1)
	}
	return p
}

// NumVariables returns the number of decision variables.
func (p *Problem) NumVariables() int { return len(p.C) }

// SetBounds sets the box constraint for variable i. Equal bounds fix the
// variable.
func (p *Problem) SetBounds(i int, lower, upper float64) {
	p.Lower[i] = lower
	p.Upper[i] = upper
}

// AddEq appends the equality Σ terms = rhs.
func (p *Problem) AddEq(rhs float64, terms ...Term) {
	p.eqs = append(p.eqs, row{terms: terms, rhs: rhs})
}

// AddLE appends the inequality Σ terms <= rhs.
func (p *Problem) AddLE(rhs float64, terms ...Term) {
	p.less = append(p.less, row{terms: terms, rhs: rhs})
}

func (p *Problem) validate() error {
	n := len(p.C)
	if n == 0 {
		return fmt.Errorf("%w: problem has no variables", ErrSolver)
	}
	if len(p.Lower) != n || len(p.Upper) != n {
		return fmt.Errorf("%w: bounds length mismatch", ErrSolver)
	}
	for i := range p.Lower {
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: variable %d has lower bound %v above upper bound %v",
				ErrInfeasible, i, p.Lower[i], p.Upper[i])
		}
	}
	for _, r := range append(append([]row{}, p.eqs...), p.less...) {
		for _, t := range r.terms {
			if t.Col < 0 || t.Col >= n {
				return fmt.Errorf("%w: constraint references variable %d of %d", ErrSolver, t.Col, n)
			}
		}
	}
	return nil
}

// Result is a solved LP.
type Result struct {
	// Objective is cᵀx at the optimum.
	Objective float64
	// X is the optimal point in the problem's own variable space.
	X []float64
}

// Per-variable substitution onto the nonnegative orthant.
const (
	colFixed  int8 = iota // x = lo, no standard-form column
	colShift              // x = lo + y, y >= 0
	colMirror             // x = hi - y, y >= 0 (no finite lower bound)
	colSplit              // x = y⁺ - y⁻, both >= 0 (free variable)
)

// Solve converts the problem to standard form and runs gonum's simplex.
// Returns ErrInfeasible, ErrUnbounded or ErrSolver on failure.
func Solve(p *Problem) (res Result, err error) {
	if verr := p.validate(); verr != nil {
		return Result{}, verr
	}

	// The simplex implementation panics on some malformed inputs; convert
	// those to a typed failure instead of crashing the rolling loop.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in simplex: %v", ErrSolver, r)
		}
	}()

	n := len(p.C)

	// Substitute every variable down to y >= 0: finite lower bounds shift,
	// a sole upper bound mirrors, only genuinely free variables split into a
	// +/- pair and fixed variables leave the problem entirely. Splitting
	// all variables instead would give exactly-opposite column pairs whose
	// degenerate bases the dense simplex cannot pivot through.
	kind := make([]int8, n)
	off := make([]float64, n)
	sgn := make([]float64, n)
	col := make([]int, n)
	cols := 0
	for i := 0; i < n; i++ {
		lo, hi := p.Lower[i], p.Upper[i]
		switch {
		case lo == hi:
			kind[i], off[i], col[i] = colFixed, lo, -1
		case !math.IsInf(lo, -1):
			kind[i], off[i], sgn[i], col[i] = colShift, lo, 1, cols
			cols++
		case !math.IsInf(hi, 1):
			kind[i], off[i], sgn[i], col[i] = colMirror, hi, -1, cols
			cols++
		default:
			kind[i], col[i] = colSplit, cols
			cols += 2
		}
	}

	// A remaining finite range needs one slack row: after the shift it reads
	// y <= hi - lo. Kept in the problem's own variable space so the row
	// conversion below applies uniformly.
	less := make([]row, 0, len(p.less)+n)
	less = append(less, p.less...)
	for i := 0; i < n; i++ {
		if kind[i] == colShift && !math.IsInf(p.Upper[i], 1) {
			less = append(less, row{terms: []Term{{Col: i, Coef: 1}}, rhs: p.Upper[i]})
		}
	}

	mEq, mLess := len(p.eqs), len(less)
	rows, total := mEq+mLess, cols+mLess

	reconstruct := func(y []float64) []float64 {
		x := make([]float64, n)
		for i := 0; i < n; i++ {
			switch kind[i] {
			case colFixed:
				x[i] = off[i]
			case colShift, colMirror:
				x[i] = off[i] + sgn[i]*y[col[i]]
			case colSplit:
				x[i] = y[col[i]] - y[col[i]+1]
			}
		}
		return x
	}

	if total == 0 {
		// Every variable fixed; the equalities either hold or they don't.
		x := reconstruct(nil)
		for _, eq := range p.eqs {
			v := -eq.rhs
			for _, t := range eq.terms {
				v += t.Coef * x[t.Col]
			}
			if math.Abs(v) > 1e-9 {
				return Result{}, fmt.Errorf("%w: fixed variables violate an equality by %v", ErrInfeasible, v)
			}
		}
		return Result{Objective: floats.Dot(p.C, x), X: x}, nil
	}

	cStd := make([]float64, total)
	for i := 0; i < n; i++ {
		switch kind[i] {
		case colShift, colMirror:
			cStd[col[i]] += p.C[i] * sgn[i]
		case colSplit:
			cStd[col[i]] += p.C[i]
			cStd[col[i]+1] -= p.C[i]
		}
	}

	if rows == 0 {
		// Unconstrained over y >= 0: the minimum is y = 0 unless some cost
		// coefficient still points downhill.
		for _, c := range cStd {
			if c < 0 {
				return Result{}, fmt.Errorf("%w: no constraints bound a negative-cost variable", ErrUnbounded)
			}
		}
		x := reconstruct(make([]float64, total))
		return Result{Objective: floats.Dot(p.C, x), X: x}, nil
	}

	// Standard form: y = [converted variables (cols); s (mLess)], minimize
	// c̃ᵀy subject to Ãy = b̃, y >= 0. Offsets from fixed and shifted
	// variables move into the right-hand side.
	a := mat.NewDense(rows, total, nil)
	b := make([]float64, rows)
	setRow := func(r int, rw row) {
		rhs := rw.rhs
		for _, t := range rw.terms {
			i := t.Col
			switch kind[i] {
			case colFixed:
				rhs -= t.Coef * off[i]
			case colShift, colMirror:
				rhs -= t.Coef * off[i]
				a.Set(r, col[i], a.At(r, col[i])+t.Coef*sgn[i])
			case colSplit:
				a.Set(r, col[i], a.At(r, col[i])+t.Coef)
				a.Set(r, col[i]+1, a.At(r, col[i]+1)-t.Coef)
			}
		}
		b[r] = rhs
	}
	for r, eq := range p.eqs {
		setRow(r, eq)
	}
	for k, le := range less {
		r := mEq + k
		setRow(r, le)
		a.Set(r, cols+k, 1)
	}

	_, yStd, serr := lp.Simplex(cStd, a, b, simplexTol, nil)
	if serr != nil {
		switch {
		case errors.Is(serr, lp.ErrInfeasible):
			return Result{}, fmt.Errorf("%w: %v", ErrInfeasible, serr)
		case errors.Is(serr, lp.ErrUnbounded):
			return Result{}, fmt.Errorf("%w: %v", ErrUnbounded, serr)
		default:
			return Result{}, fmt.Errorf("%w: %v", ErrSolver, serr)
		}
	}

	x := reconstruct(yStd)
	return Result{Objective: floats.Dot(p.C, x), X: x}, nil
}
