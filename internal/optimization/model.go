package optimization

import (
	"context"
	"fmt"
	"strings"
)

// Model is the capability surface a solver backend exposes to the frontier
// search. Every mutation goes through these methods and must be visible to the
// next call to Solve. Implementations are not safe for concurrent use; a Model
// belongs to exactly one run.
type Model interface {
	// NumObjectives returns the number of objectives. Objectives are indexed
	// from 1.
	NumObjectives() int

	// Sense returns the optimization direction of an objective.
	Sense(index int) (Sense, error)

	// Configure selects the solver backend and its options.
	Configure(opts SolverOptions) error

	// Activate makes an objective the one optimized by Solve.
	Activate(index int) error

	// Deactivate removes an objective from consideration by Solve.
	Deactivate(index int) error

	// AddVariable adds a continuous variable bounded below by lower.
	AddVariable(name string, lower float64) error

	// AddParameter adds a mutable scalar that expressions may reference.
	AddParameter(name string, value float64) error

	// SetParameter changes the value of an existing parameter.
	SetParameter(name string, value float64) error

	// AddConstraint adds a named constraint. Names are unique.
	AddConstraint(c Constraint) error

	// RemoveConstraint removes a previously added constraint.
	RemoveConstraint(name string) error

	// AugmentObjective adds e to the expression of an objective.
	AugmentObjective(index int, e Expr) error

	// Solve optimizes the active objective. A non-optimal termination is
	// reported through Status; the error is reserved for solver failures.
	Solve(ctx context.Context) (Status, error)

	// ObjectiveValue returns the value of an objective's current expression at
	// the last solution.
	ObjectiveValue(index int) (float64, error)

	// VariableValue returns the value of a variable at the last solution.
	VariableValue(name string) (float64, error)
}

// Sense is the optimization direction of an objective.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// String returns the lower-case name of the sense.
func (s Sense) String() string {
	switch s {
	case Minimize:
		return "minimize"
	case Maximize:
		return "maximize"
	default:
		return fmt.Sprintf("sense(%d)", int(s))
	}
}

// Sign is +1 for Maximize and -1 for Minimize.
func (s Sense) Sign() float64 {
	if s == Maximize {
		return 1
	}
	return -1
}

// ParseSense accepts "min", "minimize", "max" and "maximize" in any case.
func ParseSense(s string) (Sense, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimize", "minimise":
		return Minimize, nil
	case "max", "maximize", "maximise":
		return Maximize, nil
	default:
		return 0, NewErrorf("unknown objective sense %q", s).WithComponent("model")
	}
}

// Status is the termination status of a solve.
type Status int

const (
	StatusNotSolved Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusNotSolved:
		return "not_solved"
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SolverOptions selects a backend. The values are opaque to the frontier
// search and interpreted by the Model.
type SolverOptions struct {
	// Name identifies the solver backend.
	Name string `json:"name" yaml:"name"`
	// IO is the interface mode used to talk to the backend.
	IO string `json:"io" yaml:"io"`
	// Gap is the relative optimality gap. The frontier search always
	// demands an exact optimum and sets it to zero.
	Gap float64 `json:"gap" yaml:"gap"`
}

// RefKind identifies what a Term refers to.
type RefKind int

const (
	// VarRef refers to a variable by name.
	VarRef RefKind = iota
	// ParamRef refers to a parameter by name.
	ParamRef
	// ObjRef refers to the base expression of an objective by index.
	ObjRef
)

// Term is a coefficient applied to a variable, a parameter or an objective.
type Term struct {
	Kind  RefKind
	Name  string
	Index int
	Coef  float64
}

// Expr is a linear expression: the sum of its terms plus a constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Var returns coef times the named variable.
func Var(name string, coef float64) Term {
	return Term{Kind: VarRef, Name: name, Coef: coef}
}

// Param returns coef times the named parameter.
func Param(name string, coef float64) Term {
	return Term{Kind: ParamRef, Name: name, Coef: coef}
}

// Obj returns coef times the base expression of objective index.
func Obj(index int, coef float64) Term {
	return Term{Kind: ObjRef, Index: index, Coef: coef}
}

// Sum builds an expression from terms.
func Sum(terms ...Term) Expr {
	return Expr{Terms: terms}
}

// Const builds a constant expression.
func Const(v float64) Expr {
	return Expr{Constant: v}
}

// Plus returns e with the terms and constant of o appended.
func (e Expr) Plus(o Expr) Expr {
	terms := make([]Term, 0, len(e.Terms)+len(o.Terms))
	terms = append(terms, e.Terms...)
	terms = append(terms, o.Terms...)
	return Expr{Terms: terms, Constant: e.Constant + o.Constant}
}

// Scale returns e multiplied by k.
func (e Expr) Scale(k float64) Expr {
	terms := make([]Term, len(e.Terms))
	for i, t := range e.Terms {
		t.Coef *= k
		terms[i] = t
	}
	return Expr{Terms: terms, Constant: e.Constant * k}
}

// Op is the relation of a constraint.
type Op int

const (
	Eq Op = iota
	Le
	Ge
)

// String returns the mathematical symbol of the relation.
func (o Op) String() string {
	switch o {
	case Eq:
		return "=="
	case Le:
		return "<="
	case Ge:
		return ">="
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp accepts "==", "=", "<=" and ">=".
func ParseOp(s string) (Op, error) {
	switch strings.TrimSpace(s) {
	case "==", "=", "eq":
		return Eq, nil
	case "<=", "le":
		return Le, nil
	case ">=", "ge":
		return Ge, nil
	default:
		return 0, NewErrorf("unknown constraint relation %q", s).WithComponent("model")
	}
}

// Constraint is LHS Op RHS.
type Constraint struct {
	Name string
	LHS  Expr
	Op   Op
	RHS  Expr
}
