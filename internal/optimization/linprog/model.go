// Package linprog implements optimization.Model for linear programs on top of
// gonum's simplex solver.
package linprog

import (
	"math"
	"strings"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

const component = "linprog"

// DefaultTolerance is the reduced-cost tolerance handed to the simplex.
const DefaultTolerance = 1e-10

type variable struct {
	name  string
	lower float64
	upper float64
}

type objective struct {
	name   string
	sense  optimization.Sense
	base   optimization.Expr
	aug    optimization.Expr
	active bool
}

// Model is a linear program with named variables, parameters and constraints
// and a list of objectives of which exactly one is active at solve time.
//
// Variables have a finite lower bound and an optional upper bound. Objectives
// start deactivated.
type Model struct {
	name string

	vars     []variable
	varIndex map[string]int

	params map[string]float64

	objectives []*objective

	constraints []optimization.Constraint
	consIndex   map[string]int

	solver    optimization.SolverOptions
	tolerance float64

	status optimization.Status
	x      []float64
}

var _ optimization.Model = (*Model)(nil)

// NewModel creates an empty linear program.
func NewModel(name string) *Model {
	return &Model{
		name:      name,
		varIndex:  make(map[string]int),
		params:    make(map[string]float64),
		consIndex: make(map[string]int),
		tolerance: DefaultTolerance,
		solver:    optimization.SolverOptions{Name: SolverName, IO: SolverIO},
	}
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// NumVariables returns the number of variables, including any added by
// transformations.
func (m *Model) NumVariables() int {
	return len(m.vars)
}

// NumConstraints returns the number of constraints currently in the model.
func (m *Model) NumConstraints() int {
	return len(m.constraints)
}

// SetTolerance overrides the simplex tolerance.
func (m *Model) SetTolerance(tol float64) {
	if tol > 0 {
		m.tolerance = tol
	}
}

// AddVariable adds a variable bounded below by lower and unbounded above.
func (m *Model) AddVariable(name string, lower float64) error {
	return m.AddBoundedVariable(name, lower, math.Inf(1))
}

// AddBoundedVariable adds a variable with lower <= x <= upper.
func (m *Model) AddBoundedVariable(name string, lower, upper float64) error {
	const op = "AddVariable"
	if strings.TrimSpace(name) == "" {
		return optimization.ModelErrorf("variable name must not be empty").WithComponent(component).WithOperation(op)
	}
	if _, ok := m.varIndex[name]; ok {
		return optimization.ModelErrorf("variable %q already exists", name).WithComponent(component).WithOperation(op)
	}
	if _, ok := m.params[name]; ok {
		return optimization.ModelErrorf("%q is already a parameter", name).WithComponent(component).WithOperation(op)
	}
	if math.IsInf(lower, 0) || math.IsNaN(lower) {
		return optimization.ModelErrorf("variable %q needs a finite lower bound", name).WithComponent(component).WithOperation(op)
	}
	if math.IsNaN(upper) || upper < lower {
		return optimization.ModelErrorf("variable %q has upper bound %v below lower bound %v", name, upper, lower).
			WithComponent(component).WithOperation(op)
	}
	m.varIndex[name] = len(m.vars)
	m.vars = append(m.vars, variable{name: name, lower: lower, upper: upper})
	m.invalidate()
	return nil
}

// AddParameter adds a named mutable scalar.
func (m *Model) AddParameter(name string, value float64) error {
	const op = "AddParameter"
	if strings.TrimSpace(name) == "" {
		return optimization.ModelErrorf("parameter name must not be empty").WithComponent(component).WithOperation(op)
	}
	if _, ok := m.params[name]; ok {
		return optimization.ModelErrorf("parameter %q already exists", name).WithComponent(component).WithOperation(op)
	}
	if _, ok := m.varIndex[name]; ok {
		return optimization.ModelErrorf("%q is already a variable", name).WithComponent(component).WithOperation(op)
	}
	m.params[name] = value
	return nil
}

// SetParameter changes the value of an existing parameter.
func (m *Model) SetParameter(name string, value float64) error {
	if _, ok := m.params[name]; !ok {
		return optimization.ModelErrorf("unknown parameter %q", name).WithComponent(component).WithOperation("SetParameter")
	}
	m.params[name] = value
	m.invalidate()
	return nil
}

// Parameter returns the current value of a parameter.
func (m *Model) Parameter(name string) (float64, bool) {
	v, ok := m.params[name]
	return v, ok
}

// AddObjective appends an objective and returns its 1-based index.
func (m *Model) AddObjective(name string, sense optimization.Sense, e optimization.Expr) (int, error) {
	const op = "AddObjective"
	for _, t := range e.Terms {
		if t.Kind == optimization.ObjRef {
			return 0, optimization.ModelErrorf("objective %q may not reference another objective", name).
				WithComponent(component).WithOperation(op)
		}
	}
	m.objectives = append(m.objectives, &objective{name: name, sense: sense, base: e})
	return len(m.objectives), nil
}

// ObjectiveName returns the name of an objective.
func (m *Model) ObjectiveName(index int) (string, error) {
	o, err := m.objective(index)
	if err != nil {
		return "", err
	}
	return o.name, nil
}

// NumObjectives returns the number of objectives.
func (m *Model) NumObjectives() int {
	return len(m.objectives)
}

// Sense returns the direction of an objective.
func (m *Model) Sense(index int) (optimization.Sense, error) {
	o, err := m.objective(index)
	if err != nil {
		return 0, err
	}
	return o.sense, nil
}

// Configure accepts the simplex backend only. The simplex solves to
// optimality, so a non-zero gap is rejected.
func (m *Model) Configure(opts optimization.SolverOptions) error {
	const op = "Configure"
	name := strings.ToLower(opts.Name)
	if name != "" && name != SolverName && name != "gonum" {
		return optimization.ConfigErrorf("unsupported solver %q", opts.Name).WithComponent(component).WithOperation(op)
	}
	io := strings.ToLower(opts.IO)
	if io != "" && io != SolverIO {
		return optimization.ConfigErrorf("unsupported solver io %q", opts.IO).WithComponent(component).WithOperation(op)
	}
	if opts.Gap != 0 {
		return optimization.ConfigErrorf("simplex solves exactly, gap must be 0, got %v", opts.Gap).
			WithComponent(component).WithOperation(op)
	}
	m.solver = optimization.SolverOptions{Name: SolverName, IO: SolverIO}
	return nil
}

// Activate marks an objective as the one to optimize.
func (m *Model) Activate(index int) error {
	o, err := m.objective(index)
	if err != nil {
		return err
	}
	o.active = true
	m.invalidate()
	return nil
}

// Deactivate clears the active mark of an objective.
func (m *Model) Deactivate(index int) error {
	o, err := m.objective(index)
	if err != nil {
		return err
	}
	o.active = false
	m.invalidate()
	return nil
}

// AugmentObjective adds e to an objective's expression. The base expression
// stays available to constraints through optimization.Obj.
func (m *Model) AugmentObjective(index int, e optimization.Expr) error {
	o, err := m.objective(index)
	if err != nil {
		return err
	}
	for _, t := range e.Terms {
		if t.Kind == optimization.ObjRef {
			return optimization.ModelErrorf("objective augmentation may not reference an objective").
				WithComponent(component).WithOperation("AugmentObjective")
		}
	}
	o.aug = o.aug.Plus(e)
	m.invalidate()
	return nil
}

// AddConstraint adds a named constraint.
func (m *Model) AddConstraint(c optimization.Constraint) error {
	const op = "AddConstraint"
	if strings.TrimSpace(c.Name) == "" {
		return optimization.ModelErrorf("constraint name must not be empty").WithComponent(component).WithOperation(op)
	}
	if _, ok := m.consIndex[c.Name]; ok {
		return optimization.ModelErrorf("constraint %q already exists", c.Name).WithComponent(component).WithOperation(op)
	}
	// Resolve references now so a bad constraint fails here rather than at solve.
	if _, _, err := m.linearize(c.LHS.Plus(c.RHS.Scale(-1))); err != nil {
		return optimization.WrapErrorf(err, "constraint %q", c.Name).WithComponent(component).WithOperation(op)
	}
	m.consIndex[c.Name] = len(m.constraints)
	m.constraints = append(m.constraints, c)
	m.invalidate()
	return nil
}

// RemoveConstraint removes a named constraint.
func (m *Model) RemoveConstraint(name string) error {
	i, ok := m.consIndex[name]
	if !ok {
		return optimization.ModelErrorf("unknown constraint %q", name).WithComponent(component).WithOperation("RemoveConstraint")
	}
	m.constraints = append(m.constraints[:i], m.constraints[i+1:]...)
	delete(m.consIndex, name)
	for j := i; j < len(m.constraints); j++ {
		m.consIndex[m.constraints[j].Name] = j
	}
	m.invalidate()
	return nil
}

// Status returns the status of the last solve.
func (m *Model) Status() optimization.Status {
	return m.status
}

// ObjectiveValue evaluates an objective's current expression, including any
// augmentation, at the last optimal solution.
func (m *Model) ObjectiveValue(index int) (float64, error) {
	o, err := m.objective(index)
	if err != nil {
		return 0, err
	}
	if err := m.requireSolution("ObjectiveValue"); err != nil {
		return 0, err
	}
	return m.evaluate(o.base.Plus(o.aug))
}

// ExpressionValue evaluates e at the last optimal solution.
func (m *Model) ExpressionValue(e optimization.Expr) (float64, error) {
	if err := m.requireSolution("ExpressionValue"); err != nil {
		return 0, err
	}
	return m.evaluate(e)
}

// VariableValue returns a variable's value at the last optimal solution.
func (m *Model) VariableValue(name string) (float64, error) {
	i, ok := m.varIndex[name]
	if !ok {
		return 0, optimization.ModelErrorf("unknown variable %q", name).WithComponent(component).WithOperation("VariableValue")
	}
	if err := m.requireSolution("VariableValue"); err != nil {
		return 0, err
	}
	return m.x[i], nil
}

func (m *Model) objective(index int) (*objective, error) {
	if index < 1 || index > len(m.objectives) {
		return nil, optimization.ModelErrorf("objective index %d out of range [1, %d]", index, len(m.objectives)).
			WithComponent(component)
	}
	return m.objectives[index-1], nil
}

func (m *Model) requireSolution(op string) error {
	if m.status != optimization.StatusOptimal || len(m.x) != len(m.vars) {
		return optimization.ModelErrorf("no optimal solution available (status %s)", m.status).
			WithComponent(component).WithOperation(op)
	}
	return nil
}

// invalidate drops the last solution after a mutation.
func (m *Model) invalidate() {
	m.status = optimization.StatusNotSolved
	m.x = nil
}

// linearize flattens e into one coefficient per variable plus a constant,
// substituting current parameter values and objective base expressions.
func (m *Model) linearize(e optimization.Expr) ([]float64, float64, error) {
	coefs := make([]float64, len(m.vars))
	constant := e.Constant
	var add func(t optimization.Term, scale float64) error
	add = func(t optimization.Term, scale float64) error {
		switch t.Kind {
		case optimization.VarRef:
			i, ok := m.varIndex[t.Name]
			if !ok {
				return optimization.ModelErrorf("unknown variable %q", t.Name)
			}
			coefs[i] += scale * t.Coef
		case optimization.ParamRef:
			v, ok := m.params[t.Name]
			if !ok {
				return optimization.ModelErrorf("unknown parameter %q", t.Name)
			}
			constant += scale * t.Coef * v
		case optimization.ObjRef:
			o, err := m.objective(t.Index)
			if err != nil {
				return err
			}
			constant += scale * t.Coef * o.base.Constant
			for _, inner := range o.base.Terms {
				if err := add(inner, scale*t.Coef); err != nil {
					return err
				}
			}
		default:
			return optimization.ModelErrorf("unknown term kind %d", t.Kind)
		}
		return nil
	}
	for _, t := range e.Terms {
		if err := add(t, 1); err != nil {
			return nil, 0, err
		}
	}
	return coefs, constant, nil
}

func (m *Model) evaluate(e optimization.Expr) (float64, error) {
	coefs, constant, err := m.linearize(e)
	if err != nil {
		return 0, err
	}
	v := constant
	for i, c := range coefs {
		v += c * m.x[i]
	}
	return v, nil
}
