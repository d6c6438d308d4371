package linprog

import (
	"math"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// Definition is the serialized form of a linear program. It is read from YAML
// or JSON.
//
//	name: energy
//	variables:
//	  - {name: LIGN, upper: 31000}
//	objectives:
//	  - name: cost
//	    sense: minimize
//	    terms: {LIGN: 30}
//	constraints:
//	  - {name: demand, terms: {LIGN: 1}, op: ">=", rhs: 38400}
//
// Term keys name variables or parameters.
type Definition struct {
	Name        string             `json:"name" yaml:"name"`
	Variables   []VariableDef      `json:"variables" yaml:"variables"`
	Parameters  map[string]float64 `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Objectives  []ObjectiveDef     `json:"objectives" yaml:"objectives"`
	Constraints []ConstraintDef    `json:"constraints" yaml:"constraints"`
}

// VariableDef declares a variable. Lower defaults to 0 and Upper to +Inf.
type VariableDef struct {
	Name  string   `json:"name" yaml:"name"`
	Lower *float64 `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
}

// ObjectiveDef declares an objective.
type ObjectiveDef struct {
	Name     string             `json:"name" yaml:"name"`
	Sense    string             `json:"sense" yaml:"sense"`
	Terms    map[string]float64 `json:"terms" yaml:"terms"`
	Constant float64            `json:"constant,omitempty" yaml:"constant,omitempty"`
}

// ConstraintDef declares terms op rhs.
type ConstraintDef struct {
	Name  string             `json:"name" yaml:"name"`
	Terms map[string]float64 `json:"terms" yaml:"terms"`
	Op    string             `json:"op" yaml:"op"`
	RHS   float64            `json:"rhs" yaml:"rhs"`
}

// Parse decodes a definition from YAML or JSON.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, optimization.WrapError(err, "decoding model definition").WithComponent(component)
	}
	return &def, nil
}

// LoadFile reads and decodes a definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, optimization.WrapErrorf(err, "reading model definition %s", path).WithComponent(component)
	}
	return Parse(data)
}

// Build creates a Model from the definition.
func (d *Definition) Build() (*Model, error) {
	const op = "Build"
	if len(d.Objectives) == 0 {
		return nil, optimization.ModelErrorf("model %q has no objectives", d.Name).WithComponent(component).WithOperation(op)
	}

	m := NewModel(d.Name)
	for _, v := range d.Variables {
		lower, upper := 0.0, math.Inf(1)
		if v.Lower != nil {
			lower = *v.Lower
		}
		if v.Upper != nil {
			upper = *v.Upper
		}
		if err := m.AddBoundedVariable(v.Name, lower, upper); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(d.Parameters) {
		if err := m.AddParameter(name, d.Parameters[name]); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(d.Objectives))
	for i, o := range d.Objectives {
		name := o.Name
		if name == "" {
			name = defaultObjectiveName(i + 1)
		}
		if seen[name] {
			return nil, optimization.ModelErrorf("duplicate objective %q", name).WithComponent(component).WithOperation(op)
		}
		seen[name] = true
		sense, err := optimization.ParseSense(o.Sense)
		if err != nil {
			return nil, err
		}
		e, err := m.terms(o.Terms)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "objective %q", name).WithComponent(component).WithOperation(op)
		}
		e.Constant = o.Constant
		if _, err := m.AddObjective(name, sense, e); err != nil {
			return nil, err
		}
	}

	for _, c := range d.Constraints {
		rel, err := optimization.ParseOp(c.Op)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "constraint %q", c.Name).WithComponent(component).WithOperation(op)
		}
		lhs, err := m.terms(c.Terms)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "constraint %q", c.Name).WithComponent(component).WithOperation(op)
		}
		if err := m.AddConstraint(optimization.Constraint{
			Name: c.Name,
			LHS:  lhs,
			Op:   rel,
			RHS:  optimization.Const(c.RHS),
		}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObjectiveNames returns the objective names in index order.
func (d *Definition) ObjectiveNames() []string {
	names := make([]string, len(d.Objectives))
	for i, o := range d.Objectives {
		names[i] = o.Name
		if names[i] == "" {
			names[i] = defaultObjectiveName(i + 1)
		}
	}
	return names
}

// terms resolves a name→coefficient map against the model's variables and
// parameters, in sorted key order.
func (m *Model) terms(in map[string]float64) (optimization.Expr, error) {
	var e optimization.Expr
	for _, name := range sortedKeys(in) {
		coef := in[name]
		if _, ok := m.varIndex[name]; ok {
			e.Terms = append(e.Terms, optimization.Var(name, coef))
			continue
		}
		if _, ok := m.params[name]; ok {
			e.Terms = append(e.Terms, optimization.Param(name, coef))
			continue
		}
		return e, optimization.ModelErrorf("unknown variable or parameter %q", name)
	}
	return e, nil
}

func defaultObjectiveName(index int) string {
	return "f" + strconv.Itoa(index)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
