// Package condition compiles and evaluates the boolean start conditions of integrations.
//
// A condition declares typed variables, each resolved from a literal value, a dotted path
// into the message or a dotted path into the integration configuration, and a boolean
// expression over those variables. Expressions use CEL syntax; the Java style helpers
// endsWith, startsWith, contains and equals are available as member calls.
//
// Floating point equality is not special-cased: x == 0.3 compares exact binary values and
// is the caller's responsibility.
package condition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/integra/pkg/faults"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// VarType is the declared type of a condition variable.
type VarType string

const (
	TypeString  VarType = "String"
	TypeBoolean VarType = "Boolean"
	TypeInteger VarType = "Integer"
	TypeLong    VarType = "Long"
	TypeFloat   VarType = "Float"
	TypeDouble  VarType = "Double"
)

var (
	ErrUnknownType       = errors.New("unknown variable type")
	ErrVariableSource    = errors.New("variable must declare exactly one of value, from_message or from_config")
	ErrNotBoolean        = errors.New("condition expression must evaluate to a boolean")
	ErrInvalidExpression = errors.New("invalid condition expression")
)

// Variable declares one typed input of a condition.
type Variable struct {
	Type        VarType `json:"type"                   yaml:"type"                   validate:"required,oneof=String Boolean Integer Long Float Double"`
	Value       any     `json:"value,omitempty"        yaml:"value,omitempty"`
	FromMessage string  `json:"from_message,omitempty" yaml:"from_message,omitempty"`
	FromConfig  string  `json:"from_config,omitempty"  yaml:"from_config,omitempty"`
}

// Definition is the declarative form of a condition.
type Definition struct {
	Expression string              `json:"expression"     yaml:"expression"`
	Vars       map[string]Variable `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// Evaluator is a compiled condition. It is safe for concurrent use.
type Evaluator struct {
	expression string
	vars       map[string]Variable
	program    cel.Program
}

// Always returns an evaluator that is constantly true.
func Always() *Evaluator {
	return &Evaluator{}
}

// Compile type-checks the definition. A nil definition or an empty expression compiles to Always.
func Compile(def *Definition) (*Evaluator, error) {
	if def == nil || def.Expression == "" {
		return Always(), nil
	}

	names := make([]string, 0, len(def.Vars))
	for name := range def.Vars {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		v := def.Vars[name]

		if _, err := v.Type.celType(); err != nil {
			return nil, faults.Configuration("CompileCondition", name, err)
		}

		if v.sources() != 1 {
			return nil, faults.Configuration("CompileCondition", name, ErrVariableSource)
		}
	}

	env, ast, err := check(def, names, false)
	if err != nil && def.hasNumericVars() {
		// int and double operands only meet in ordering comparisons; equality between them
		// type-checks once numeric variables are dynamic and is decided numerically at runtime
		env, ast, err = check(def, names, true)
	}

	if err != nil {
		return nil, err
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, faults.Configuration("CompileCondition", "", err)
	}

	vars := make(map[string]Variable, len(def.Vars))
	for name, v := range def.Vars {
		vars[name] = v
	}

	return &Evaluator{
		expression: def.Expression,
		vars:       vars,
		program:    program,
	}, nil
}

func check(def *Definition, names []string, dynamicNumbers bool) (*cel.Env, *cel.Ast, error) {
	opts := []cel.EnvOption{equalsFunction(), cel.CrossTypeNumericComparisons(true)}

	for _, name := range names {
		v := def.Vars[name]

		celType, err := v.Type.celType()
		if err != nil {
			return nil, nil, faults.Configuration("CompileCondition", name, err)
		}

		if dynamicNumbers && v.Type.numeric() {
			celType = cel.DynType
		}

		opts = append(opts, cel.Variable(name, celType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, nil, faults.Configuration("CompileCondition", "", err)
	}

	ast, issues := env.Compile(def.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, nil, faults.Configuration("CompileCondition", "",
			fmt.Errorf("%w: %s", ErrInvalidExpression, issues.Err().Error()))
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, nil, faults.Configuration("CompileCondition", "",
			fmt.Errorf("%w: got %s", ErrNotBoolean, ast.OutputType()))
	}

	return env, ast, nil
}

func (d *Definition) hasNumericVars() bool {
	for _, v := range d.Vars {
		if v.Type.numeric() {
			return true
		}
	}

	return false
}

// Expression returns the source expression, empty for Always.
func (e *Evaluator) Expression() string {
	return e.expression
}

// Evaluate resolves every variable against message and config and runs the expression.
func (e *Evaluator) Evaluate(message, config any) (bool, error) {
	if e.program == nil {
		return true, nil
	}

	activation := make(map[string]any, len(e.vars))

	for name, v := range e.vars {
		var raw any

		switch {
		case v.FromMessage != "":
			raw = Resolve(message, v.FromMessage)
		case v.FromConfig != "":
			raw = Resolve(config, v.FromConfig)
		default:
			raw = v.Value
		}

		activation[name] = v.Type.coerce(raw)
	}

	out, _, err := e.program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", e.expression, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, out.Value())
	}

	return result, nil
}

func (v Variable) sources() int {
	count := 0

	if v.Value != nil {
		count++
	}

	if v.FromMessage != "" {
		count++
	}

	if v.FromConfig != "" {
		count++
	}

	return count
}

func (t VarType) celType() (*cel.Type, error) {
	switch t {
	case TypeString:
		return cel.StringType, nil
	case TypeBoolean:
		return cel.BoolType, nil
	case TypeInteger, TypeLong:
		return cel.IntType, nil
	case TypeFloat, TypeDouble:
		return cel.DoubleType, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func (t VarType) numeric() bool {
	switch t {
	case TypeInteger, TypeLong, TypeFloat, TypeDouble:
		return true
	default:
		return false
	}
}

// equalsFunction exposes a.equals(b) for every supported variable type.
func equalsFunction() cel.EnvOption {
	equal := cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
		return lhs.Equal(rhs)
	})

	return cel.Function("equals",
		cel.MemberOverload("string_equals_string", []*cel.Type{cel.StringType, cel.StringType}, cel.BoolType, equal),
		cel.MemberOverload("bool_equals_bool", []*cel.Type{cel.BoolType, cel.BoolType}, cel.BoolType, equal),
		cel.MemberOverload("int_equals_int", []*cel.Type{cel.IntType, cel.IntType}, cel.BoolType, equal),
		cel.MemberOverload("double_equals_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.BoolType, equal),
		cel.MemberOverload("int_equals_double", []*cel.Type{cel.IntType, cel.DoubleType}, cel.BoolType, equal),
		cel.MemberOverload("double_equals_int", []*cel.Type{cel.DoubleType, cel.IntType}, cel.BoolType, equal),
	)
}
