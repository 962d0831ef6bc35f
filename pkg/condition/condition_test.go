package condition_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/integra/pkg/condition"
	"github.com/dukex/integra/pkg/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()

	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))

	return v
}

func TestCompile_NoCondition(t *testing.T) {
	t.Parallel()

	for _, def := range []*condition.Definition{nil, {}} {
		evaluator, err := condition.Compile(def)
		require.NoError(t, err)

		ok, err := evaluator.Evaluate(map[string]any{"a": 1}, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestEvaluate_LiteralTrue(t *testing.T) {
	t.Parallel()

	evaluator, err := condition.Compile(&condition.Definition{Expression: "true"})
	require.NoError(t, err)

	for _, message := range []any{nil, "text", map[string]any{"x": false}, []any{1, 2}} {
		ok, err := evaluator.Evaluate(message, map[string]any{"y": 1})
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestEvaluate_MixedSources(t *testing.T) {
	t.Parallel()

	evaluator, err := condition.Compile(&condition.Definition{
		Expression: `(x == 3.0 || x.equals(e)) && c.endsWith(d)`,
		Vars: map[string]condition.Variable{
			"x": {Type: condition.TypeFloat, FromMessage: "a.b"},
			"c": {Type: condition.TypeString, FromMessage: "c"},
			"d": {Type: condition.TypeString, FromConfig: "d"},
			"e": {Type: condition.TypeFloat, Value: 5.0},
		},
	})
	require.NoError(t, err)

	message := decode(t, `{"a":[{"b":5.0}],"c":"wwwVwww"}`)

	ok, err := evaluator.Evaluate(message, decode(t, `{"d":"w"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = evaluator.Evaluate(message, decode(t, `{"d":"V"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = evaluator.Evaluate(decode(t, `{"a":[{"b":3}],"c":"xw"}`), decode(t, `{"d":"w"}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_MissingPathsUseZeroValues(t *testing.T) {
	t.Parallel()

	evaluator, err := condition.Compile(&condition.Definition{
		Expression: `s == "" && !b && i == 0 && f == 0.0`,
		Vars: map[string]condition.Variable{
			"s": {Type: condition.TypeString, FromMessage: "missing.path"},
			"b": {Type: condition.TypeBoolean, FromMessage: "flag"},
			"i": {Type: condition.TypeLong, FromConfig: "limits.max"},
			"f": {Type: condition.TypeDouble, FromMessage: "items.price"},
		},
	})
	require.NoError(t, err)

	ok, err := evaluator.Evaluate(decode(t, `{"flag":null,"items":[]}`), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_TypeCoercion(t *testing.T) {
	t.Parallel()

	evaluator, err := condition.Compile(&condition.Definition{
		Expression: `count > 2 && enabled && name.startsWith("ord") && ratio < 1.5`,
		Vars: map[string]condition.Variable{
			"count":   {Type: condition.TypeInteger, FromMessage: "count"},
			"enabled": {Type: condition.TypeBoolean, FromConfig: "enabled"},
			"name":    {Type: condition.TypeString, FromMessage: "kind"},
			"ratio":   {Type: condition.TypeDouble, FromConfig: "ratio"},
		},
	})
	require.NoError(t, err)

	ok, err := evaluator.Evaluate(
		decode(t, `{"count":"7","kind":"orders"}`),
		decode(t, `{"enabled":"true","ratio":1}`),
	)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_StructPayload(t *testing.T) {
	t.Parallel()

	type order struct {
		Status string `json:"status"`
	}

	evaluator, err := condition.Compile(&condition.Definition{
		Expression: `status.equals("open")`,
		Vars: map[string]condition.Variable{
			"status": {Type: condition.TypeString, FromMessage: "status"},
		},
	})
	require.NoError(t, err)

	ok, err := evaluator.Evaluate(order{Status: "open"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_MixedNumericTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		expression string
		varType    condition.VarType
		value      any
		expected   bool
	}{
		{name: "double greater than int literal", expression: `x > 3`, varType: condition.TypeDouble, value: 3.5, expected: true},
		{name: "double equals int literal", expression: `x == 3`, varType: condition.TypeDouble, value: 3.0, expected: true},
		{name: "double not equals int literal", expression: `x != 3`, varType: condition.TypeFloat, value: 3.25, expected: true},
		{name: "integer greater than double literal", expression: `x > 2.5`, varType: condition.TypeInteger, value: 3, expected: true},
		{name: "long lower than double literal", expression: `x < 2.5`, varType: condition.TypeLong, value: 3, expected: false},
		{name: "integer equals double literal", expression: `x == 2.0`, varType: condition.TypeInteger, value: 2, expected: true},
		{name: "integer equals double via equals", expression: `x.equals(2.0)`, varType: condition.TypeInteger, value: 2, expected: true},
		{name: "double equals int via equals", expression: `x.equals(4)`, varType: condition.TypeDouble, value: 4.5, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			evaluator, err := condition.Compile(&condition.Definition{
				Expression: tt.expression,
				Vars:       map[string]condition.Variable{"x": {Type: tt.varType, FromMessage: "x"}},
			})
			require.NoError(t, err)

			ok, err := evaluator.Evaluate(map[string]any{"x": tt.value}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         *condition.Definition
		expectedErr error
	}{
		{
			name:        "non boolean expression",
			def:         &condition.Definition{Expression: `1 + 2`},
			expectedErr: condition.ErrNotBoolean,
		},
		{
			name:        "unknown identifier",
			def:         &condition.Definition{Expression: `missing == 1`},
			expectedErr: condition.ErrInvalidExpression,
		},
		{
			name: "type mismatch",
			def: &condition.Definition{
				Expression: `s == 1`,
				Vars:       map[string]condition.Variable{"s": {Type: condition.TypeString, Value: "1"}},
			},
			expectedErr: condition.ErrInvalidExpression,
		},
		{
			name: "boolean compared with number",
			def: &condition.Definition{
				Expression: `b == 1 && n > 0`,
				Vars: map[string]condition.Variable{
					"b": {Type: condition.TypeBoolean, Value: true},
					"n": {Type: condition.TypeInteger, Value: 1},
				},
			},
			expectedErr: condition.ErrInvalidExpression,
		},
		{
			name: "unknown type",
			def: &condition.Definition{
				Expression: `v`,
				Vars:       map[string]condition.Variable{"v": {Type: "Decimal", Value: 1}},
			},
			expectedErr: condition.ErrUnknownType,
		},
		{
			name: "two sources",
			def: &condition.Definition{
				Expression: `v`,
				Vars: map[string]condition.Variable{
					"v": {Type: condition.TypeBoolean, Value: true, FromMessage: "v"},
				},
			},
			expectedErr: condition.ErrVariableSource,
		},
		{
			name: "no source",
			def: &condition.Definition{
				Expression: `v`,
				Vars:       map[string]condition.Variable{"v": {Type: condition.TypeBoolean}},
			},
			expectedErr: condition.ErrVariableSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			evaluator, err := condition.Compile(tt.def)
			require.Error(t, err)
			assert.Nil(t, evaluator)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.True(t, faults.IsConfiguration(err))
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	root := decode(t, `{"a":[{"b":{"c":[10,20]}},{"b":{"c":99}}],"n":null}`)

	assert.InDelta(t, 10.0, condition.Resolve(root, "a.b.c"), 0)
	assert.Nil(t, condition.Resolve(root, "n.x"))
	assert.Nil(t, condition.Resolve(root, "a.z"))
	assert.Nil(t, condition.Resolve("scalar", "a"))
	assert.Equal(t, map[string]any{"c": []any{10.0, 20.0}}, condition.Resolve(root, "a.b"))
}
