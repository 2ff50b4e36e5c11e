package component

import (
	"testing"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/stretchr/testify/require"
)

type stubEvalCtx map[string]interface{}

func (s stubEvalCtx) GetPropertyValue(name string) (interface{}, error) {
	v, ok := s[name]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "", "property %q not found", name)
	}
	return v, nil
}

func evalExpr(t *testing.T, src string, ctx EvalContext) interface{} {
	t.Helper()
	e, err := Compile(src)
	require.NoError(t, err)
	v, err := e.Eval(ctx)
	require.NoError(t, err)
	return v
}

func TestExprLiteralsAndArithmetic(t *testing.T) {
	cases := []struct {
		src  string
		want interface{}
	}{
		{"1 + 2 * 3", 7.0},
		{"(1 + 2) * 3", 9.0},
		{"10 / 4", 2.5},
		{"-5 + 2", -3.0},
		{"true", true},
		{"!false", true},
		{"'abc' + 'def'", "abcdef"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			require.Equal(t, tc.want, evalExpr(t, tc.src, nil))
		})
	}
}

func TestExprComparisonsAndLogic(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"1 == 1 && 2 != 3", true},
		{"1 > 2 || 'x' == 'x'", true},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			require.Equal(t, tc.want, evalExpr(t, tc.src, nil))
		})
	}
}

func TestExprConditional(t *testing.T) {
	require.Equal(t, "low", evalExpr(t, "if(1 < 2, 'low', 'high')", nil))
	require.Equal(t, 20.0, evalExpr(t, "if(false, 10, 20)", nil))
}

func TestExprIdentifiersResolveSiblingProperties(t *testing.T) {
	ctx := stubEvalCtx{"Gain": 2.0, "Enabled": true}
	require.Equal(t, 6.0, evalExpr(t, "$Gain * 3", ctx))
	require.Equal(t, true, evalExpr(t, "%Enabled && $Gain > 1", ctx))
}

func TestExprListLiteral(t *testing.T) {
	v := evalExpr(t, "[1, 2, 1 + 2]", nil)
	require.Equal(t, []interface{}{1.0, 2.0, 3.0}, v)
}

func TestExprConstructorCalls(t *testing.T) {
	v := evalExpr(t, "Unit('V')", nil)
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Unit", m["__type"])

	v = evalExpr(t, "Range(0, 10)", nil)
	m, ok = v.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Range", m["__type"])
	require.Equal(t, []interface{}{0.0, 10.0}, m["args"])
}

func TestExprErrors(t *testing.T) {
	_, err := Compile("1 +")
	require.Error(t, err)

	e, err := Compile("1 / 0")
	require.NoError(t, err)
	_, err = e.Eval(nil)
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))

	e, err = Compile("nosuchfn(1)")
	require.NoError(t, err)
	_, err = e.Eval(nil)
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))

	e, err = Compile("$Missing + 1")
	require.NoError(t, err)
	_, err = e.Eval(stubEvalCtx{})
	require.True(t, daqerr.Is(err, daqerr.NotFound))
}

func TestExprOverflowDuringCoercion(t *testing.T) {
	e, err := Compile("$Huge + $Huge")
	require.NoError(t, err)
	_, err = e.Eval(stubEvalCtx{"Huge": 1.5e308})
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))
}
