package sweep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRunSweep = `{
	"a": {"sweep_type": "constant", "value": 1},
	"b": {"sweep_type": "manual", "value": [1, 2]}
}`

func TestExpandTwoRuns(t *testing.T) {
	spec, err := ParseJSON([]byte(twoRunSweep))
	require.NoError(t, err)

	exp, err := Expand(spec)
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Len())

	ids, err := exp.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"003046309895da8f", "59f34f64ff1615a2"}, ids)
}

func TestExpandRunCountIsProduct(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		expected int
	}{
		{"no parameters", `{}`, 1},
		{"single constant", `{"a": {"sweep_type": "constant", "value": 3}}`, 1},
		{"manual x linspace", `{
			"a": {"sweep_type": "manual", "value": [1, 2, 3]},
			"b": {"sweep_type": "linspace", "value": [0, 1, 4]}
		}`, 12},
		{"string does not expand", `{
			"a": {"sweep_type": "string", "value": "x"},
			"b": {"sweep_type": "manual", "value": ["p", "q"]},
			"c": {"sweep_type": "manual", "value": [true, false, null]}
		}`, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseJSON([]byte(tt.doc))
			require.NoError(t, err)
			exp, err := Expand(spec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exp.Len())

			ids, err := exp.IDs()
			require.NoError(t, err)
			assert.Len(t, ids, tt.expected)
		})
	}
}

func TestExpandOrderLastParameterFastest(t *testing.T) {
	spec, err := ParseJSON([]byte(`{
		"z": {"sweep_type": "manual", "value": [1, 2]},
		"a": {"sweep_type": "manual", "value": ["x", "y"]}
	}`))
	require.NoError(t, err)
	exp, err := Expand(spec)
	require.NoError(t, err)

	var got [][2]any
	for run, err := range exp.All() {
		require.NoError(t, err)
		got = append(got, [2]any{run.Params["z"], run.Params["a"]})
	}
	assert.Equal(t, [][2]any{
		{int64(1), "x"}, {int64(1), "y"},
		{int64(2), "x"}, {int64(2), "y"},
	}, got)
}

func TestExpandIsRestartable(t *testing.T) {
	spec, err := ParseJSON([]byte(twoRunSweep))
	require.NoError(t, err)
	exp, err := Expand(spec)
	require.NoError(t, err)

	first, err := exp.IDs()
	require.NoError(t, err)
	second, err := exp.IDs()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Early break must not disturb later iterations.
	for range exp.All() {
		break
	}
	third, err := exp.IDs()
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestIdentityIgnoresKeyOrder(t *testing.T) {
	reordered := `{
		"b": {"value": [1, 2], "sweep_type": "manual"},
		"a": {"value": 1, "sweep_type": "constant"}
	}`

	specA, err := ParseJSON([]byte(twoRunSweep))
	require.NoError(t, err)
	specB, err := ParseJSON([]byte(reordered))
	require.NoError(t, err)

	expA, err := Expand(specA)
	require.NoError(t, err)
	expB, err := Expand(specB)
	require.NoError(t, err)

	idsA, err := expA.IDs()
	require.NoError(t, err)
	idsB, err := expB.IDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, idsA, idsB)

	fpA, err := specA.Fingerprint()
	require.NoError(t, err)
	fpB, err := specB.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
	assert.Equal(t, "25dab0d23bf76c4a", fpA)
}

func TestRunDocumentMatchesID(t *testing.T) {
	spec, err := ParseJSON([]byte(`{"x": {"sweep_type": "linspace", "value": [0, 1, 3]}}`))
	require.NoError(t, err)
	exp, err := Expand(spec)
	require.NoError(t, err)

	var ids []string
	for run, err := range exp.All() {
		require.NoError(t, err)
		ids = append(ids, run.ID)
		assert.Contains(t, string(run.Document), `"x": `)
	}
	assert.Equal(t, []string{"07ff8f7387242051", "39f13cbac0928a24", "1245bc2ea24037e9"}, ids)
}

func TestResolveLinspace(t *testing.T) {
	values, err := Resolve("x", Rule{Kind: KindLinspace, Value: []any{int64(0), int64(1), int64(5)}})
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 0.25, 0.5, 0.75, 1.0}, values)

	single, err := Resolve("x", Rule{Kind: KindLinspace, Value: []any{2.5, int64(9), int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, []any{2.5}, single)
}

func TestResolveDefinitionErrors(t *testing.T) {
	tests := []struct {
		name   string
		rule   Rule
		reason string
	}{
		{"constant string", Rule{Kind: KindConstant, Value: "1"}, "constant requires a single number"},
		{"constant list", Rule{Kind: KindConstant, Value: []any{int64(1)}}, "constant requires a single number"},
		{"constant bool", Rule{Kind: KindConstant, Value: true}, "constant requires a single number"},
		{"manual scalar", Rule{Kind: KindManual, Value: int64(1)}, "manual requires a list"},
		{"manual empty", Rule{Kind: KindManual, Value: []any{}}, "manual list is empty"},
		{"linspace arity", Rule{Kind: KindLinspace, Value: []any{int64(0), int64(1)}}, "linspace requires [start, stop, count]"},
		{"linspace float count", Rule{Kind: KindLinspace, Value: []any{int64(0), int64(1), 2.0}}, "count must be an integer"},
		{"linspace zero count", Rule{Kind: KindLinspace, Value: []any{int64(0), int64(1), int64(0)}}, "at least 1"},
		{"linspace bad start", Rule{Kind: KindLinspace, Value: []any{"a", int64(1), int64(2)}}, "start must be a number"},
		{"string number", Rule{Kind: KindString, Value: int64(1)}, "string requires a string literal"},
		{"missing type", Rule{Value: int64(1)}, "missing sweep_type"},
		{"unknown type", Rule{Kind: "range", Value: int64(1)}, `unknown sweep_type "range"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve("param_x", tt.rule)
			require.Error(t, err)
			assert.True(t, IsDefinitionError(err))
			assert.Contains(t, err.Error(), "`param_x`")
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestExpandFailsOnFirstInvalidRule(t *testing.T) {
	spec, err := ParseJSON([]byte(`{
		"ok": {"sweep_type": "manual", "value": [1]},
		"bad1": {"sweep_type": "manual", "value": 7},
		"bad2": {"sweep_type": "constant", "value": "x"}
	}`))
	require.NoError(t, err)

	_, err = Expand(spec)
	require.Error(t, err)

	var de *DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad1", de.Param)
}

func TestParseJSONDuplicateParameter(t *testing.T) {
	_, err := ParseJSON([]byte(`{
		"a": {"sweep_type": "constant", "value": 1},
		"a": {"sweep_type": "constant", "value": 2}
	}`))
	require.Error(t, err)
	assert.True(t, IsDefinitionError(err))
}

func TestParseJSONRejectsNonObject(t *testing.T) {
	_, err := ParseJSON([]byte(`[1, 2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top level must be an object")
}

func TestParseJSONNumberKinds(t *testing.T) {
	spec, err := ParseJSON([]byte(`{
		"i": {"sweep_type": "constant", "value": 3},
		"f": {"sweep_type": "constant", "value": 3.0},
		"e": {"sweep_type": "constant", "value": 1e3}
	}`))
	require.NoError(t, err)
	require.Len(t, spec.Params, 3)
	assert.Equal(t, int64(3), spec.Params[0].Rule.Value)
	assert.Equal(t, 3.0, spec.Params[1].Rule.Value)
	assert.Equal(t, 1000.0, spec.Params[2].Rule.Value)
}

func TestParseYAMLMatchesJSON(t *testing.T) {
	yamlDoc := `
a:
  sweep_type: constant
  value: 1
b:
  sweep_type: manual
  value: [1, 2]
`
	fromYAML, err := ParseYAML([]byte(yamlDoc))
	require.NoError(t, err)
	fromJSON, err := ParseJSON([]byte(twoRunSweep))
	require.NoError(t, err)

	assert.Equal(t, fromJSON.Names(), fromYAML.Names())

	expY, err := Expand(fromYAML)
	require.NoError(t, err)
	idsY, err := expY.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"003046309895da8f", "59f34f64ff1615a2"}, idsY)
}

func TestParseCUEMatchesJSON(t *testing.T) {
	cueDoc := `
a: {sweep_type: "constant", value: 1}
b: {sweep_type: "manual", value: [1, 2]}
`
	spec, err := ParseCUE("sweep.cue", []byte(cueDoc))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, spec.Names())

	exp, err := Expand(spec)
	require.NoError(t, err)
	ids, err := exp.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"003046309895da8f", "59f34f64ff1615a2"}, ids)
}

func TestParseCUEIncompleteValue(t *testing.T) {
	_, err := ParseCUE("sweep.cue", []byte(`a: {sweep_type: "constant", value: int}`))
	require.Error(t, err)
	assert.True(t, IsDefinitionError(err))
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "sweep.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(twoRunSweep), 0644))
	spec, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, spec.Names())

	ymlPath := filepath.Join(dir, "sweep.yml")
	require.NoError(t, os.WriteFile(ymlPath, []byte("a: {sweep_type: string, value: hi}\n"), 0644))
	spec, err = Load(ymlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, spec.Names())

	txtPath := filepath.Join(dir, "sweep.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("{}"), 0644))
	_, err = Load(txtPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sweep file extension")

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
