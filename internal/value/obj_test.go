package value_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/value"
)

const svgMarkup = `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>`

func representative(t *testing.T) []value.Obj {
	t.Helper()
	j, err := value.JSON(map[string]any{"a": []any{1.0, "two", true, nil}})
	require.NoError(t, err)
	c, err := value.CSV([][]string{{"name", "size"}, {"Chile", "756,102"}, {"Peru"}})
	require.NoError(t, err)
	return []value.Obj{
		value.Text("hello 'world'\n"),
		j,
		c,
		value.SVGObj(svgMarkup),
		value.Binary([]byte{0, 1, 2, 254, 255}),
		value.Undefined(),
	}
}

func TestParseFrom_RoundTrip(t *testing.T) {
	for _, o := range representative(t) {
		v, err := value.Parse(o)
		require.NoError(t, err, o.Type)
		back, err := value.From(v)
		require.NoError(t, err, o.Type)
		assert.Equal(t, o.Type, back.Type)

		again, err := value.Parse(back)
		require.NoError(t, err)
		if diff := cmp.Diff(v, again); diff != "" {
			t.Errorf("%s round trip mismatch (-first +second):\n%s", o.Type, diff)
		}
	}
}

func TestParse_Error(t *testing.T) {
	v, err := value.Parse(value.ErrorObj("boom"))
	require.NoError(t, err)
	rerr, ok := v.(*value.RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "boom", rerr.Error())

	back, err := value.From(rerr)
	require.NoError(t, err)
	assert.Equal(t, value.ErrorObj("boom"), back)
}

func TestParse_Invalid(t *testing.T) {
	_, err := value.Parse(value.Obj{Type: value.TypeJSON, Data: "{"})
	assert.Error(t, err)
	_, err = value.Parse(value.Obj{Type: value.TypeSVG, Data: "<div/>"})
	assert.Error(t, err)
	_, err = value.Parse(value.Obj{Type: value.TypeBinary, Data: "!!"})
	assert.Error(t, err)
	_, err = value.Parse(value.Obj{Type: "NUMBER", Data: "1"})
	assert.Error(t, err)
}

func TestFrom_ClassifiesStrings(t *testing.T) {
	o, err := value.From(svgMarkup)
	require.NoError(t, err)
	assert.Equal(t, value.TypeSVG, o.Type)

	o, err = value.From("<svg not closed")
	require.NoError(t, err)
	assert.Equal(t, value.TypeText, o.Type)

	o, err = value.From(6.0)
	require.NoError(t, err)
	assert.Equal(t, value.Obj{Type: value.TypeJSON, Data: "6"}, o)
}

func TestParseCSV_SkipsEmptyLines(t *testing.T) {
	rows, err := value.ParseCSV("a,b\n\n1,2\n")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "plain", value.Stringify("plain"))
	assert.Equal(t, "[\n  1,\n  2\n]", value.Stringify([]any{1, 2}))
	assert.Equal(t, "undefined", value.Stringify(value.UndefinedValue{}))
}
