package locator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
)

func TestLocate_JavaScript(t *testing.T) {
	cases := []struct {
		line    string
		keyword string
		name    string
	}{
		{"const x;", "const", "x"},
		{"  let $total = 1 + 2", "let", "$total"},
		{"var _a9 = foo()", "var", "_a9"},
		{"const a = 1, b = 2;", "const", "a"},
	}
	for _, tc := range cases {
		v, err := locator.Locate(tc.line, locator.LangJavaScript)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.keyword, v.Keyword)
		assert.Equal(t, tc.name, v.Name)
	}
}

func TestLocate_Python(t *testing.T) {
	v, err := locator.Locate("total = a + b", locator.LangPython)
	require.NoError(t, err)
	assert.Equal(t, "", v.Keyword)
	assert.Equal(t, "total", v.Name)
	assert.Equal(t, "total", v.Decl())

	v, err = locator.Locate("x =", locator.LangPython)
	require.NoError(t, err)
	assert.Equal(t, "x", v.Name)
}

func TestLocate_NoDeclaration(t *testing.T) {
	for _, tc := range []struct{ line, lang string }{
		{"console.log(x)", locator.LangJavaScript},
		{"// const x = 1", locator.LangJavaScript},
		{"constant = 1", locator.LangJavaScript},
		{"if x == 1:", locator.LangPython},
		{"x += 1", locator.LangPython},
		{"", locator.LangPython},
	} {
		_, err := locator.Locate(tc.line, tc.lang)
		assert.True(t, errors.Is(err, domain.ErrNoDeclarationFound), "%q: %v", tc.line, err)
	}
}

func TestLocate_UnsupportedLanguage(t *testing.T) {
	_, err := locator.Locate("x := 1", "go")
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
}

func TestLocate_Idempotent(t *testing.T) {
	first, err1 := locator.Locate("const y = x + 1;", locator.LangJavaScript)
	second, err2 := locator.Locate("const y = x + 1;", locator.LangJavaScript)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestDeclaringLines(t *testing.T) {
	code := "// title: demo\nconst x;\n\nconsole.log(x)\nconst y = x + 1;"
	assert.Equal(t, []int{2, 5}, locator.DeclaringLines(code, locator.LangJavaScript))
	assert.Empty(t, locator.DeclaringLines("print(1)", locator.LangPython))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "hello_world", locator.Title("// title: hello_world\nconst x = 1"))
	assert.Equal(t, "plot", locator.Title("# title: plot\nx = 1"))
	assert.Equal(t, locator.DefaultTitle, locator.Title("const x = 1"))
	assert.Equal(t, "abcdefghijklmnopqrstuvwxy...", locator.Title("// title: abcdefghijklmnopqrstuvwxyz"))
}
