// Package locator finds the variable declared on a single line of source.
// Each language has exactly one recognized declaration form, and only the
// first declaration on a line counts.
package locator

import (
	"fmt"
	"regexp"
	"strings"

	"canvasflow/internal/domain"
)

const (
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangPython     = "python"
)

var grammars = map[string]*regexp.Regexp{
	LangJavaScript: regexp.MustCompile(`^\s*(?P<keyword>const|var|let)\s+(?P<name>[$_a-zA-Z0-9]+)`),
	LangTypeScript: regexp.MustCompile(`^\s*(?P<keyword>const|var|let)\s+(?P<name>[$_a-zA-Z0-9]+)`),
	LangPython:     regexp.MustCompile(`^\s*(?P<keyword>)(?P<name>[_a-zA-Z][_a-zA-Z0-9]*)\s*=[^=]`),
}

// Variable is a located declaration. Keyword is empty for languages that
// declare by plain assignment.
type Variable struct {
	Keyword string
	Name    string
}

// Decl renders "keyword name" (or just "name"), the left-hand side of a
// rewritten declaring line.
func (v Variable) Decl() string {
	if v.Keyword == "" {
		return v.Name
	}
	return v.Keyword + " " + v.Name
}

// Supported reports whether lang has a declaration grammar.
func Supported(lang string) bool {
	_, ok := grammars[strings.ToLower(lang)]
	return ok
}

// Locate returns the variable declared on line. It fails with
// domain.ErrNoDeclarationFound when the line declares nothing.
func Locate(line, lang string) (Variable, error) {
	re, ok := grammars[strings.ToLower(lang)]
	if !ok {
		return Variable{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, lang)
	}
	// A bare "x =" at end of line still declares x.
	m := re.FindStringSubmatch(line + "\n")
	if m == nil {
		return Variable{}, fmt.Errorf("%w: %q", domain.ErrNoDeclarationFound, line)
	}
	return Variable{
		Keyword: m[re.SubexpIndex("keyword")],
		Name:    m[re.SubexpIndex("name")],
	}, nil
}

// DeclaringLines returns the 1-based numbers of every line in code that
// declares a variable, in ascending order.
func DeclaringLines(code, lang string) []int {
	var lines []int
	for i, line := range strings.Split(code, "\n") {
		if _, err := Locate(line, lang); err == nil {
			lines = append(lines, i+1)
		}
	}
	return lines
}
