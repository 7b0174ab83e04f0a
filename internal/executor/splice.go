package executor

import (
	"fmt"
	"strconv"
	"strings"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
	"canvasflow/internal/value"
)

// Prepare rewrites every input's destination line to assign the
// declared name from a fresh alias, and names the variable behind every
// output. Line count never changes.
func Prepare(req Request) (*Script, error) {
	lang := strings.ToLower(req.Code.Language)
	lines := strings.Split(req.Code.Code, "\n")

	taken := req.Code.Code
	for _, lib := range req.Libraries {
		taken += "\n" + lib.Code
	}
	used := make(map[string]bool)

	s := &Script{BlockID: req.BlockID, Libraries: req.Libraries}
	for _, out := range req.Outputs {
		v, err := locateLine(lines, out.SrcLine, lang)
		if err != nil {
			return nil, err
		}
		s.Outputs = append(s.Outputs, Output{Line: out.SrcLine, Name: v.Name})
	}

	for _, in := range req.Inputs {
		if !in.IsInput() {
			return nil, fmt.Errorf("input from %s has no destination line", in.SourceID)
		}
		v, err := locateLine(lines, in.DestLine, lang)
		if err != nil {
			return nil, err
		}
		if in.Value == nil {
			return nil, &domain.ExecutionError{
				Name:    "InputNotFound",
				Message: fmt.Sprintf("no value for %s line %d", in.SourceID, in.SrcLine),
			}
		}
		val, err := value.Parse(*in.Value)
		if err != nil {
			return nil, err
		}

		alias := aliasFor(v.Name, taken, used)
		used[alias] = true
		indent := lines[in.DestLine-1][:len(lines[in.DestLine-1])-len(strings.TrimLeft(lines[in.DestLine-1], " \t"))]
		lines[in.DestLine-1] = indent + spliceLine(v, alias, lang)
		s.Aliases = append(s.Aliases, Alias{Name: alias, Value: val})
	}

	s.Source = strings.Join(lines, "\n")
	return s, nil
}

func locateLine(lines []string, line int, lang string) (locator.Variable, error) {
	if line < 1 || line > len(lines) {
		return locator.Variable{}, fmt.Errorf("%w: line %d is out of range", domain.ErrNoDeclarationFound, line)
	}
	return locator.Locate(lines[line-1], lang)
}

func spliceLine(v locator.Variable, alias, lang string) string {
	if lang == locator.LangPython {
		return v.Decl() + " = " + alias
	}
	return v.Decl() + " = " + alias + ";"
}

// aliasFor derives a parameter name from name that appears nowhere in
// src and has not been handed out yet.
func aliasFor(name, src string, used map[string]bool) string {
	for i := 0; ; i++ {
		alias := "__" + name + "_" + strconv.Itoa(i)
		if !used[alias] && !strings.Contains(src, alias) {
			return alias
		}
	}
}
