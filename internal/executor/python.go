package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/bazelbuild/buildtools/build"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
	"canvasflow/internal/value"
)

// fileOptions enables the Python features the Starlark dialect leaves out
// by default.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Python runs scripts in a Starlark interpreter. Imports become load
// statements resolved against the CDN; the only predeclared names are
// canvas and the aliases.
type Python struct {
	cdn    string
	loader ModuleLoader
}

func NewPython(cdn string, loader ModuleLoader) *Python {
	return &Python{cdn: cdn, loader: loader}
}

func (py *Python) Exec(ctx context.Context, s *Script, b Bridge) error {
	src := prependLibraries(s.Source, s.Libraries)
	imports, err := ParseImports(ctx, src, locator.LangPython, py.cdn)
	if err != nil {
		return err
	}
	body := lowerImports(src, imports, pythonLoads)

	predeclared := starlark.StringDict{"canvas": py.capability(ctx, s.BlockID, b)}
	for _, a := range s.Aliases {
		v, err := toStarlark(a.Value)
		if err != nil {
			return fmt.Errorf("bind %s: %w", a.Name, err)
		}
		predeclared[a.Name] = v
	}

	thread := py.thread(ctx, s.BlockID)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, s.BlockID+".py", body, predeclared)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ee := pyFailure(err)
		ee.Source = body
		return ee
	}

	for _, out := range s.Outputs {
		v, ok := globals[out.Name]
		if !ok {
			return &domain.ExecutionError{Name: "NameError", Message: fmt.Sprintf("name %q is not defined", out.Name), Source: body}
		}
		raw, err := fromStarlark(v)
		if err != nil {
			return err
		}
		obj, err := value.From(raw)
		if err != nil {
			return err
		}
		if err := b.StoreResult(s.BlockID, out.Line, obj); err != nil {
			return err
		}
	}
	return nil
}

// pythonLoads turns one import statement into load calls.
//
//	import foo        -> load(url, "foo")
//	import foo as f   -> load(url, f = "foo")
//	from foo import a -> load(url, "a")
func pythonLoads(group []Import) string {
	var stmts []string
	for _, imp := range group {
		var args []string
		if imp.Namespace != "" {
			if imp.Namespace == imp.Module {
				args = append(args, syntax.Quote(imp.Module, false))
			} else {
				args = append(args, imp.Namespace+" = "+syntax.Quote(imp.Module, false))
			}
		}
		for _, n := range imp.Names {
			if n.Alias == n.Name {
				args = append(args, syntax.Quote(n.Name, false))
			} else {
				args = append(args, n.Alias+" = "+syntax.Quote(n.Name, false))
			}
		}
		stmts = append(stmts, fmt.Sprintf("load(%s, %s)", syntax.Quote(imp.URL, false), strings.Join(args, ", ")))
	}
	return strings.Join(stmts, "; ")
}

func (py *Python) thread(ctx context.Context, name string) *starlark.Thread {
	type entry struct {
		globals starlark.StringDict
		err     error
	}
	cache := make(map[string]*entry)

	var load func(*starlark.Thread, string) (starlark.StringDict, error)
	load = func(_ *starlark.Thread, url string) (starlark.StringDict, error) {
		e, ok := cache[url]
		if e == nil && ok {
			return nil, fmt.Errorf("cycle in load graph at %s", url)
		}
		if ok {
			return e.globals, e.err
		}
		cache[url] = nil

		e = &entry{}
		if py.loader == nil {
			e.err = fmt.Errorf("%w: no module loader for %s", domain.ErrInvalidImport, url)
		} else if src, err := py.loader.Load(ctx, url); err != nil {
			e.err = err
		} else {
			child := &starlark.Thread{Name: url, Load: load, Print: printToLog}
			globals, err := starlark.ExecFileOptions(fileOptions, child, url, src, nil)
			if err != nil {
				e.err = err
			} else {
				name := path.Base(url)
				out := starlark.StringDict{name: &starlarkstruct.Module{Name: name, Members: globals}}
				for k, v := range globals {
					out[k] = v
				}
				e.globals = out
			}
		}
		cache[url] = e
		return e.globals, e.err
	}
	return &starlark.Thread{Name: name, Load: load, Print: printToLog}
}

func printToLog(_ *starlark.Thread, msg string) {
	log.Printf("[Executor] print: %s", msg)
}

func (py *Python) capability(ctx context.Context, blockID string, b Bridge) *starlarkstruct.Module {
	m := &starlarkstruct.Module{Name: "canvas", Members: starlark.StringDict{
		"queryNodes": starlark.NewBuiltin("queryNodes", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var selector, scope string
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "selector", &selector, "scopeId?", &scope); err != nil {
				return nil, err
			}
			nodes, err := b.QueryNodes(ctx, selector, scope)
			if err != nil {
				return nil, err
			}
			return toStarlark(anySlice(nodes))
		}),
		"storeResult": starlark.NewBuiltin("storeResult", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var id string
			var line int
			var v starlark.Value
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "blockId", &id, "line", &line, "value", &v); err != nil {
				return nil, err
			}
			obj, err := objFromStarlark(v)
			if err != nil {
				return nil, err
			}
			return starlark.None, b.StoreResult(id, line, obj)
		}),
		"storeAny": starlark.NewBuiltin("storeAny", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			var v starlark.Value
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "key", &key, "value", &v); err != nil {
				return nil, err
			}
			obj, err := objFromStarlark(v)
			if err != nil {
				return nil, err
			}
			return starlark.None, b.StoreAny(key, obj)
		}),
	}}
	m.Freeze()
	return m
}

func anySlice(nodes []any) []any {
	if nodes == nil {
		return []any{}
	}
	return nodes
}

// ── Value conversion ──────────────────────────────────────

const errorConstructor = starlark.String("error")

func toStarlark(v any) (starlark.Value, error) {
	switch t := v.(type) {
	case nil, value.UndefinedValue:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case int64:
		return starlark.MakeInt64(t), nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return starlark.MakeInt64(int64(t)), nil
		}
		return starlark.Float(t), nil
	case string:
		return starlark.String(t), nil
	case value.SVG:
		return starlark.String(t.Markup), nil
	case []byte:
		return starlark.Bytes(t), nil
	case *value.RuntimeError:
		return starlarkstruct.FromStringDict(errorConstructor, starlark.StringDict{"message": starlark.String(t.Message)}), nil
	case [][]string:
		rows := make([]starlark.Value, len(t))
		for i, r := range t {
			cells := make([]starlark.Value, len(r))
			for j, c := range r {
				cells[j] = starlark.String(c)
			}
			rows[i] = starlark.NewList(cells)
		}
		return starlark.NewList(rows), nil
	case []any:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(t))
		for _, k := range keys {
			sv, err := toStarlark(t[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot convert %T to a python value", v)
}

func fromStarlark(v starlark.Value) (any, error) {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(t), nil
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return i, nil
		}
		return float64(t.Float()), nil
	case starlark.Float:
		return float64(t), nil
	case starlark.String:
		return string(t), nil
	case starlark.Bytes:
		return []byte(t), nil
	case *starlark.Dict:
		out := make(map[string]any, t.Len())
		for _, item := range t.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0])
			}
			e, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = e
		}
		return out, nil
	case *starlarkstruct.Struct:
		if t.Constructor() == errorConstructor {
			msg, _ := t.Attr("message")
			s, _ := starlark.AsString(msg)
			return &value.RuntimeError{Message: s}, nil
		}
		out := make(map[string]any)
		for _, name := range t.AttrNames() {
			attr, _ := t.Attr(name)
			e, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			out[name] = e
		}
		return out, nil
	case starlark.Iterable:
		var out []any
		iter := t.Iterate()
		defer iter.Done()
		var e starlark.Value
		for iter.Next(&e) {
			ge, err := fromStarlark(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ge)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot store a %s value", v.Type())
}

func objFromStarlark(v starlark.Value) (value.Obj, error) {
	raw, err := fromStarlark(v)
	if err != nil {
		return value.Obj{}, err
	}
	return value.From(raw)
}

// ── Errors ────────────────────────────────────────────────

func pyFailure(err error) *domain.ExecutionError {
	var evalErr *starlark.EvalError
	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	switch {
	case errors.As(err, &evalErr):
		return &domain.ExecutionError{Name: "EvalError", Message: evalErr.Msg, Stack: evalErr.Backtrace()}
	case errors.As(err, &syntaxErr):
		return &domain.ExecutionError{Name: "SyntaxError", Message: syntaxErr.Msg, Stack: syntaxErr.Pos.String()}
	case errors.As(err, &resolveErrs):
		return &domain.ExecutionError{Name: "SyntaxError", Message: resolveErrs.Error()}
	}
	return &domain.ExecutionError{Name: "ExecutionError", Message: err.Error()}
}

// ── Formatting ────────────────────────────────────────────

func (py *Python) Format(code string) (string, error) {
	f, err := build.ParseDefault("script.py", []byte(code))
	if err != nil {
		return "", &domain.ExecutionError{Name: "SyntaxError", Message: err.Error()}
	}
	return string(build.Format(f)), nil
}

// FormatAsCode renders o as a Python literal.
func (py *Python) FormatAsCode(o value.Obj) (string, error) {
	switch o.Type {
	case value.TypeText, value.TypeSVG:
		return syntax.Quote(o.Data, false), nil
	case value.TypeUndefined:
		return "None", nil
	case value.TypeError:
		return "", fmt.Errorf("an error value cannot be written as source: %s", o.Data)
	}
	v, err := value.Parse(o)
	if err != nil {
		return "", err
	}
	if b, ok := v.([]byte); ok {
		return syntax.Quote(string(b), true), nil
	}
	if records, ok := v.([][]string); ok {
		rows := make([]any, len(records))
		for i, r := range records {
			cells := make([]any, len(r))
			for j, c := range r {
				cells[j] = c
			}
			rows[i] = cells
		}
		v = rows
	}
	return pyLiteral(v)
}

func pyLiteral(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "None", nil
	case bool:
		if t {
			return "True", nil
		}
		return "False", nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10), nil
		}
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, nil
	case string:
		return syntax.Quote(t, false), nil
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			s, err := pyLiteral(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			s, err := pyLiteral(t[k])
			if err != nil {
				return "", err
			}
			parts[i] = syntax.Quote(k, false) + ": " + s
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	}
	return "", fmt.Errorf("cannot write %T as a python literal", v)
}
