package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ditashi/jsbeautifier-go/jsbeautifier"
	"github.com/dop251/goja"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
	"canvasflow/internal/value"
)

// canvasFactory builds the frozen capability object from host functions.
// queryNodes is async so scripts await it like any other query.
const canvasFactory = `(function (query, storeResult, storeAny) {
	return Object.freeze({
		queryNodes: async function (selector, scopeId) { return query(selector, scopeId); },
		storeResult: function (blockId, line, value) { storeResult(blockId, line, value); },
		storeAny: function (key, value) { storeAny(key, value); },
	});
})`

// JavaScript runs scripts on goja. Each run gets a fresh VM holding only
// the ECMAScript built-ins, the canvas capability, the aliases, and the
// imported modules.
type JavaScript struct {
	cdn    string
	loader ModuleLoader
}

func NewJavaScript(cdn string, loader ModuleLoader) *JavaScript {
	return &JavaScript{cdn: cdn, loader: loader}
}

func (js *JavaScript) Exec(ctx context.Context, s *Script, b Bridge) error {
	src := prependLibraries(s.Source, s.Libraries)
	imports, err := ParseImports(ctx, src, locator.LangJavaScript, js.cdn)
	if err != nil {
		return err
	}

	params := []string{"canvas"}
	used := make(map[string]bool)
	for _, a := range s.Aliases {
		params = append(params, a.Name)
		used[a.Name] = true
	}
	modules := make(map[string]string)
	var urls []string
	body := lowerImports(src, imports, func(group []Import) string {
		imp := group[0]
		param, ok := modules[imp.URL]
		if !ok {
			param = aliasFor("mod", src, used)
			used[param] = true
			modules[imp.URL] = param
			urls = append(urls, imp.URL)
			params = append(params, param)
		}
		return jsBindings(imp, param)
	})

	var wrapped strings.Builder
	wrapped.WriteString("(async function (" + strings.Join(params, ", ") + ") {")
	wrapped.WriteString(body)
	for _, out := range s.Outputs {
		fmt.Fprintf(&wrapped, "\ncanvas.storeResult(%s, %d, %s);", strconv.Quote(s.BlockID), out.Line, out.Name)
	}
	wrapped.WriteString("\n})")
	source := RewriteImports(src, imports, strconv.Quote)

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	fnVal, err := vm.RunScript(s.BlockID+".js", wrapped.String())
	if err != nil {
		return jsFailure(err, source)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return errors.New("script did not compile to a function")
	}

	capability, err := js.capability(ctx, vm, s.BlockID, b)
	if err != nil {
		return err
	}
	args := []goja.Value{capability}
	for _, a := range s.Aliases {
		v, err := toJS(vm, a.Value)
		if err != nil {
			return fmt.Errorf("bind %s: %w", a.Name, err)
		}
		args = append(args, v)
	}
	for _, url := range urls {
		exports, err := js.require(ctx, vm, url)
		if err != nil {
			return err
		}
		args = append(args, exports)
	}

	ret, err := fn(goja.Undefined(), args...)
	if err != nil {
		return jsFailure(err, source)
	}
	p, ok := ret.Export().(*goja.Promise)
	if !ok {
		return nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return nil
	case goja.PromiseStateRejected:
		ee := jsThrown(p.Result())
		ee.Source = source
		return ee
	default:
		return &domain.ExecutionError{
			Name:    "ExecutionError",
			Message: "script is still waiting on a promise that never settled",
			Source:  source,
		}
	}
}

// jsBindings declares the names an import statement introduces from the
// module bound to param.
func jsBindings(imp Import, param string) string {
	var decls []string
	if imp.Default != "" {
		decls = append(decls, fmt.Sprintf("const %s = (%s && %s.__esModule) ? %s.default : %s;", imp.Default, param, param, param, param))
	}
	if imp.Namespace != "" {
		decls = append(decls, fmt.Sprintf("const %s = %s;", imp.Namespace, param))
	}
	if len(imp.Names) > 0 {
		parts := make([]string, len(imp.Names))
		for i, n := range imp.Names {
			parts[i] = n.Name
			if n.Alias != n.Name {
				parts[i] = n.Name + ": " + n.Alias
			}
		}
		decls = append(decls, fmt.Sprintf("const { %s } = %s;", strings.Join(parts, ", "), param))
	}
	return strings.Join(decls, " ")
}

// require evaluates a fetched module as CommonJS and returns its exports.
func (js *JavaScript) require(ctx context.Context, vm *goja.Runtime, url string) (goja.Value, error) {
	if js.loader == nil {
		return nil, fmt.Errorf("%w: no module loader for %s", domain.ErrInvalidImport, url)
	}
	src, err := js.loader.Load(ctx, url)
	if err != nil {
		return nil, &domain.ExecutionError{Name: "ImportError", Message: err.Error()}
	}
	fnVal, err := vm.RunScript(url, "(function (module, exports) {"+string(src)+"\n})")
	if err != nil {
		return nil, jsFailure(err, "")
	}
	fn, _ := goja.AssertFunction(fnVal)
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if _, err := fn(goja.Undefined(), module, exports); err != nil {
		return nil, jsFailure(err, "")
	}
	return module.Get("exports"), nil
}

func (js *JavaScript) capability(ctx context.Context, vm *goja.Runtime, blockID string, b Bridge) (goja.Value, error) {
	factoryVal, err := vm.RunString(canvasFactory)
	if err != nil {
		return nil, err
	}
	factory, _ := goja.AssertFunction(factoryVal)

	query := func(call goja.FunctionCall) goja.Value {
		scope := ""
		if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			scope = arg.String()
		}
		nodes, err := b.QueryNodes(ctx, call.Argument(0).String(), scope)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		v, err := toJS(vm, any(nodes))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return v
	}
	store := func(call goja.FunctionCall) goja.Value {
		obj, err := objFromJS(vm, call.Argument(2))
		if err == nil {
			err = b.StoreResult(call.Argument(0).String(), int(call.Argument(1).ToInteger()), obj)
		}
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}
	storeAny := func(call goja.FunctionCall) goja.Value {
		obj, err := objFromJS(vm, call.Argument(1))
		if err == nil {
			err = b.StoreAny(call.Argument(0).String(), obj)
		}
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}
	return factory(goja.Undefined(), vm.ToValue(query), vm.ToValue(store), vm.ToValue(storeAny))
}

// ── Value conversion ──────────────────────────────────────

func jsonParse(vm *goja.Runtime, data []byte) (goja.Value, error) {
	parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	return parse(goja.Undefined(), vm.ToValue(string(data)))
}

// toJS builds a native JS value from a runtime value.
func toJS(vm *goja.Runtime, v any) (goja.Value, error) {
	switch t := v.(type) {
	case value.UndefinedValue:
		return goja.Undefined(), nil
	case nil:
		return goja.Null(), nil
	case string:
		return vm.ToValue(t), nil
	case value.SVG:
		return vm.ToValue(t.Markup), nil
	case []byte:
		return vm.New(vm.Get("Uint8Array"), vm.ToValue(vm.NewArrayBuffer(t)))
	case *value.RuntimeError:
		return vm.New(vm.Get("Error"), vm.ToValue(t.Message))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonParse(vm, data)
}

// fromJS normalizes a JS value into a runtime value that value.From can
// classify. Objects are passed through JSON.
func fromJS(vm *goja.Runtime, v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) {
		return value.UndefinedValue{}, nil
	}
	if goja.IsNull(v) {
		return nil, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export(), nil
	}
	switch t := obj.Export().(type) {
	case []byte:
		return append([]byte(nil), t...), nil
	case goja.ArrayBuffer:
		return append([]byte(nil), t.Bytes()...), nil
	}
	if isError(vm, obj) {
		return &value.RuntimeError{Message: obj.Get("message").String()}, nil
	}
	stringify, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	s, err := stringify(goja.Undefined(), obj)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(s) {
		return value.UndefinedValue{}, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s.String()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func objFromJS(vm *goja.Runtime, v goja.Value) (value.Obj, error) {
	raw, err := fromJS(vm, v)
	if err != nil {
		return value.Obj{}, err
	}
	return value.From(raw)
}

func isError(vm *goja.Runtime, obj *goja.Object) bool {
	ctor, ok := vm.Get("Error").(*goja.Object)
	return ok && vm.InstanceOf(obj, ctor)
}

// ── Errors ────────────────────────────────────────────────

func jsFailure(err error, source string) error {
	var ex *goja.Exception
	var syntaxErr *goja.CompilerSyntaxError
	var interrupted *goja.InterruptedError
	switch {
	case errors.As(err, &interrupted):
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return err
	case errors.As(err, &ex):
		ee := jsThrown(ex.Value())
		if ee.Stack == "" {
			ee.Stack = ex.String()
		}
		ee.Source = source
		return ee
	case errors.As(err, &syntaxErr):
		return &domain.ExecutionError{Name: "SyntaxError", Message: syntaxErr.Error(), Source: source}
	}
	return err
}

func jsThrown(v goja.Value) *domain.ExecutionError {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		msg := "undefined"
		if v != nil {
			msg = v.String()
		}
		return &domain.ExecutionError{Name: "Error", Message: msg}
	}
	ee := &domain.ExecutionError{Name: "Error", Message: obj.String()}
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		ee.Name = n.String()
	}
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
		ee.Message = m.String()
	}
	if st := obj.Get("stack"); st != nil && !goja.IsUndefined(st) {
		ee.Stack = st.String()
	}
	return ee
}

// ── Formatting ────────────────────────────────────────────

func (js *JavaScript) Format(code string) (string, error) {
	opts := jsbeautifier.DefaultOptions()
	opts["indent_size"] = 2
	opts["preserve_newlines"] = false
	return jsbeautifier.Beautify(&code, opts)
}

// FormatAsCode renders o as a JavaScript expression.
func (js *JavaScript) FormatAsCode(o value.Obj) (string, error) {
	switch o.Type {
	case value.TypeText, value.TypeSVG:
		data, err := json.Marshal(o.Data)
		return string(data), err
	case value.TypeJSON:
		return o.Data, nil
	case value.TypeCSV:
		records, err := value.ParseCSV(o.Data)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(records)
		return string(data), err
	case value.TypeBinary:
		v, err := value.Parse(o)
		if err != nil {
			return "", err
		}
		b := v.([]byte)
		parts := make([]string, len(b))
		for i, c := range b {
			parts[i] = strconv.Itoa(int(c))
		}
		return "new Uint8Array([" + strings.Join(parts, ", ") + "])", nil
	case value.TypeUndefined:
		return "undefined", nil
	case value.TypeError:
		return "", fmt.Errorf("an error value cannot be written as source: %s", o.Data)
	}
	return "", fmt.Errorf("unknown value type %q", o.Type)
}
