package executor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/domain"
	"canvasflow/internal/executor"
	"canvasflow/internal/value"
)

const cdn = "https://cdn.jsdelivr.net/npm/"

type fakeBridge struct {
	mu      sync.Mutex
	results map[string]value.Obj
	stored  map[string]value.Obj
	nodes   []any
	queries []string
}

func newBridge() *fakeBridge {
	return &fakeBridge{results: map[string]value.Obj{}, stored: map[string]value.Obj{}}
}

func (b *fakeBridge) QueryNodes(_ context.Context, selector, scopeID string) ([]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, selector+"|"+scopeID)
	return b.nodes, nil
}

func (b *fakeBridge) StoreResult(blockID string, line int, v value.Obj) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[domain.ResultKey(blockID, line)] = v
	return nil
}

func (b *fakeBridge) StoreAny(key string, v value.Obj) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored[key] = v
	return nil
}

func (b *fakeBridge) result(t *testing.T, blockID string, line int) any {
	t.Helper()
	o, ok := b.results[domain.ResultKey(blockID, line)]
	require.True(t, ok, "no result at %s:%d", blockID, line)
	v, err := value.Parse(o)
	require.NoError(t, err)
	return v
}

func newExecutor(modules executor.MapLoader) *executor.Executor {
	return executor.New(executor.Options{JavaScriptCDN: cdn, PythonCDN: cdn, Loader: modules})
}

func jsonObj(t *testing.T, v any) *value.Obj {
	t.Helper()
	o, err := value.JSON(v)
	require.NoError(t, err)
	return &o
}

func run(t *testing.T, e *executor.Executor, lang, code string, inputs []domain.Binding, outLines ...int) (*fakeBridge, error) {
	t.Helper()
	b := newBridge()
	req := executor.Request{BlockID: "blk", Code: domain.Code{Language: lang, Code: code}, Inputs: inputs}
	for _, l := range outLines {
		req.Outputs = append(req.Outputs, domain.Binding{SourceID: "blk", SrcLine: l, ShouldReturn: true})
	}
	return b, e.Run(context.Background(), req, b)
}

func TestRun_SplicedInputFlowsToOutput(t *testing.T) {
	e := newExecutor(nil)
	for lang, code := range map[string]string{
		"javascript": "const x;\nconst y = x + 1;",
		"python":     "x = 0\ny = x + 1",
	} {
		t.Run(lang, func(t *testing.T) {
			in := []domain.Binding{{SourceID: "src", DestLine: 1, Value: jsonObj(t, 5)}}
			b, err := run(t, e, lang, code, in, 2)
			require.NoError(t, err)
			assert.Equal(t, float64(6), b.result(t, "blk", 2))
		})
	}
}

func TestRun_MissingInputValue(t *testing.T) {
	e := newExecutor(nil)
	_, err := run(t, e, "javascript", "const x = 1", []domain.Binding{{SourceID: "up", SrcLine: 3, DestLine: 1}})
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "InputNotFound", ee.Name)
}

func TestRun_NoDeclarationOnBoundLine(t *testing.T) {
	e := newExecutor(nil)
	_, err := run(t, e, "javascript", "console.log(1)", nil, 1)
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "NoDeclarationFound", ee.Name)
}

func TestRun_LanguageChecks(t *testing.T) {
	e := newExecutor(nil)
	_, err := run(t, e, "ruby", "x = 1", nil)
	assert.Equal(t, "UnsupportedLanguage", domain.Notification(err).Name)

	_, err = run(t, e, "typescript", "const x: number = 1", nil)
	assert.Equal(t, "UnsupportedLanguage", domain.Notification(err).Name)
	assert.False(t, e.CanRun("typescript"))
	assert.True(t, e.CanFormat("typescript"))

	_, err = run(t, e, "javascript", "  ", nil)
	assert.Equal(t, "NotFound", domain.Notification(err).Name)

	b := newBridge()
	err = e.Run(context.Background(), executor.Request{
		BlockID:   "blk",
		Code:      domain.Code{Language: "javascript", Code: "const a = 1"},
		Libraries: []domain.Code{{Language: "python", Code: "b = 2"}},
	}, b)
	assert.Equal(t, "UnsupportedLibraryLanguage", domain.Notification(err).Name)
}

func TestRun_Libraries(t *testing.T) {
	e := newExecutor(nil)
	for lang, tc := range map[string][2]string{
		"javascript": {"function helper() { return 2 }", "const y = helper() * 10;"},
		"python":     {"def helper():\n    return 2", "y = helper() * 10"},
	} {
		t.Run(lang, func(t *testing.T) {
			b := newBridge()
			err := e.Run(context.Background(), executor.Request{
				BlockID:   "blk",
				Code:      domain.Code{Language: lang, Code: tc[1]},
				Libraries: []domain.Code{{Language: lang, Code: tc[0]}},
				Outputs:   []domain.Binding{{SourceID: "blk", SrcLine: 1}},
			}, b)
			require.NoError(t, err)
			assert.Equal(t, float64(20), b.result(t, "blk", 1))
		})
	}
}

func TestRun_JavaScriptModules(t *testing.T) {
	e := newExecutor(executor.MapLoader{
		cdn + "mathy":    "module.exports = { double: function (n) { return n * 2 }, base: 1 };",
		cdn + "greeting": "exports.__esModule = true; exports.default = 'hi';",
	})
	code := "import { double, base as b } from 'mathy';\nimport * as m from \"mathy\";\nimport hello from 'greeting';\nconst out = [double(21), b, m.base, hello];"
	b, err := run(t, e, "javascript", code, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(42), float64(1), float64(1), "hi"}, b.result(t, "blk", 4))
}

func TestRun_PythonModules(t *testing.T) {
	e := newExecutor(executor.MapLoader{
		cdn + "mathy": "def double(n):\n    return n * 2\n\nbase = 1\n",
	})
	code := "from mathy import double, base as b\nimport mathy as m\nout = [double(21), b, m.base]"
	b, err := run(t, e, "python", code, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(42), float64(1), float64(1)}, b.result(t, "blk", 3))
}

func TestRun_OnlyCanvasIsAmbient(t *testing.T) {
	e := newExecutor(nil)

	js := "const seen = [typeof require, typeof console, typeof process, typeof window, typeof fetch, Object.isFrozen(canvas), Object.keys(canvas).sort().join(',')];"
	b, err := run(t, e, "javascript", js, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []any{"undefined", "undefined", "undefined", "undefined", "undefined", true, "queryNodes,storeAny,storeResult"}, b.result(t, "blk", 1))

	b, err = run(t, e, "python", "seen = dir(canvas)", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []any{"queryNodes", "storeAny", "storeResult"}, b.result(t, "blk", 1))

	_, err = run(t, e, "python", "canvas.extra = 1", nil)
	assert.Error(t, err)
}

func TestRun_CapabilityCalls(t *testing.T) {
	e := newExecutor(nil)

	b := newBridge()
	b.nodes = []any{map[string]any{"id": "n1"}}
	err := e.Run(context.Background(), executor.Request{
		BlockID: "blk",
		Code:    domain.Code{Language: "javascript", Code: "const nodes = await canvas.queryNodes('text', 'g1');\nconst id = nodes[0].id;\ncanvas.storeAny('k', { ok: true });"},
		Outputs: []domain.Binding{{SourceID: "blk", SrcLine: 2}},
	}, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"text|g1"}, b.queries)
	assert.Equal(t, "n1", b.result(t, "blk", 2))
	assert.Equal(t, value.TypeJSON, b.stored["k"].Type)

	b = newBridge()
	err = e.Run(context.Background(), executor.Request{
		BlockID: "blk",
		Code:    domain.Code{Language: "python", Code: "nodes = canvas.queryNodes('sticky')\ncanvas.storeAny('count', len(nodes))\ncanvas.storeResult('other', 7, 'direct')"},
	}, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"sticky|"}, b.queries)
	assert.Equal(t, `0`, b.stored["count"].Data)
	assert.Equal(t, "direct", b.result(t, "other", 7))
}

func TestRun_ErrorsAreWrapped(t *testing.T) {
	e := newExecutor(nil)
	tests := []struct {
		lang, code, name, message string
	}{
		{"javascript", "const a = 1;\nthrow new TypeError('boom');", "TypeError", "boom"},
		{"javascript", "const a = await Promise.reject(new RangeError('late'));", "RangeError", "late"},
		{"javascript", "const = ;", "SyntaxError", ""},
		{"python", "a = 1\nfail('boom')", "EvalError", "boom"},
		{"python", "a = (", "SyntaxError", ""},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.name, func(t *testing.T) {
			_, err := run(t, e, tt.lang, tt.code, nil)
			var ee *domain.ExecutionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.name, ee.Name)
			assert.Contains(t, ee.Message, tt.message)
			assert.Equal(t, tt.name, domain.Notification(err).Name)
		})
	}
}

func TestRun_Cancellation(t *testing.T) {
	e := newExecutor(nil)
	for lang, code := range map[string]string{
		"javascript": "while (true) {}",
		"python":     "while True:\n    pass",
	} {
		t.Run(lang, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := e.Run(ctx, executor.Request{BlockID: "blk", Code: domain.Code{Language: lang, Code: code}}, newBridge())
			assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
		})
	}
}

func TestRun_ErrorAndBinaryInputs(t *testing.T) {
	e := newExecutor(nil)
	errObj := value.ErrorObj("upstream failed")
	bin := value.Binary([]byte{1, 2, 250})
	in := []domain.Binding{
		{SourceID: "a", DestLine: 1, Value: &errObj},
		{SourceID: "b", DestLine: 2, Value: &bin},
	}
	code := "let e;\nlet raw;\nconst msg = e instanceof Error ? e.message : 'no';\nconst n = raw.length;\nconst back = raw;"
	b, err := run(t, e, "javascript", code, in, 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, "upstream failed", b.result(t, "blk", 3))
	assert.Equal(t, float64(3), b.result(t, "blk", 4))
	assert.Equal(t, []byte{1, 2, 250}, b.result(t, "blk", 5))
}

func TestFormat(t *testing.T) {
	e := newExecutor(nil)

	out, err := e.Format(domain.Code{Language: "javascript", Code: "function f(){return 1}"})
	require.NoError(t, err)
	assert.Contains(t, out.Code, "function f() {\n  return 1\n}")

	out, err = e.Format(domain.Code{Language: "typescript", Code: "const a=[1,2]"})
	require.NoError(t, err)
	assert.Contains(t, out.Code, "const a = [1, 2]")

	out, err = e.Format(domain.Code{Language: "python", Code: "x=[1,2]"})
	require.NoError(t, err)
	assert.Equal(t, "python", out.Language)
	assert.True(t, strings.HasPrefix(out.Code, "x = [1, 2]"), out.Code)

	_, err = e.Format(domain.Code{Language: "cobol", Code: "x"})
	assert.Equal(t, "UnsupportedLanguage", domain.Notification(err).Name)
}
