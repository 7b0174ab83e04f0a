// Package executor runs one code block in a capability-limited sandbox.
// Bound input values are passed in as parameters, never inlined as source,
// and the only ambient object a script can reach is the frozen canvas
// capability backed by a Bridge.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
	"canvasflow/internal/value"
)

// Bridge is the canvas capability surface exposed to scripts.
type Bridge interface {
	QueryNodes(ctx context.Context, selector, scopeID string) ([]any, error)
	StoreResult(blockID string, line int, v value.Obj) error
	StoreAny(key string, v value.Obj) error
}

// Request is one RUN: the block's code and its resolved dataflow.
// Every input must carry its value.
type Request struct {
	BlockID   string
	Code      domain.Code
	Inputs    []domain.Binding
	Libraries []domain.Code
	Outputs   []domain.Binding
}

// Alias is a parameter the rewritten script receives in place of an
// inlined input value.
type Alias struct {
	Name  string
	Value any
}

// Output is a variable to read back after the script finishes.
type Output struct {
	Line int
	Name string
}

// Script is a request after splicing, ready for a runtime.
type Script struct {
	BlockID   string
	Source    string
	Aliases   []Alias
	Libraries []domain.Code
	Outputs   []Output
}

// Runtime executes and formats scripts of one language.
type Runtime interface {
	Exec(ctx context.Context, s *Script, b Bridge) error
	Format(code string) (string, error)
	FormatAsCode(o value.Obj) (string, error)
}

type language struct {
	runtime  Runtime
	runnable bool
}

// Executor dispatches requests to the runtime registered for their language.
type Executor struct {
	mu        sync.RWMutex
	languages map[string]language
}

// Options configure the built-in runtimes.
type Options struct {
	JavaScriptCDN string
	PythonCDN     string
	Loader        ModuleLoader
}

// New returns an executor with JavaScript and Python runtimes.
// TypeScript is accepted for formatting only.
func New(opts Options) *Executor {
	e := &Executor{languages: make(map[string]language)}
	js := NewJavaScript(opts.JavaScriptCDN, opts.Loader)
	e.Register(locator.LangJavaScript, js, true)
	e.Register(locator.LangTypeScript, js, false)
	e.Register(locator.LangPython, NewPython(opts.PythonCDN, opts.Loader), true)
	return e
}

// Register binds lang to rt. Panics on a duplicate language.
func (e *Executor) Register(lang string, rt Runtime, runnable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.languages[lang]; exists {
		panic(fmt.Sprintf("executor: language %q already registered", lang))
	}
	e.languages[lang] = language{runtime: rt, runnable: runnable}
}

func (e *Executor) lookup(lang string) (language, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.languages[strings.ToLower(lang)]
	return l, ok
}

// CanRun reports whether lang can be executed.
func (e *Executor) CanRun(lang string) bool {
	l, ok := e.lookup(lang)
	return ok && l.runnable
}

// CanFormat reports whether lang has a pretty-printer.
func (e *Executor) CanFormat(lang string) bool {
	_, ok := e.lookup(lang)
	return ok
}

// Run splices req's inputs into its code and executes it. Any failure is
// returned as an *domain.ExecutionError, except cancellation which is
// returned as the context's error.
func (e *Executor) Run(ctx context.Context, req Request, b Bridge) error {
	if strings.TrimSpace(req.Code.Code) == "" {
		return &domain.ExecutionError{Name: "NotFound", Message: "No code found"}
	}
	l, ok := e.lookup(req.Code.Language)
	if !ok || !l.runnable {
		return asExecutionError(fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, req.Code.Language))
	}
	for _, lib := range req.Libraries {
		if !strings.EqualFold(lib.Language, req.Code.Language) {
			return asExecutionError(fmt.Errorf("%w: %s library in %s script",
				domain.ErrUnsupportedLibraryLanguage, lib.Language, req.Code.Language))
		}
	}

	script, err := Prepare(req)
	if err != nil {
		return asExecutionError(err)
	}
	if err := l.runtime.Exec(ctx, script, b); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return asExecutionError(err)
	}
	return nil
}

// Format pretty-prints code in its own language.
func (e *Executor) Format(code domain.Code) (domain.Code, error) {
	l, ok := e.lookup(code.Language)
	if !ok {
		return code, asExecutionError(fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, code.Language))
	}
	out, err := l.runtime.Format(code.Code)
	if err != nil {
		return code, asExecutionError(err)
	}
	return domain.Code{Language: code.Language, Code: out}, nil
}

// FormatAsCode renders o as a source literal of lang.
func (e *Executor) FormatAsCode(lang string, o value.Obj) (string, error) {
	l, ok := e.lookup(lang)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, lang)
	}
	return l.runtime.FormatAsCode(o)
}

func asExecutionError(err error) error {
	var ee *domain.ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	n := domain.Notification(err)
	if n.Name == "Error" {
		n.Name = "ExecutionError"
	}
	return &domain.ExecutionError{Name: n.Name, Message: n.Message}
}

// prependLibraries puts each library ahead of src, the last library
// first in the result.
func prependLibraries(src string, libs []domain.Code) string {
	for _, lib := range libs {
		src = lib.Code + "\n\n" + src
	}
	return src
}
