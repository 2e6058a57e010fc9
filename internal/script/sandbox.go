// Package script runs user code in an embedded risor VM with an explicit set
// of capabilities.
//
// Compilation is restricted to the names of the provided globals, so a script
// cannot reach the host process, the filesystem or any module that was not
// handed to it.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/httpclient"
)

// Script errors.
var (
	ErrCompile   = errors.New("script compile failed")
	ErrExecution = errors.New("script execution failed")
)

// Storage is the key-value capability exposed as the storage module.
type Storage interface {
	Get(ctx context.Context, key string, def any) (any, error)
	Set(ctx context.Context, key string, value any) error
}

// Env is the per-run data a script can read.
type Env struct {
	LastResponse string
	Item         any
	Index        int
	Total        int
	Steps        map[string]any
}

// Sandbox executes scripts.
type Sandbox struct {
	http    httpclient.Client
	storage Storage
	logger  zerolog.Logger
}

// NewSandbox creates a sandbox. A nil client or storage leaves that capability
// present but failing with an error when called.
func NewSandbox(client httpclient.Client, storage Storage, logger zerolog.Logger) *Sandbox {
	return &Sandbox{http: client, storage: storage, logger: logger}
}

// Run executes code and returns the value of its final expression as Go data.
func (s *Sandbox) Run(ctx context.Context, code string, env Env) (any, error) {
	globals := pureGlobals()
	for name, value := range s.capabilities(env) {
		globals[name] = value
	}

	result, err := eval(ctx, code, globals)
	if err != nil {
		return nil, err
	}
	if isCallable(result) {
		return nil, fmt.Errorf("%w: script returned a %s instead of a value", ErrExecution, result.Type())
	}
	return ToGo(result), nil
}

// Evaluate runs an expression with pure builtins only. A callable result is
// invoked with no arguments.
func Evaluate(ctx context.Context, expr string) (any, error) {
	globals := pureGlobals()
	result, err := eval(ctx, expr, globals)
	if err != nil {
		return nil, err
	}
	if isCallable(result) {
		if builtin, ok := result.(*object.Builtin); ok {
			result = builtin.Call(ctx)
		} else {
			result, err = eval(ctx, "("+strings.TrimSpace(expr)+")()", globals)
			if err != nil {
				return nil, err
			}
		}
		if errObj, ok := result.(*object.Error); ok {
			return nil, fmt.Errorf("%w: %s", ErrExecution, errObj.Message().Value())
		}
	}
	return ToGo(result), nil
}

func eval(ctx context.Context, code string, globals map[string]any) (object.Object, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	compiled, err := compiler.Compile(ast, compiler.WithGlobalNames(sortedNames(globals)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	result, err := risor.EvalCode(ctx, compiled, risor.WithoutDefaultGlobals(), risor.WithGlobals(globals))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	if errObj, ok := result.(*object.Error); ok {
		return nil, fmt.Errorf("%w: %s", ErrExecution, errObj.Message().Value())
	}
	return result, nil
}

func (s *Sandbox) capabilities(env Env) map[string]any {
	steps := env.Steps
	if steps == nil {
		steps = map[string]any{}
	}
	return map[string]any{
		"lastResponse": object.NewString(env.LastResponse),
		"item":         FromGo(env.Item),
		"index":        object.NewInt(int64(env.Index)),
		"total":        object.NewInt(int64(env.Total)),
		"steps":        FromGo(steps),
		"log":          object.NewBuiltin("log", s.logBuiltin),
		"http":         s.httpModule(),
		"storage":      s.storageModule(),
	}
}

func (s *Sandbox) logBuiltin(ctx context.Context, args ...object.Object) object.Object {
	if len(args) < 1 || len(args) > 2 {
		return object.NewArgsRangeError("log", 1, 2, len(args))
	}
	level := "info"
	if len(args) == 2 {
		lvl, err := object.AsString(args[1])
		if err != nil {
			return err
		}
		level = lvl
	}
	msg := args[0].Inspect()
	if str, ok := args[0].(*object.String); ok {
		msg = str.Value()
	}
	logEvent(s.logger, level).Str("source", "script").Msg(msg)
	return object.Nil
}
