package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/core"
)

// Func is the signature of a function exposed as a tool. args have already
// been validated against the tool's parameter schema.
type Func func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function as a worker tool. It holds no
// mutable state and is safe for concurrent use.
//
// Call reports every failure as a *ToolError: argument mismatches carry
// CodeValidation, plain errors from the function carry CodeExecution and a
// *ToolError returned by the function is forwarded unchanged.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool creates a tool from an explicit JSON schema.
//
//	sum := tool.NewFunctionTool("sum", "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(_ *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from the fields of
// structType (see SchemaFor). It panics when the struct cannot be reflected.
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *FunctionTool {
	schema, err := SchemaFor(structType)
	if err != nil {
		panic(fmt.Sprintf("tool %s: %v", name, err))
	}
	return NewFunctionTool(name, description, schema, fn)
}

// NewTypedFunctionTool derives the schema from Args and decodes the validated
// arguments into a fresh Args value before invoking fn.
//
//	type WeatherArgs struct {
//	  City string `json:"city" description:"City name"`
//	}
//
//	weather := tool.NewTypedFunctionTool("weather", "Current weather for a city",
//	  func(tc *core.ToolContext, args WeatherArgs) (string, error) {
//	    return lookup(tc.Context(), args.City)
//	  },
//	)
func NewTypedFunctionTool[Args any, Result any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args Args) (Result, error),
) *FunctionTool {
	var zero Args
	return NewFunctionToolFromStruct(name, description, zero, func(tc *core.ToolContext, raw map[string]any) (any, error) {
		var args Args
		if err := decodeArgs(raw, &args); err != nil {
			return nil, NewToolError(name, err.Error(), CodeValidation)
		}
		return fn(tc, args)
	})
}

// Name returns the tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description shown to the model.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema of the arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args and invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	if err := validateArgs(args, t.parameters); err != nil {
		logger.Warn("tool.call.invalid_arguments", "tool", t.name, "worker", toolCtx.WorkerName(), "function_call_id", toolCtx.FunctionCallID(), "error", err.Error())
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		toolErr := asToolError(t.name, err)
		logger.Warn("tool.call.failed", "tool", t.name, "worker", toolCtx.WorkerName(), "code", toolErr.Code, "error", toolErr.Message)
		return nil, toolErr
	}

	logger.Debug("tool.call.completed", "tool", t.name, "worker", toolCtx.WorkerName(), "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func asToolError(name string, err error) *ToolError {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return NewToolError(name, err.Error(), CodeExecution)
}

func decodeArgs(raw map[string]any, out any) error {
	b, err := sonic.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := sonic.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
