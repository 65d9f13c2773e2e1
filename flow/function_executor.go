package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/tool"
)

// Batch is one set of function calls requested by a single model response.
type Batch struct {
	Worker     string
	Transcript core.Transcript
	Tools      map[string]tool.Tool
	Calls      []core.FunctionCall
	Logger     logging.Logger
}

// FunctionExecutor executes a batch of function/tool calls possibly in
// parallel. Implementations must:
//   - Respect ctx cancellation
//   - Never panic (recover internally and report the panic as a tool error)
//   - Return exactly one FunctionResponse per FunctionCall, in call order
//
// Tool failures are reported in FunctionResponse.Error; they are
// observations for the model, not errors of the batch.
type FunctionExecutor interface {
	Execute(ctx context.Context, batch Batch) []core.FunctionResponse
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	LogStartEvents bool // log a start line per function
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(ctx context.Context, batch Batch) []core.FunctionResponse {
	n := len(batch.Calls)
	if n == 0 {
		return nil
	}

	logger := batch.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	results := make([]core.FunctionResponse, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeOne(ctx, batch, batch.Calls[0], logger)
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range batch.Calls {
		fc := batch.Calls[i]
		if ctx.Err() != nil { // pre-check cancellation
			results[i] = cancelledResponse(ctx, fc)
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = cancelledResponse(ctx, fc)
				return
			}
			results[idx] = e.executeOne(ctx, batch, fc, logger)
		}(i, fc)
	}

	wg.Wait()

	logger.Debug(
		"worker.functions.batch.complete",
		"worker", batch.Worker,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *parallelFunctionExecutor) executeOne(ctx context.Context, batch Batch, fc core.FunctionCall, logger logging.Logger) core.FunctionResponse {
	toolCtx := core.NewToolContext(ctx, batch.Worker, fc.ID, batch.Transcript, logger)
	if e.cfg.LogStartEvents {
		logger.Info("worker.function.start", "worker", batch.Worker, "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(fc.Name, r)
				logger.Error("worker.function.panic", "worker", batch.Worker, "function", fc.Name, "recover", r)
			}
		}()
		result, err = executeTool(batch.Tools, toolCtx, fc.Name, fc.Arguments)
	}()

	logger.Info(
		"worker.function.executed",
		"worker", batch.Worker,
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
	if err != nil {
		resp.Response = nil
		resp.Error = err.Error()
	}
	return resp
}

func cancelledResponse(ctx context.Context, fc core.FunctionCall) core.FunctionResponse {
	return core.FunctionResponse{ID: fc.ID, Name: fc.Name, Error: ctx.Err().Error()}
}

// panicError converts a recovered panic value to a tool error. The stack is
// kept for diagnostics but not shown to the model.
func panicError(name string, r any) error {
	return &tool.ToolError{
		Tool:    name,
		Message: fmt.Sprintf("panic recovered: %v", r),
		Code:    tool.CodePanic,
		Details: string(debug.Stack()),
	}
}

// executeTool centralizes tool lookup & execution using the worker's tool registry.
func executeTool(toolRegistry map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := toolRegistry[toolName]
	if !ok {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("tool %s not found", toolName), tool.CodeNotFound)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := sonic.UnmarshalString(args, &argMap); err != nil {
			return nil, tool.NewToolError(toolName, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(toolCtx, argMap)
}

// renderOutput converts a tool result into the text recorded on a message.
func renderOutput(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	out, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}
