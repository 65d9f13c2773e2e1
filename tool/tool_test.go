package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToolContext(fcID string, transcript core.Transcript) *core.ToolContext {
	ctx := core.WithRunInfo(context.Background(), core.RunInfo{RunID: "run-1", SessionID: "sess-1", Step: 1})
	return core.NewToolContext(ctx, "Researcher", fcID, transcript, logging.NoOpLogger{})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	tc := newToolContext("fc1", core.Transcript{})
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := tTool.Call(newToolContext("fc2", core.Transcript{}), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(newToolContext("fc3", core.Transcript{}), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	execTool := NewFunctionTool("quota", "Quota", map[string]any{"type": "object"}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("quota", "limit reached", "RATE_LIMITED")
	})

	_, err := execTool.Call(newToolContext("fc4", core.Transcript{}), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

type weatherArgs struct {
	City  string `json:"city" description:"City name"`
	Units string `json:"units,omitempty"`
}

func TestTypedFunctionTool(t *testing.T) {
	weather := NewTypedFunctionTool("weather", "Weather lookup", func(tc *core.ToolContext, args weatherArgs) (string, error) {
		assert.Equal(t, "Researcher", tc.WorkerName())
		assert.Equal(t, "run-1", tc.RunID())
		return "sunny in " + args.City, nil
	})

	assert.Equal(t, []any{"city"}, weather.Parameters()["required"])

	out, err := weather.Call(newToolContext("fc5", core.Transcript{}), map[string]any{"city": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Berlin", out)

	_, err = weather.Call(newToolContext("fc6", core.Transcript{}), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

// -------------------- Transcript Reader --------------------

func TestTranscriptReaderTool(t *testing.T) {
	tr := core.NewTranscript(
		core.NewUserMessage("find the capital"),
		core.NewMessage("Researcher", "Paris"),
		core.NewMessage("Writer", "The capital is Paris."),
		core.NewMessage("Researcher", "Population 2M"),
	)
	reader := NewTranscriptReaderTool()
	tc := newToolContext("fc7", tr)

	res, err := reader.Call(tc, map[string]any{"author": "Researcher"})
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Equal(t, 2, out["count"])

	res, err = reader.Call(tc, map[string]any{"limit": 1.0})
	require.NoError(t, err)
	out = res.(map[string]any)
	msgs := out["messages"].([]map[string]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Population 2M", msgs[0]["content"])

	_, err = reader.Call(tc, map[string]any{"limit": -1.0})
	require.Error(t, err)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	plain := &ToolError{Tool: "demo", Message: "x"}
	assert.Equal(t, "tool error in demo: x", plain.Error())
}
