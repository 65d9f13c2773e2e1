package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTranscript() core.Transcript {
	return core.NewTranscript(core.NewUserMessage("What is the weather in Berlin?"))
}

func weatherTool(result any, err error) tool.Tool {
	return tool.NewFunctionTool("weather", "Weather lookup", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	}, func(*core.ToolContext, map[string]any) (any, error) {
		return result, err
	})
}

func TestReasoningLoop_AnswersWithoutTools(t *testing.T) {
	llm := model.NewMockModel("mock").AddText("It is sunny.")
	loop := NewReasoningLoop(llm)

	out, err := loop.Run(context.Background(), Turn{
		Worker:       "Researcher",
		Instructions: "You research.",
		Transcript:   seedTranscript(),
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", out.Text)
	assert.Empty(t, out.ToolUses)
	require.Len(t, out.Trace, 1)

	req := llm.Requests()[0]
	assert.Equal(t, "You research.", req.Instructions)
	assert.Empty(t, req.Tools)
	require.Len(t, req.Contents, 1)
}

func TestReasoningLoop_ToolRoundTrip(t *testing.T) {
	llm := model.NewMockModel("mock").
		AddCall("weather", `{"city":"Berlin"}`).
		AddText("Berlin is sunny.")
	loop := NewReasoningLoop(llm)

	out, err := loop.Run(context.Background(), Turn{
		Worker:     "Researcher",
		Transcript: seedTranscript(),
		Tools:      map[string]tool.Tool{"weather": weatherTool("sunny", nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, "Berlin is sunny.", out.Text)
	require.Len(t, out.ToolUses, 1)
	assert.Equal(t, "weather", out.ToolUses[0].Name)
	assert.Equal(t, "sunny", out.ToolUses[0].Output)
	assert.Empty(t, out.ToolUses[0].Error)

	// Second request carries the assistant call and the observation.
	second := llm.Requests()[1]
	require.Len(t, second.Contents, 3)
	assert.Equal(t, core.RoleAssistant, second.Contents[1].Role)
	assert.Equal(t, core.RoleTool, second.Contents[2].Role)
	require.Len(t, second.Tools, 1)
	assert.Equal(t, "weather", second.Tools[0].Function.Name)
}

func TestReasoningLoop_ToolErrorBecomesObservation(t *testing.T) {
	llm := model.NewMockModel("mock").
		AddCall("weather", `{"city":"Berlin"}`).
		AddText("The weather service is down.")
	loop := NewReasoningLoop(llm)

	out, err := loop.Run(context.Background(), Turn{
		Worker:     "Researcher",
		Transcript: seedTranscript(),
		Tools:      map[string]tool.Tool{"weather": weatherTool(nil, errors.New("offline"))},
	})
	require.NoError(t, err)
	assert.Equal(t, "The weather service is down.", out.Text)
	require.Len(t, out.ToolUses, 1)
	assert.Contains(t, out.ToolUses[0].Error, "offline")

	obs := llm.Requests()[1].Contents[2].FunctionResponses()
	require.Len(t, obs, 1)
	assert.Contains(t, obs[0].Error, "offline")
}

func TestReasoningLoop_UnknownToolBecomesObservation(t *testing.T) {
	llm := model.NewMockModel("mock").
		AddCall("missing", `{}`).
		AddText("No such tool.")
	loop := NewReasoningLoop(llm)

	out, err := loop.Run(context.Background(), Turn{Worker: "Researcher", Transcript: seedTranscript()})
	require.NoError(t, err)
	require.Len(t, out.ToolUses, 1)
	assert.Contains(t, out.ToolUses[0].Error, tool.CodeNotFound)
}

func TestReasoningLoop_ModelErrorKeepsTrace(t *testing.T) {
	boom := errors.New("rate limited")
	llm := model.NewMockModel("mock").
		AddCall("weather", `{"city":"Berlin"}`).
		AddError(boom)
	loop := NewReasoningLoop(llm)

	out, err := loop.Run(context.Background(), Turn{
		Worker:     "Researcher",
		Transcript: seedTranscript(),
		Tools:      map[string]tool.Tool{"weather": weatherTool("sunny", nil)},
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, out.Trace, 1)
	assert.Equal(t, "weather", out.Trace[0].Calls[0].Name)
}

func TestReasoningLoop_MaxIterations(t *testing.T) {
	llm := model.NewMockModel("mock").
		AddCall("weather", `{}`).
		AddCall("weather", `{}`).
		AddCall("weather", `{}`)
	loop := NewReasoningLoop(llm)

	out, err := loop.Run(context.Background(), Turn{
		Worker:        "Researcher",
		Transcript:    seedTranscript(),
		Tools:         map[string]tool.Tool{"weather": weatherTool("sunny", nil)},
		MaxIterations: 2,
	})
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Len(t, out.Trace, 2)
	assert.Equal(t, 2, llm.Calls())
}

func TestReasoningLoop_EmptyAnswer(t *testing.T) {
	llm := model.NewMockModel("mock").AddText("   ")
	loop := NewReasoningLoop(llm)

	_, err := loop.Run(context.Background(), Turn{Worker: "Researcher", Transcript: seedTranscript()})
	require.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestReasoningLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := model.NewMockModel("mock").AddText("never")
	loop := NewReasoningLoop(llm)

	_, err := loop.Run(ctx, Turn{Worker: "Researcher", Transcript: seedTranscript()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, llm.Calls())
}

type rejectEmpty struct{}

func (rejectEmpty) Name() string { return "reject" }
func (rejectEmpty) ProcessResponse(_ *State, resp *model.Response) error {
	if resp.Content.Text() == "forbidden" {
		return errors.New("forbidden answer")
	}
	return nil
}

func TestReasoningLoop_ResponseProcessor(t *testing.T) {
	llm := model.NewMockModel("mock").AddText("forbidden")
	loop := NewReasoningLoop(llm)
	loop.AddResponseProcessor(rejectEmpty{})

	_, err := loop.Run(context.Background(), Turn{Worker: "Researcher", Transcript: seedTranscript()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response processor reject failed")
}
