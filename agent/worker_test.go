package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/internal/testutil"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/prompt"
	"github.com/hupe1980/teammesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCtx(roster ...string) context.Context {
	return core.WithRunInfo(context.Background(), core.RunInfo{RunID: "run-1", SessionID: "s", Step: 1, Roster: roster})
}

func TestWorker_ActPlainAnswer(t *testing.T) {
	llm := model.NewMockModel("mock").AddText("three sources found")
	w := NewWorker("Researcher", llm)
	require.NoError(t, w.Validate())

	tr := testutil.NewTranscriptBuilder("research topic X").Build()
	msg, err := w.Act(runCtx("Researcher", "Writer"), tr, "find sources on X")
	require.NoError(t, err)

	assert.Equal(t, "Researcher", msg.Author)
	assert.Equal(t, "three sources found", msg.Content)
	assert.NotEmpty(t, msg.ID)
	assert.Empty(t, msg.ToolUses)
	assert.Equal(t, 1, tr.Len(), "transcript must not be modified")

	req := llm.Requests()[0]
	assert.Contains(t, req.Instructions, "You are Researcher, a helpful AI assistant.")
	assert.Contains(t, req.Instructions, "one of the following team members: Researcher, Writer.")
	assert.Contains(t, req.Instructions, "Instructions from your supervisor:\nfind sources on X")
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "research topic X", req.Contents[0].Text())
}

func TestWorker_ActWithTools(t *testing.T) {
	search := tool.NewFunctionTool("search", "Search the web",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []string{"q"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return "result for " + args["q"].(string), nil
		},
	)

	llm := model.NewMockModel("mock").
		AddCall("search", `{"q":"go"}`).
		AddText("Go is a language.")
	w := NewWorker("Researcher", llm, func(o *WorkerOptions) {
		o.Tools = []tool.Tool{search}
	})

	msg, err := w.Act(runCtx("Researcher"), testutil.NewTranscriptBuilder("what is go").Build(), "")
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", msg.Content)
	require.Len(t, msg.ToolUses, 1)
	assert.Equal(t, "search", msg.ToolUses[0].Name)
	assert.Equal(t, "result for go", msg.ToolUses[0].Output)
	assert.Empty(t, msg.ToolUses[0].Error)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	// user turn, assistant call, tool observation
	assert.Len(t, reqs[1].Contents, 3)
}

func TestWorker_ToolErrorIsObservation(t *testing.T) {
	failing := tool.NewFunctionTool("flaky", "Always fails", map[string]any{"type": "object"},
		func(*core.ToolContext, map[string]any) (any, error) {
			return nil, errors.New("backend down")
		},
	)

	llm := model.NewMockModel("mock").
		AddCall("flaky", `{}`).
		AddText("Could not reach the backend.")
	w := NewWorker("Researcher", llm, func(o *WorkerOptions) { o.Tools = []tool.Tool{failing} })

	msg, err := w.Act(runCtx(), testutil.NewTranscriptBuilder("q").Build(), "")
	require.NoError(t, err)
	assert.Equal(t, "Could not reach the backend.", msg.Content)
	require.Len(t, msg.ToolUses, 1)
	assert.Contains(t, msg.ToolUses[0].Error, "backend down")
}

func TestWorker_ActFailures(t *testing.T) {
	boom := errors.New("provider unavailable")

	tests := []struct {
		name      string
		llm       *model.MockModel
		maxIter   int
		wantErr   error
		wantTrace int
	}{
		{"model error", model.NewMockModel("mock").AddError(boom), 0, boom, 0},
		{"empty answer", model.NewMockModel("mock").AddText("  "), 0, flow.ErrEmptyAnswer, 1},
		{"iteration limit", model.NewMockModel("mock").AddCall("missing", `{}`).AddCall("missing", `{}`), 2, flow.ErrMaxIterations, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorker("Researcher", tt.llm, func(o *WorkerOptions) {
				if tt.maxIter > 0 {
					o.MaxIterations = tt.maxIter
				}
			})

			_, err := w.Act(runCtx(), testutil.NewTranscriptBuilder("q").Build(), "")
			require.ErrorIs(t, err, tt.wantErr)

			var wee *core.WorkerExecutionError
			require.ErrorAs(t, err, &wee)
			assert.Equal(t, "Researcher", wee.Worker)
			assert.Len(t, wee.Trace, tt.wantTrace)
		})
	}
}

func TestWorker_ActCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(runCtx())
	cancel()

	w := NewWorker("Researcher", model.NewMockModel("mock").AddText("never"))
	_, err := w.Act(ctx, testutil.NewTranscriptBuilder("q").Build(), "")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, core.IsWorkerExecutionError(err))
}

func TestWorker_ActEmptyTranscript(t *testing.T) {
	w := NewWorker("Researcher", model.NewMockModel("mock"))
	_, err := w.Act(runCtx(), core.Transcript{}, "")
	require.ErrorIs(t, err, core.ErrEmptyTranscript)
}

func TestWorker_SystemPrompt(t *testing.T) {
	t.Run("template owns placeholders", func(t *testing.T) {
		w := NewWorker("Writer", model.NewMockModel("mock"), func(o *WorkerOptions) {
			o.Instruction = NewInstructionFromText("You are {name} in [{team_members}]. Task: {instructions}")
		})
		require.NoError(t, w.Validate())

		got, err := w.SystemPrompt([]string{"Researcher", "Writer"}, "draft it")
		require.NoError(t, err)
		assert.Equal(t, "You are Writer in [Researcher, Writer]. Task: draft it", got)
	})

	t.Run("appended sections", func(t *testing.T) {
		w := NewWorker("Writer", model.NewMockModel("mock"), func(o *WorkerOptions) {
			o.Instruction = NewInstructionFromText("Write well.")
		})

		got, err := w.SystemPrompt([]string{"Writer"}, "draft it")
		require.NoError(t, err)
		assert.Equal(t, "Write well.\n\nYou are Writer, one of the following team members: Writer.\n\nInstructions from your supervisor:\ndraft it", got)
	})

	t.Run("no roster no instructions", func(t *testing.T) {
		w := NewWorker("Writer", model.NewMockModel("mock"), func(o *WorkerOptions) {
			o.Instruction = NewInstruction("Write well as {{.name}}.", prompt.GoTemplate)
		})

		got, err := w.SystemPrompt(nil, "  ")
		require.NoError(t, err)
		assert.Equal(t, "Write well as Writer.", got)
	})
}

func TestWorker_Validate(t *testing.T) {
	dup := tool.NewFunctionTool("t", "d", map[string]any{"type": "object"}, nil)

	tests := []struct {
		name   string
		w      *Worker
		reason string
	}{
		{"empty name", NewWorker("", model.NewMockModel("mock")), "name is required"},
		{"reserved finish", NewWorker(core.Finish, model.NewMockModel("mock")), "reserved"},
		{"reserved user", NewWorker(core.AuthorUser, model.NewMockModel("mock")), "reserved"},
		{"no model", NewWorker("W", nil), "model is required"},
		{"duplicate tool", NewWorker("W", model.NewMockModel("mock"), func(o *WorkerOptions) {
			o.Tools = []tool.Tool{dup, dup}
		}), "duplicate tool"},
		{"bad template", NewWorker("W", model.NewMockModel("mock"), func(o *WorkerOptions) {
			o.Instruction = NewInstruction("{{ .unknown }}", prompt.GoTemplate)
		}), "invalid prompt template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfgErr *core.ConfigError
			require.ErrorAs(t, tt.w.Validate(), &cfgErr)
			assert.Contains(t, cfgErr.Reason, tt.reason)

			_, err := tt.w.Act(runCtx(), testutil.NewTranscriptBuilder("q").Build(), "")
			assert.True(t, core.IsWorkerExecutionError(err))
		})
	}
}

func TestWorker_ToolsSorted(t *testing.T) {
	a := tool.NewFunctionTool("alpha", "", map[string]any{"type": "object"}, nil)
	b := tool.NewFunctionTool("beta", "", map[string]any{"type": "object"}, nil)

	w := NewWorker("W", model.NewMockModel("mock"), func(o *WorkerOptions) { o.Tools = []tool.Tool{b, a} })
	tools := w.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "alpha", tools[0].Name())
	assert.Equal(t, "beta", tools[1].Name())
}
