package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/model"
)

var (
	// ErrMaxIterations is returned when the model keeps requesting tools past
	// the iteration limit.
	ErrMaxIterations = errors.New("maximum reasoning iterations exceeded")

	// ErrEmptyAnswer is returned when the model stops without calling a tool
	// and without producing any text.
	ErrEmptyAnswer = errors.New("model produced an empty final answer")
)

// ReasoningLoop is the request -> model -> (optional tool loop) cycle of one
// worker turn, with pluggable pre/post processors. A loop holds no per-turn
// state and may be shared by concurrent turns.
type ReasoningLoop struct {
	llm                model.Model
	executor           FunctionExecutor
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	logger             logging.Logger
}

// LoopOptions configures a ReasoningLoop.
type LoopOptions struct {
	Executor FunctionExecutor
	Logger   logging.Logger
}

// NewReasoningLoop creates a loop with the default instructions, contents and
// tools processors.
func NewReasoningLoop(llm model.Model, optFns ...func(o *LoopOptions)) *ReasoningLoop {
	opts := LoopOptions{
		Executor: NewParallelFunctionExecutor(FunctionExecutorConfig{}),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ReasoningLoop{
		llm:      llm,
		executor: opts.Executor,
		requestProcessors: []RequestProcessor{
			NewInstructionsProcessor(),
			NewContentsProcessor(),
			NewToolsProcessor(),
		},
		logger: opts.Logger,
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (l *ReasoningLoop) AddRequestProcessor(processor RequestProcessor) {
	l.requestProcessors = append(l.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed after each model call.
func (l *ReasoningLoop) AddResponseProcessor(processor ResponseProcessor) {
	l.responseProcessors = append(l.responseProcessors, processor)
}

// Run executes the loop until the model answers in plain text. The returned
// Outcome carries the partial trace even when err is non-nil.
func (l *ReasoningLoop) Run(ctx context.Context, turn Turn) (Outcome, error) {
	st := &State{Context: ctx, Turn: turn}
	limiter := core.NewStepLimiter(turn.MaxIterations)

	var out Outcome

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !limiter.Take() {
			return out, fmt.Errorf("%w (%d)", ErrMaxIterations, turn.MaxIterations)
		}
		st.Iteration = limiter.Count()

		resp, err := l.runOnce(st)
		if err != nil {
			return out, err
		}
		addUsage(&out.Usage, resp.Usage)

		entry := core.TraceEntry{
			Iteration: st.Iteration,
			Text:      resp.Content.Text(),
			Calls:     resp.Content.FunctionCalls(),
		}

		if len(entry.Calls) == 0 {
			out.Trace = append(out.Trace, entry)
			if strings.TrimSpace(entry.Text) == "" {
				return out, ErrEmptyAnswer
			}
			out.Text = entry.Text
			return out, nil
		}

		results := l.executor.Execute(ctx, Batch{
			Worker:     turn.Worker,
			Transcript: turn.Transcript,
			Tools:      turn.Tools,
			Calls:      entry.Calls,
			Logger:     l.logger,
		})

		observations := make([]core.Part, 0, len(results))
		for i, r := range results {
			use := core.ToolUse{
				Name:      r.Name,
				Arguments: entry.Calls[i].Arguments,
				Output:    renderOutput(r.Response),
				Error:     r.Error,
			}
			entry.Results = append(entry.Results, use)
			out.ToolUses = append(out.ToolUses, use)
			observations = append(observations, core.FunctionResponsePart{FunctionResponse: r})
		}
		out.Trace = append(out.Trace, entry)

		assistant := resp.Content
		assistant.Role = core.RoleAssistant
		st.Scratchpad = append(st.Scratchpad, assistant, core.Content{Role: core.RoleTool, Parts: observations})
	}
}

// runOnce performs one model call and returns the processed final response.
func (l *ReasoningLoop) runOnce(st *State) (model.Response, error) {
	req := model.Request{Stream: st.Turn.Stream}

	for _, processor := range l.requestProcessors {
		if err := processor.ProcessRequest(st, &req); err != nil {
			return model.Response{}, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	start := time.Now()
	resp, err := model.Collect(st.Context, l.llm, req, nil)
	dur := time.Since(start)

	info := l.llm.Info()
	if err != nil {
		l.logger.Warn("worker.model.failed", "worker", st.Turn.Worker, "model", info.Name, "iteration", st.Iteration, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return model.Response{}, fmt.Errorf("model %s: %w", info.Name, err)
	}
	l.logger.Debug("worker.model.completed", "worker", st.Turn.Worker, "model", info.Name, "iteration", st.Iteration, "duration_ms", dur.Milliseconds(), "finish_reason", resp.FinishReason)

	for _, processor := range l.responseProcessors {
		if err := processor.ProcessResponse(st, &resp); err != nil {
			return model.Response{}, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
		}
	}

	return resp, nil
}

func addUsage(total *model.TokenUsage, u *model.TokenUsage) {
	if u == nil {
		return
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
