package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/prompt"
	"github.com/hupe1980/teammesh/tool"
)

// DefaultMaxIterations bounds the reasoning loop of a worker turn.
const DefaultMaxIterations = 15

// WorkerOptions configures a Worker instance.
//
// Use functional options with NewWorker to override defaults.
type WorkerOptions struct {
	Instruction     Instruction
	Tools           []tool.Tool
	MaxIterations   int
	EnableStreaming bool
	Executor        flow.FunctionExecutor
	Logger          logging.Logger
}

// Worker performs one unit of task-specific reasoning per turn. Given the
// transcript and the supervisor's instructions it runs a tool-augmented
// reasoning loop and returns one message authored under its own name.
//
// Workers hold no run scoped state and are safe for concurrent use.
type Worker struct {
	name          string
	llm           model.Model
	instruction   Instruction
	tools         map[string]tool.Tool
	maxIterations int
	stream        bool
	loop          *flow.ReasoningLoop
	logger        logging.Logger

	// Whether the template substitutes the roster / instructions itself.
	ownsRoster       bool
	ownsInstructions bool

	err error
}

// NewWorker creates a worker with sensible defaults:
//   - a generic system prompt naming the worker
//   - no tools (the worker answers from the model alone)
//   - at most DefaultMaxIterations model calls per turn
//   - parallel tool execution
func NewWorker(name string, llm model.Model, optFns ...func(o *WorkerOptions)) *Worker {
	opts := WorkerOptions{
		Instruction:   NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", escapeFString(name))),
		MaxIterations: DefaultMaxIterations,
		Executor:      flow.NewParallelFunctionExecutor(flow.FunctionExecutorConfig{}),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	w := &Worker{
		name:          name,
		llm:           llm,
		instruction:   opts.Instruction,
		tools:         make(map[string]tool.Tool, len(opts.Tools)),
		maxIterations: opts.MaxIterations,
		stream:        opts.EnableStreaming,
		logger:        logging.ForComponent(opts.Logger, "worker"),
	}

	for _, t := range opts.Tools {
		if _, dup := w.tools[t.Name()]; dup && w.err == nil {
			w.err = &core.ConfigError{Component: name, Reason: fmt.Sprintf("duplicate tool %q", t.Name())}
		}
		w.tools[t.Name()] = t
	}

	if llm != nil {
		w.loop = flow.NewReasoningLoop(llm, func(o *flow.LoopOptions) {
			o.Executor = opts.Executor
			o.Logger = opts.Logger
		})
	}

	if w.err == nil {
		w.err = w.check()
	}

	return w
}

func (w *Worker) check() error {
	if w.name == "" {
		return &core.ConfigError{Component: "worker", Reason: "name is required"}
	}
	if w.name == core.Finish || w.name == core.AuthorUser {
		return &core.ConfigError{Component: w.name, Reason: "name is reserved"}
	}
	if w.llm == nil {
		return &core.ConfigError{Component: w.name, Reason: "model is required"}
	}

	vars := w.vars(nil, "")
	var err error
	if w.ownsRoster, err = w.instruction.References(prompt.VarTeamMembers, vars); err != nil {
		return &core.ConfigError{Component: w.name, Reason: fmt.Sprintf("invalid prompt template: %v", err)}
	}
	if w.ownsInstructions, err = w.instruction.References(prompt.VarInstructions, vars); err != nil {
		return &core.ConfigError{Component: w.name, Reason: fmt.Sprintf("invalid prompt template: %v", err)}
	}
	return nil
}

func (w *Worker) vars(roster []string, instructions string) map[string]any {
	return map[string]any{
		prompt.VarName:         w.name,
		prompt.VarTeamMembers:  prompt.JoinRoster(roster),
		prompt.VarInstructions: instructions,
	}
}

// Name returns the worker's name, which is also the author of its messages.
func (w *Worker) Name() string { return w.name }

// Tools returns the worker's tools sorted by name.
func (w *Worker) Tools() []tool.Tool {
	names := make([]string, 0, len(w.tools))
	for n := range w.tools {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]tool.Tool, 0, len(names))
	for _, n := range names {
		out = append(out, w.tools[n])
	}
	return out
}

// Validate returns the configuration error detected at construction, if any.
func (w *Worker) Validate() error { return w.err }

// SystemPrompt renders the worker's system prompt for one turn. Unless the
// template substitutes them itself, the roster membership line and the
// supervisor's instructions are appended.
func (w *Worker) SystemPrompt(roster []string, instructions string) (string, error) {
	text, err := w.instruction.Render(w.vars(roster, instructions))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(text)
	if !w.ownsRoster && len(roster) > 0 {
		fmt.Fprintf(&b, "\n\nYou are %s, one of the following team members: %s.", w.name, prompt.JoinRoster(roster))
	}
	if !w.ownsInstructions && strings.TrimSpace(instructions) != "" {
		fmt.Fprintf(&b, "\n\nInstructions from your supervisor:\n%s", instructions)
	}
	return b.String(), nil
}

// Act runs one turn. The returned message is authored by the worker; the
// transcript is not modified. Failures are reported as
// *core.WorkerExecutionError carrying the partial reasoning trace.
func (w *Worker) Act(ctx context.Context, transcript core.Transcript, instructions string) (core.Message, error) {
	if w.err != nil {
		return core.Message{}, &core.WorkerExecutionError{Worker: w.name, Err: w.err}
	}
	if transcript.IsEmpty() {
		return core.Message{}, &core.WorkerExecutionError{Worker: w.name, Err: core.ErrEmptyTranscript}
	}

	info, _ := core.RunInfoFrom(ctx)

	system, err := w.SystemPrompt(info.Roster, instructions)
	if err != nil {
		return core.Message{}, &core.WorkerExecutionError{Worker: w.name, Err: fmt.Errorf("render prompt: %w", err)}
	}

	start := time.Now()
	out, err := w.loop.Run(ctx, flow.Turn{
		Worker:        w.name,
		Instructions:  system,
		Transcript:    transcript,
		Tools:         w.tools,
		MaxIterations: w.maxIterations,
		Stream:        w.stream,
	})
	if err != nil {
		w.logger.Warn("worker.act.failed",
			"worker", w.name,
			"run_id", info.RunID,
			"step", info.Step,
			"iterations", len(out.Trace),
			"error", err.Error(),
		)
		return core.Message{}, &core.WorkerExecutionError{Worker: w.name, Trace: out.Trace, Err: err}
	}

	msg := core.NewMessage(w.name, out.Text)
	msg.ToolUses = out.ToolUses

	w.logger.Info("worker.act.completed",
		"worker", w.name,
		"run_id", info.RunID,
		"step", info.Step,
		"tool_calls", len(out.ToolUses),
		"tokens", out.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return msg, nil
}

// escapeFString doubles braces so that name is taken literally by pyfmt.
func escapeFString(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}
