package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/prompt"
)

// DefaultStepBudget is the number of worker turns a run may take when no
// budget is configured.
const DefaultStepBudget = 100

// DefaultSupervisorPrompt is the FString system prompt used when none is
// configured.
const DefaultSupervisorPrompt = `You are a supervisor tasked with managing a conversation between the following workers: {team_members}.
Given the following user request, respond with the worker to act next. Each worker will perform a task and respond with their results and status.
When the request has been fully handled, respond with FINISH.
Select strategically to minimize the number of steps taken.`

// DefaultSummaryPrompt is used to produce the final summary when
// summarization is enabled.
const DefaultSummaryPrompt = `You are a supervisor managing the workers {team_members}.
The team has completed the user's request. Summarize the outcome of the conversation above for the user in a concise final answer.`

const routingQuestion = "Given the conversation above, who should act next? Or should we FINISH? Select one of: %s"

// SupervisorOptions configures a Supervisor instance.
type SupervisorOptions struct {
	Instruction Instruction
	// StepBudget bounds the number of worker turns of a run. Values <= 0
	// select DefaultStepBudget.
	StepBudget int
	// Summarize enables a final summary call when the run finishes.
	Summarize          bool
	SummaryInstruction Instruction
	Logger             logging.Logger
}

// Supervisor decides, turn by turn, which worker acts next or whether the
// run is finished.
type Supervisor struct {
	name               string
	llm                model.Model
	roster             []string
	instruction        Instruction
	summaryInstruction Instruction
	summarize          bool
	stepBudget         int
	logger             logging.Logger

	warnings []string
	err      error
}

// NewSupervisor creates a supervisor routing among roster. Configuration
// problems are reported by Validate; a prompt without the roster placeholder
// only produces a warning.
func NewSupervisor(name string, llm model.Model, roster []string, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		Instruction:        NewInstructionFromText(DefaultSupervisorPrompt),
		StepBudget:         DefaultStepBudget,
		SummaryInstruction: NewInstructionFromText(DefaultSummaryPrompt),
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.StepBudget <= 0 {
		opts.StepBudget = DefaultStepBudget
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Supervisor{
		name:               name,
		llm:                llm,
		roster:             slices.Clone(roster),
		instruction:        opts.Instruction,
		summaryInstruction: opts.SummaryInstruction,
		summarize:          opts.Summarize,
		stepBudget:         opts.StepBudget,
		logger:             logging.ForComponent(opts.Logger, "supervisor"),
	}
	s.err = s.check()

	return s
}

func (s *Supervisor) check() error {
	if s.name == "" {
		return &core.ConfigError{Component: "supervisor", Reason: "name is required"}
	}
	if s.llm == nil {
		return &core.ConfigError{Component: s.name, Reason: "model is required"}
	}
	if len(s.roster) == 0 {
		return &core.ConfigError{Component: s.name, Reason: "roster is empty"}
	}

	seen := make(map[string]struct{}, len(s.roster))
	for _, w := range s.roster {
		if w == "" {
			return &core.ConfigError{Component: s.name, Reason: "roster contains an empty name"}
		}
		if w == core.Finish {
			return &core.ConfigError{Component: s.name, Reason: fmt.Sprintf("%q is reserved and cannot be a worker name", core.Finish)}
		}
		if _, dup := seen[w]; dup {
			return &core.ConfigError{Component: s.name, Reason: fmt.Sprintf("duplicate worker %q in roster", w)}
		}
		seen[w] = struct{}{}
	}

	ok, err := s.instruction.References(prompt.VarTeamMembers, s.vars())
	if err != nil {
		return &core.ConfigError{Component: s.name, Reason: fmt.Sprintf("invalid prompt template: %v", err)}
	}
	if !ok {
		msg := fmt.Sprintf("supervisor %s: system prompt does not reference {%s}", s.name, prompt.VarTeamMembers)
		s.warnings = append(s.warnings, msg)
		s.logger.Warn("supervisor.prompt.no_roster", "supervisor", s.name)
	}

	if s.summarize {
		if _, err := s.summaryInstruction.Render(s.vars()); err != nil {
			return &core.ConfigError{Component: s.name, Reason: fmt.Sprintf("invalid summary template: %v", err)}
		}
	}

	return nil
}

func (s *Supervisor) vars() map[string]any {
	return map[string]any{
		prompt.VarTeamMembers: prompt.JoinRoster(s.roster),
		prompt.VarName:        s.name,
	}
}

// Name returns the supervisor's name.
func (s *Supervisor) Name() string { return s.name }

// Roster returns a copy of the worker names the supervisor routes among.
func (s *Supervisor) Roster() []string { return slices.Clone(s.roster) }

// StepBudget returns the maximum number of worker turns per run.
func (s *Supervisor) StepBudget() int { return s.stepBudget }

// SummarizeEnabled reports whether a final summary is requested on FINISH.
func (s *Supervisor) SummarizeEnabled() bool { return s.summarize }

// Warnings returns non-fatal configuration findings.
func (s *Supervisor) Warnings() []string { return slices.Clone(s.warnings) }

// Validate returns the configuration error detected at construction, if any.
func (s *Supervisor) Validate() error { return s.err }

// Decide issues one routing call for transcript. The first function call of
// the response is used and any further calls are ignored.
func (s *Supervisor) Decide(ctx context.Context, transcript core.Transcript) (core.RoutingDecision, error) {
	if s.err != nil {
		return core.RoutingDecision{}, s.err
	}
	if transcript.IsEmpty() {
		return core.RoutingDecision{}, core.ErrEmptyTranscript
	}

	system, err := s.instruction.Render(s.vars())
	if err != nil {
		return core.RoutingDecision{}, fmt.Errorf("supervisor %s: render prompt: %w", s.name, err)
	}

	routeTool, err := RoutingTool(s.roster)
	if err != nil {
		return core.RoutingDecision{}, fmt.Errorf("supervisor %s: %w", s.name, err)
	}

	contents := transcript.Contents()
	contents = append(contents, core.NewTextContent(core.RoleUser,
		fmt.Sprintf(routingQuestion, strings.Join(RoutingOptions(s.roster), ", "))))

	req := model.Request{
		Instructions: system,
		Contents:     contents,
		Tools:        []model.ToolDefinition{routeTool},
		ToolChoice:   model.ForceFunction(RouteFunctionName),
	}

	info, _ := core.RunInfoFrom(ctx)

	start := time.Now()
	resp, err := model.Collect(ctx, s.llm, req, nil)
	if err != nil {
		s.logger.Warn("supervisor.model.failed", "supervisor", s.name, "run_id", info.RunID, "step", info.Step, "error", err.Error())
		return core.RoutingDecision{}, fmt.Errorf("supervisor %s: model call failed: %w", s.name, err)
	}

	calls := resp.Content.FunctionCalls()
	if len(calls) == 0 {
		s.logger.Warn("supervisor.route.missing", "supervisor", s.name, "run_id", info.RunID, "step", info.Step)
		return core.RoutingDecision{}, &core.RoutingProtocolError{
			Supervisor: s.name,
			Reason:     "response contained no routing call",
			Raw:        resp.Content.Text(),
		}
	}

	if len(calls) > 1 {
		s.logger.Debug("supervisor.route.extra_calls_ignored", "supervisor", s.name, "count", len(calls))
	}

	first := calls[0]
	if first.Name != RouteFunctionName {
		s.logger.Warn("supervisor.route.invalid", "supervisor", s.name, "function", first.Name)
		return core.RoutingDecision{}, &core.RoutingProtocolError{
			Supervisor: s.name,
			Reason:     fmt.Sprintf("unexpected function %q", first.Name),
			Raw:        first.Arguments,
		}
	}

	decision, err := DecodeRouting(s.name, first.Arguments, s.roster)
	if err != nil {
		s.logger.Warn("supervisor.route.invalid", "supervisor", s.name, "run_id", info.RunID, "error", err.Error())
		return core.RoutingDecision{}, err
	}

	s.logger.Info("supervisor.route.decided",
		"supervisor", s.name,
		"run_id", info.RunID,
		"step", info.Step,
		"next", decision.Next,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return decision, nil
}

// Summarize asks the model for a final answer summarizing transcript. No
// tools are offered.
func (s *Supervisor) Summarize(ctx context.Context, transcript core.Transcript) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if transcript.IsEmpty() {
		return "", core.ErrEmptyTranscript
	}

	system, err := s.summaryInstruction.Render(s.vars())
	if err != nil {
		return "", fmt.Errorf("supervisor %s: render summary prompt: %w", s.name, err)
	}

	resp, err := model.Collect(ctx, s.llm, model.Request{
		Instructions: system,
		Contents:     transcript.Contents(),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("supervisor %s: summary failed: %w", s.name, err)
	}

	return strings.TrimSpace(resp.Content.Text()), nil
}
