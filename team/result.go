package team

import (
	"github.com/hupe1980/teammesh/core"
)

// State is the lifecycle state of a run.
type State string

const (
	StateRunning        State = "RUNNING"
	StateFinished       State = "FINISHED"
	StateBudgetExceeded State = "BUDGET_EXCEEDED"
	StateFailed         State = "FAILED"
)

// IsTerminal reports whether no further calls are made in state s.
func (s State) IsTerminal() bool { return s != StateRunning }

// Step pairs an accepted routing decision with the message the chosen worker
// produced. Number is the 1-based position of the decision in the run.
// Message is nil for the FINISH decision, for a decision rejected
// by the step budget and for a failed worker turn.
type Step struct {
	Number   int                  `json:"number"`
	Decision core.RoutingDecision `json:"decision"`
	Message  *core.Message        `json:"message,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id,omitempty"`
	State     State  `json:"state"`
	// Transcript holds the seed message followed by one message per
	// completed worker turn.
	Transcript core.Transcript `json:"-"`
	// Steps lists every accepted decision in order.
	Steps []Step `json:"steps"`
	// Turns is the number of completed worker turns.
	Turns int `json:"turns"`
	// Summary is set when the supervisor summarized a finished run.
	Summary string `json:"summary,omitempty"`
	// FinalAnswer is the last worker message, or the summary when no worker
	// acted.
	FinalAnswer string `json:"final_answer,omitempty"`
}

// BudgetExceeded reports whether the run was stopped by the step budget
// rather than by the supervisor.
func (r *Result) BudgetExceeded() bool { return r.State == StateBudgetExceeded }

// Messages returns the worker messages in turn order.
func (r *Result) Messages() []core.Message {
	var out []core.Message
	for _, m := range r.Transcript.Messages() {
		if m.Author != core.AuthorUser {
			out = append(out, m)
		}
	}
	return out
}

// runState is the mutable state of one run. It is owned by a single Run call.
type runState struct {
	transcript core.Transcript
	stepsTaken int
	steps      []Step
}

func (rs *runState) result(res *Result) *Result {
	res.Transcript = rs.transcript
	res.Steps = rs.steps
	res.Turns = 0
	for _, s := range rs.steps {
		if s.Message != nil {
			res.Turns++
		}
	}
	if last, ok := rs.transcript.Last(); ok && last.Author != core.AuthorUser {
		res.FinalAnswer = last.Content
	} else {
		res.FinalAnswer = res.Summary
	}
	return res
}
