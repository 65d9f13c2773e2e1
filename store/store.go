package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// ErrNotFound is returned when a run is not in the ledger.
var ErrNotFound = errors.New("run not found")

// Store is a run ledger fed by run events.
type Store interface {
	core.EventSink

	// GetRun returns the full record of a run, including decisions and
	// messages.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns run headers (without decisions and messages), newest
	// first. An empty sessionID lists all runs; limit <= 0 selects 50.
	ListRuns(ctx context.Context, sessionID string, limit int) ([]Run, error)

	Close() error
}

// Decision is a recorded routing decision.
type Decision struct {
	Step         int       `json:"step"`
	Supervisor   string    `json:"supervisor"`
	Next         string    `json:"next"`
	Reasoning    string    `json:"reasoning,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoutingDecision converts the record back to a core.RoutingDecision.
func (d Decision) RoutingDecision() core.RoutingDecision {
	return core.RoutingDecision{Reasoning: d.Reasoning, Next: d.Next, Instructions: d.Instructions}
}

// Run is the ledger record of one run.
type Run struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	State     string     `json:"state"`
	Request   string     `json:"request"`
	Turns     int        `json:"turns"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Decisions []Decision     `json:"decisions,omitempty"`
	Messages  []core.Message `json:"messages,omitempty"`
}

// StateRunning is recorded for runs that have not ended.
const StateRunning = "RUNNING"

// Transcript rebuilds the transcript of the run.
func (r *Run) Transcript() core.Transcript { return core.NewTranscript(r.Messages...) }

// Ended reports whether the terminal event was recorded.
func (r *Run) Ended() bool { return r.EndedAt != nil }

func (r *Run) clone() *Run {
	c := *r
	c.Decisions = slices.Clone(r.Decisions)
	c.Messages = core.NewTranscript(r.Messages...).Messages()
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return &c
}

func decisionFromEvent(ev core.Event) Decision {
	return Decision{
		Step:         ev.Step,
		Supervisor:   ev.Author,
		Next:         ev.Decision.Next,
		Reasoning:    ev.Decision.Reasoning,
		Instructions: ev.Decision.Instructions,
		CreatedAt:    ev.Timestamp,
	}
}

func errorText(ev core.Event) string {
	if ev.ErrorMessage == nil {
		return ""
	}
	return *ev.ErrorMessage
}
