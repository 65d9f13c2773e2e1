package testutil

import (
	"errors"

	"github.com/hupe1980/teammesh/core"
)

// EventBuilder provides a fluent helper for constructing run events in tests.
// Example:
//
//	ev := NewEventBuilder().Run("run-1").Session("s").Message(1, "Researcher", "hello").Build()
type EventBuilder struct {
	runID     string
	sessionID string
	build     func(runID, sessionID string) core.Event
}

// NewEventBuilder creates a builder for a run_started event of run "run".
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{runID: "run", build: func(r, s string) core.Event {
		return core.NewEvent(r, s, core.EventRunStarted)
	}}
}

// Run sets the run ID (chainable).
func (b *EventBuilder) Run(id string) *EventBuilder { b.runID = id; return b }

// Session sets the session ID (chainable).
func (b *EventBuilder) Session(id string) *EventBuilder { b.sessionID = id; return b }

// Decision turns the event into a decision event (chainable).
func (b *EventBuilder) Decision(step int, d core.RoutingDecision) *EventBuilder {
	b.build = func(r, s string) core.Event { return core.NewDecisionEvent(r, s, "supervisor", step, d) }
	return b
}

// Message turns the event into a message event (chainable).
func (b *EventBuilder) Message(step int, author, content string) *EventBuilder {
	b.build = func(r, s string) core.Event { return core.NewMessageEvent(r, s, step, core.NewMessage(author, content)) }
	return b
}

// Ended turns the event into a run_ended event (chainable). An empty errMsg
// means success.
func (b *EventBuilder) Ended(state string, steps int, errMsg string) *EventBuilder {
	b.build = func(r, s string) core.Event {
		var err error
		if errMsg != "" {
			err = errors.New(errMsg)
		}
		return core.NewRunEndedEvent(r, s, state, steps, err)
	}
	return b
}

// Build returns the event.
func (b *EventBuilder) Build() core.Event { return b.build(b.runID, b.sessionID) }
