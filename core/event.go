package core

import (
	"context"
	"time"
)

// EventType categorizes run notifications.
type EventType string

const (
	// EventRunStarted is emitted once the transcript has been seeded.
	EventRunStarted EventType = "run_started"
	// EventDecision carries an accepted routing decision (the "next agent").
	EventDecision EventType = "decision"
	// EventMessage carries a worker message right after it was appended.
	EventMessage EventType = "message"
	// EventRunEnded is the terminal notification carrying the final state.
	EventRunEnded EventType = "run_ended"
)

// Event is a notification about the progress of one run. Events are
// fire-and-forget: sinks observe them but never influence the run. After
// emission an Event should be treated as immutable.
type Event struct {
	ID           string           `json:"id"`
	RunID        string           `json:"run_id"`
	SessionID    string           `json:"session_id,omitempty"`
	Type         EventType        `json:"type"`
	Author       string           `json:"author,omitempty"`
	Step         int              `json:"step"`
	Decision     *RoutingDecision `json:"decision,omitempty"`
	Message      *Message         `json:"message,omitempty"`
	State        string           `json:"state,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// NewEvent creates a bare event of type typ bound to a run.
func NewEvent(runID, sessionID string, typ EventType) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		SessionID: sessionID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunStartedEvent reports a run whose transcript was seeded with seed.
func NewRunStartedEvent(runID, sessionID string, seed Message) Event {
	e := NewEvent(runID, sessionID, EventRunStarted)
	e.Author = seed.Author
	seed = seed.clone()
	e.Message = &seed
	return e
}

// NewDecisionEvent reports an accepted routing decision made by supervisor.
func NewDecisionEvent(runID, sessionID, supervisor string, step int, d RoutingDecision) Event {
	e := NewEvent(runID, sessionID, EventDecision)
	e.Author = supervisor
	e.Step = step
	e.Decision = &d
	return e
}

// NewMessageEvent reports a message appended to the transcript.
func NewMessageEvent(runID, sessionID string, step int, m Message) Event {
	e := NewEvent(runID, sessionID, EventMessage)
	e.Author = m.Author
	e.Step = step
	m = m.clone()
	e.Message = &m
	return e
}

// NewRunEndedEvent reports the terminal state of a run. err may be nil.
func NewRunEndedEvent(runID, sessionID, state string, steps int, err error) Event {
	e := NewEvent(runID, sessionID, EventRunEnded)
	e.State = state
	e.Step = steps
	if err != nil {
		msg := err.Error()
		e.ErrorMessage = &msg
	}
	return e
}

// IsTerminal reports whether the event ends the run's event stream.
func (e Event) IsTerminal() bool { return e.Type == EventRunEnded }

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }

// EventSink receives run events. Implementations must be safe for concurrent
// use; a returned error is logged by the publisher and otherwise ignored.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}
