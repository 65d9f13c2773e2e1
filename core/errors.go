package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTranscript is returned when a unit is handed a transcript
	// without the seed message.
	ErrEmptyTranscript = errors.New("transcript is empty")

	// ErrModeration is wrapped by errors raised when an input moderator
	// rejects the initiating request.
	ErrModeration = errors.New("input rejected by moderation")
)

// RoutingProtocolError reports a supervisor response that contained no valid
// routing call or named a worker outside the roster. The coordinator never
// retries or guesses a default route for it.
type RoutingProtocolError struct {
	Supervisor string `json:"supervisor"`
	Reason     string `json:"reason"`
	Raw        string `json:"raw,omitempty"` // Offending payload, if any
}

func (e *RoutingProtocolError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("routing protocol error in %s: %s (raw: %s)", e.Supervisor, e.Reason, e.Raw)
	}
	return fmt.Sprintf("routing protocol error in %s: %s", e.Supervisor, e.Reason)
}

// TraceEntry is one step of a worker's internal reasoning loop, kept for
// diagnostics when the worker fails.
type TraceEntry struct {
	Iteration int            `json:"iteration"`
	Text      string         `json:"text,omitempty"`
	Calls     []FunctionCall `json:"calls,omitempty"`
	Results   []ToolUse      `json:"results,omitempty"`
}

// WorkerExecutionError reports a worker whose reasoning loop could not produce
// a final answer. Trace holds the partial reasoning trace.
type WorkerExecutionError struct {
	Worker string       `json:"worker"`
	Trace  []TraceEntry `json:"trace,omitempty"`
	Err    error        `json:"-"`
}

func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("worker %s failed after %d iteration(s): %v", e.Worker, len(e.Trace), e.Err)
}

// Unwrap returns the underlying cause.
func (e *WorkerExecutionError) Unwrap() error { return e.Err }

// ConfigError reports an invalid team wiring detected at build time.
type ConfigError struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Component, e.Reason)
}

// IsRoutingProtocolError reports whether err wraps a *RoutingProtocolError.
func IsRoutingProtocolError(err error) bool {
	var target *RoutingProtocolError
	return errors.As(err, &target)
}

// IsWorkerExecutionError reports whether err wraps a *WorkerExecutionError.
func IsWorkerExecutionError(err error) bool {
	var target *WorkerExecutionError
	return errors.As(err, &target)
}
