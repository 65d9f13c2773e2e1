// Package flow implements the tool-augmented reasoning loop that drives one
// worker turn.
//
// A loop repeatedly asks the model for a response, executes any requested
// tool calls through a FunctionExecutor and feeds their results back as
// observations until the model produces a plain text answer. Request and
// response processors keep request assembly modular.
package flow

import (
	"context"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/tool"
)

// Turn describes one worker turn handed to the reasoning loop.
type Turn struct {
	// Worker is the name of the acting worker.
	Worker string
	// Instructions is the fully rendered system prompt.
	Instructions string
	// Transcript is the shared transcript at the time of the turn. It is
	// rendered into the request but never modified.
	Transcript core.Transcript
	// Tools available to the worker, keyed by name. May be empty.
	Tools map[string]tool.Tool
	// MaxIterations bounds the number of model calls. <= 0 means unlimited.
	MaxIterations int
	// Stream requests partial responses from the model.
	Stream bool
}

// State is the mutable scratch state of one turn. It is owned by a single
// loop invocation and discarded afterwards.
type State struct {
	Context    context.Context
	Turn       Turn
	Iteration  int
	Scratchpad []core.Content // assistant tool calls and tool observations of this turn
}

// Outcome is the result of a reasoning loop. On failure Trace still holds the
// partial trace.
type Outcome struct {
	Text     string
	ToolUses []core.ToolUse
	Trace    []core.TraceEntry
	Usage    model.TokenUsage
}

// RequestProcessor prepares the model request before each model call.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(st *State, req *model.Request) error
}

// ResponseProcessor inspects the final model response of each iteration.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse may validate or adjust the response.
	ProcessResponse(st *State, resp *model.Response) error
}
