package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/teammesh/logging"
)

// ToolContext provides a constrained, auditable surface for tool / function
// implementations invoked by a worker. It exposes the run identifiers, the
// calling worker, a read-only view of the transcript the worker was given and
// a logger. Tools cannot append to the transcript.
type ToolContext struct {
	ctx            context.Context
	info           RunInfo
	worker         string
	functionCallID string
	transcript     Transcript
	logger         logging.Logger
}

// NewToolContext constructs a tool context for one function call made by
// worker while acting on transcript.
func NewToolContext(ctx context.Context, worker, functionCallID string, transcript Transcript, logger logging.Logger) *ToolContext {
	info, _ := RunInfoFrom(ctx)
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		info:           info,
		worker:         worker,
		functionCallID: functionCallID,
		transcript:     transcript,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID of the surrounding run, if any.
func (tc *ToolContext) SessionID() string { return tc.info.SessionID }

// RunID returns the run ID of the surrounding run, if any.
func (tc *ToolContext) RunID() string { return tc.info.RunID }

// Step returns the coordinator step the calling worker is serving.
func (tc *ToolContext) Step() int { return tc.info.Step }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// WorkerName returns the name of the worker that requested the call.
func (tc *ToolContext) WorkerName() string { return tc.worker }

// Transcript returns the transcript the worker is acting on.
func (tc *ToolContext) Transcript() Transcript { return tc.transcript }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.ctx == nil || tc.worker == "" || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}
