// Package tool defines the capabilities workers call during a turn, the
// function adapters that expose Go code as tools and the ToolError taxonomy.
package tool

import (
	"fmt"

	"github.com/hupe1980/teammesh/core"
)

// Tool is a capability a worker may invoke while reasoning. Call receives a
// ToolContext exposing the run identifiers, the calling worker and a
// read-only view of the transcript. Errors returned by Call are fed back to
// the worker as observations and never abort the team run. Implementations
// must be safe for concurrent use.
type Tool interface {
	// Name is the function name declared to the model (snake_case).
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments.
	Parameters() map[string]any
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ToolError is the failure of one tool call. Its text becomes the
// observation the worker sees.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Error codes attached to ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// NewToolError creates a ToolError.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
