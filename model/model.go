package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// NewFunctionTool is a shorthand for a function typed ToolDefinition.
func NewFunctionTool(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ToolChoiceMode selects how strictly the model must call tools.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceRequired forces at least one tool call.
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceFunction forces a call of the named function.
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice constrains tool selection. A nil *ToolChoice in a Request means
// provider default (auto).
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"` // Set when Mode is ToolChoiceFunction
}

// ForceFunction returns a ToolChoice forcing a call of name.
func ForceFunction(name string) *ToolChoice {
	return &ToolChoice{Mode: ToolChoiceFunction, Name: name}
}

// Request captures the normalized model input produced by supervisors and workers.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt for the model
	Contents     []core.Content   `json:"contents"`     // Higher-level content converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   *ToolChoice      `json:"tool_choice,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by supervisors and workers to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Collect when the model closed its stream
// without a final response.
var ErrNoResponse = errors.New("model returned no final response")

// Collect drains a Generate call and returns the final (non-partial) response.
// Partial chunks are forwarded to onPartial when it is non-nil.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response)) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	respCh, errCh := m.Generate(ctx, req)

	var (
		final    Response
		hasFinal bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onPartial != nil {
					onPartial(r)
				}
				continue
			}
			final, hasFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !hasFinal {
		return Response{}, ErrNoResponse
	}
	return final, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples. It
// replays scripted responses in order and records every request it receives.
type MockModel struct {
	info Info

	mu       sync.Mutex
	script   []scripted
	requests []Request
	fallback string
}

type scripted struct {
	content core.Content
	err     error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
	}
}

// AddText enqueues a plain text final answer.
func (m *MockModel) AddText(text string) *MockModel {
	return m.add(scripted{content: core.NewTextContent(core.RoleAssistant, text)})
}

// AddCall enqueues a response consisting of a single function call with the
// given JSON arguments.
func (m *MockModel) AddCall(name, arguments string) *MockModel {
	return m.add(scripted{content: core.Content{
		Role: core.RoleAssistant,
		Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        core.NewID(),
			Name:      name,
			Arguments: arguments,
		}}},
	}})
}

// AddContent enqueues an arbitrary response content.
func (m *MockModel) AddContent(c core.Content) *MockModel {
	return m.add(scripted{content: c})
}

// AddError enqueues a generation failure.
func (m *MockModel) AddError(err error) *MockModel {
	return m.add(scripted{err: err})
}

// SetFallback sets the text answered once the script is exhausted. Without a
// fallback an exhausted script yields an error.
func (m *MockModel) SetFallback(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = text
	return m
}

func (m *MockModel) add(s scripted) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, s)
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockModel) next(req Request) (scripted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		if m.fallback != "" {
			return scripted{content: core.NewTextContent(core.RoleAssistant, m.fallback)}, nil
		}
		return scripted{}, fmt.Errorf("mock model %s: script exhausted after %d call(s)", m.info.Name, len(m.requests)-1)
	}
	s := m.script[0]
	m.script = m.script[1:]
	return s, nil
}

// Generate implements Model; emits optional streaming text chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		s, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}
		if s.err != nil {
			errCh <- s.err
			return
		}

		if req.Stream {
			for _, r := range s.content.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(r)),
				}:
				}
			}
		}

		finish := "stop"
		if len(s.content.FunctionCalls()) > 0 {
			finish = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			ID:           core.NewID(),
			Content:      s.content,
			FinishReason: finish,
		}:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
