package flow

import (
	"sort"

	"github.com/hupe1980/teammesh/model"
)

// InstructionsProcessor sets the system prompt of the request.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest adds the turn's instructions to the request.
func (p *InstructionsProcessor) ProcessRequest(st *State, req *model.Request) error {
	req.Instructions = st.Turn.Instructions
	return nil
}

// ContentsProcessor renders the transcript followed by the turn's scratchpad.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets the conversation turns of the request.
func (p *ContentsProcessor) ProcessRequest(st *State, req *model.Request) error {
	contents := st.Turn.Transcript.Contents()
	req.Contents = append(contents, st.Scratchpad...)
	return nil
}

// ToolsProcessor declares the worker's tools. Definitions are sorted by name
// so that requests are deterministic.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest adds tool definitions to the request.
func (p *ToolsProcessor) ProcessRequest(st *State, req *model.Request) error {
	if len(st.Turn.Tools) == 0 {
		return nil
	}

	names := make([]string, 0, len(st.Turn.Tools))
	for name := range st.Turn.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := st.Turn.Tools[name]
		defs = append(defs, model.NewFunctionTool(t.Name(), t.Description(), t.Parameters()))
	}
	req.Tools = defs
	return nil
}
