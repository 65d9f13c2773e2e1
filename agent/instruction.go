package agent

import "github.com/hupe1980/teammesh/prompt"

// Instruction is a system prompt template together with its dialect.
type Instruction struct {
	text   string
	format prompt.FormatType
}

// NewInstructionFromText creates an FString Instruction.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstruction creates an Instruction in the given template dialect.
func NewInstruction(text string, format prompt.FormatType) Instruction {
	return Instruction{text: text, format: format}
}

// Text returns the raw template.
func (i Instruction) Text() string { return i.text }

// Format returns the template dialect.
func (i Instruction) Format() prompt.FormatType { return i.format }

// IsEmpty reports whether no template text is configured.
func (i Instruction) IsEmpty() bool { return i.text == "" }

// Render substitutes vars into the template.
func (i Instruction) Render(vars map[string]any) (string, error) {
	return prompt.Render(i.text, vars, i.format)
}

// References reports whether the template substitutes key.
func (i Instruction) References(key string, vars map[string]any) (bool, error) {
	return prompt.References(i.text, key, vars, i.format)
}
