package testutil

import "github.com/hupe1980/teammesh/core"

// TranscriptBuilder provides a fluent helper for constructing transcripts.
// Example:
//
//	tr := NewTranscriptBuilder("summarize the report").Say("Researcher", "found 3 sources").Build()
type TranscriptBuilder struct {
	msgs []core.Message
}

// NewTranscriptBuilder starts a transcript seeded with the user request.
func NewTranscriptBuilder(request string) *TranscriptBuilder {
	return &TranscriptBuilder{msgs: []core.Message{core.NewUserMessage(request)}}
}

// Say appends a message authored by worker (chainable).
func (b *TranscriptBuilder) Say(worker, content string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewMessage(worker, content))
	return b
}

// Build returns the transcript.
func (b *TranscriptBuilder) Build() core.Transcript { return core.NewTranscript(b.msgs...) }
