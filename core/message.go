package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AuthorUser is the author recorded on the initiating request of a run.
const AuthorUser = "user"

// ToolUse records one tool invocation performed by a worker while producing a
// message. Error is set when the tool failed; the failure was fed back to the
// worker as an observation.
type ToolUse struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Message is one authored entry of a Transcript. Author is either AuthorUser
// (the initiator) or the name of the worker that produced it.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	ToolUses  []ToolUse `json:"tool_uses,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message authored by author.
func NewMessage(author, content string) Message {
	return Message{
		ID:        NewID(),
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserMessage creates the initiating message of a run.
func NewUserMessage(content string) Message { return NewMessage(AuthorUser, content) }

// clone copies the ToolUses slice so the receiver cannot be mutated through
// a shared backing array.
func (m Message) clone() Message {
	m.ToolUses = slices.Clone(m.ToolUses)
	return m
}

// Transcript is the ordered, append-only log of one run. It is a value type:
// Append never modifies the receiver and returns a new Transcript, so a
// transcript handed to a unit cannot be altered behind the coordinator's back.
// The zero value is an empty transcript.
type Transcript struct {
	messages []Message
}

// NewTranscript creates a transcript holding the given messages in order.
func NewTranscript(msgs ...Message) Transcript {
	t := Transcript{messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		t.messages = append(t.messages, m.clone())
	}
	return t
}

// Len returns the number of messages.
func (t Transcript) Len() int { return len(t.messages) }

// IsEmpty reports whether the transcript holds no message.
func (t Transcript) IsEmpty() bool { return len(t.messages) == 0 }

// At returns the i-th message. It panics when i is out of range.
func (t Transcript) At(i int) Message { return t.messages[i].clone() }

// Last returns the most recent message.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1].clone(), true
}

// Messages returns a copy of all messages.
func (t Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// Append returns a new transcript with m added at the end.
func (t Transcript) Append(m Message) Transcript {
	return Transcript{messages: append(slices.Clip(t.messages), m.clone())}
}

// HasPrefix reports whether every message of prefix appears, unchanged and in
// order, at the start of t.
func (t Transcript) HasPrefix(prefix Transcript) bool {
	if prefix.Len() > t.Len() {
		return false
	}
	for i, m := range prefix.messages {
		o := t.messages[i]
		if m.ID != o.ID || m.Author != o.Author || m.Content != o.Content {
			return false
		}
	}
	return true
}

// Contents renders the transcript as conversation turns. The initiator speaks
// as the user; worker output is attributed by name so other units can tell
// team members apart.
func (t Transcript) Contents() []Content {
	out := make([]Content, 0, len(t.messages))
	for _, m := range t.messages {
		text := m.Content
		if m.Author != AuthorUser {
			text = fmt.Sprintf("%s: %s", m.Author, m.Content)
		}
		out = append(out, Content{
			Role:  RoleUser,
			Parts: []Part{TextPart{Text: text, Metadata: map[string]any{"name": m.Author}}},
		})
	}
	return out
}

// String renders the transcript as plain text, one message per line.
func (t Transcript) String() string {
	var b strings.Builder
	for _, m := range t.messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Author, m.Content)
	}
	return b.String()
}

// Finish is the RoutingDecision.Next value that ends a run.
const Finish = "FINISH"

// RoutingDecision is the structured output of one supervisor turn.
type RoutingDecision struct {
	Reasoning    string `json:"reasoning"`
	Next         string `json:"next"`
	Instructions string `json:"instructions"`
}

// IsFinish reports whether the decision terminates the run.
func (d RoutingDecision) IsFinish() bool { return d.Next == Finish }
