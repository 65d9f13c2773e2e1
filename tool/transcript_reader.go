package tool

import (
	"fmt"

	"github.com/hupe1980/teammesh/core"
)

// transcriptReaderTool lets a worker look up earlier team messages by author.
// It only reads the transcript handed to the worker.
type transcriptReaderTool struct{}

// NewTranscriptReaderTool constructs the read_transcript tool.
func NewTranscriptReaderTool() Tool { return &transcriptReaderTool{} }

func (t *transcriptReaderTool) Name() string { return "read_transcript" }

func (t *transcriptReaderTool) Description() string {
	return "Return earlier team messages, optionally filtered by author and limited to the most recent ones."
}

func (t *transcriptReaderTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"author": map[string]any{"type": "string", "description": "Only return messages written by this team member (or \"user\")"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of most recent messages to return"},
		},
	}
}

func (t *transcriptReaderTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	author, _ := args["author"].(string)

	limit := 0
	if raw, ok := args["limit"]; ok && raw != nil {
		f, ok := raw.(float64)
		if !ok {
			if i, isInt := raw.(int); isInt {
				f = float64(i)
			} else {
				return nil, fmt.Errorf("field 'limit' must be an integer")
			}
		}
		if f < 0 {
			return nil, fmt.Errorf("field 'limit' must not be negative")
		}
		limit = int(f)
	}

	var matched []map[string]any
	for _, m := range tc.Transcript().Messages() {
		if author != "" && m.Author != author {
			continue
		}
		matched = append(matched, map[string]any{"author": m.Author, "content": m.Content})
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	return map[string]any{"messages": matched, "count": len(matched)}, nil
}
