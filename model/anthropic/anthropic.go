// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate adapts the Anthropic Messages API (with tool use) into
// model.Response events. Streaming requests are served with a single final
// response since supervisors and workers only consume the final chunk.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var parts []core.Part

		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				textBlock := block.AsText()
				if textBlock.Text != "" {
					parts = append(parts, core.TextPart{Text: textBlock.Text})
				}
			case "tool_use":
				toolBlock := block.AsToolUse()
				args := ""
				if toolBlock.Input != nil {
					if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
						args = string(argsBytes)
					}
				}
				parts = append(parts, core.FunctionCallPart{
					FunctionCall: core.FunctionCall{
						ID:        toolBlock.ID,
						Name:      toolBlock.Name,
						Arguments: args,
					},
				})
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		in, outTokens := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)

		out <- model.Response{
			ID:           resp.ID,
			Partial:      false,
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     in,
				CompletionTokens: outTokens,
				TotalTokens:      in + outTokens,
			},
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Contents),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if system := extractSystem(req); len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
		if tc := buildToolChoice(req.ToolChoice); tc != nil {
			params.ToolChoice = *tc
		}
	}

	return params
}

// buildMessages converts contents to Anthropic messages. Consecutive text
// turns of the same role are merged, and tool results are sent in a user turn
// directly after the assistant turn that requested them.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	toolResponses := make(map[string]core.FunctionResponse)
	for _, c := range contents {
		for _, fr := range c.FunctionResponses() {
			if fr.ID != "" {
				toolResponses[fr.ID] = fr
			}
		}
	}

	var messages []anthropic.MessageParam

	appendUser := func(blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == anthropic.MessageParamRoleUser {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}

	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem, core.RoleTool:
			continue
		case core.RoleAssistant:
			content, results := buildAssistantContent(c.Parts, toolResponses)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
			appendUser(results)
		default:
			appendUser(buildUserContent(c.Parts))
		}
	}

	return messages
}

// extractSystem merges the request instructions and any system contents.
func extractSystem(req model.Request) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	if strings.TrimSpace(req.Instructions) != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, c := range req.Contents {
		if c.Role != core.RoleSystem {
			continue
		}
		if text := c.Text(); text != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return systemBlocks
}

func buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			content = append(content, anthropic.NewTextBlock(tp.Text))
		}
	}

	return content
}

// buildAssistantContent returns the assistant blocks and the tool result
// blocks answering its tool_use blocks.
func buildAssistantContent(
	parts []core.Part,
	toolResponses map[string]core.FunctionResponse,
) ([]anthropic.ContentBlockParamUnion, []anthropic.ContentBlockParamUnion) {
	var content, results []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			var input any = map[string]any{}
			if part.FunctionCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
					input = part.FunctionCall.Arguments
				}
			}

			content = append(content, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				input,
				part.FunctionCall.Name,
			))

			if fr, ok := toolResponses[part.FunctionCall.ID]; ok {
				text, isErr := responseText(fr)
				results = append(results, anthropic.NewToolResultBlock(fr.ID, text, isErr))
				delete(toolResponses, fr.ID)
			}
		}
	}

	return content, results
}

func responseText(fr core.FunctionResponse) (string, bool) {
	if fr.Error != "" {
		return fr.Error, true
	}
	if s, ok := fr.Response.(string); ok {
		return s, false
	}
	b, err := json.Marshal(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response), false
	}
	return string(b), false
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredFields(params["required"])
		}

		u := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if u.OfTool != nil && tool.Function.Description != "" {
			u.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		anthropicTools[i] = u
	}

	return anthropicTools
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func buildToolChoice(tc *model.ToolChoice) *anthropic.ToolChoiceUnionParam {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case model.ToolChoiceFunction:
		return &anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	case model.ToolChoiceRequired:
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
