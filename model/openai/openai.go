// Package openai adapts the OpenAI Chat Completions API to model.Model.
//
// Transcript turns are sent as user messages carrying the author's name, so
// the provider can tell team members apart. A forced tool choice from the
// request becomes a named tool choice, which is how a supervisor's routing
// call is constrained.
package openai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Model wraps the OpenAI Chat Completions API behind model.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a model with its own client. APIKey and BaseURL fall back
// to the SDK defaults (OPENAI_API_KEY, OPENAI_BASE_URL) when empty.
func NewModel(optFns ...func(o *Options)) *Model {
	var probe Options
	for _, fn := range optFns {
		fn(&probe)
	}

	var clientOpts []option.RequestOption
	if probe.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(probe.APIKey))
	}
	if probe.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(probe.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a model sharing an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate sends req and reports the completion on the response channel.
// Streaming requests also deliver partial responses before the final one.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		params := m.params(req)
		var err error
		if req.Stream {
			err = m.stream(ctx, params, out)
		} else {
			err = m.complete(ctx, params, out)
		}
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

// Info returns metadata describing this model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

func (m *Model) params(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if req.Stream {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	}
	if len(req.Tools) == 0 {
		return params
	}

	params.Tools = make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Function.Name,
				Description: openai.String(def.Function.Description),
				Parameters:  def.Function.Parameters,
			},
		})
	}
	if tc := buildToolChoice(req.ToolChoice); tc != nil {
		params.ToolChoice = *tc
	}
	return params
}

// buildMessages converts the request contents into chat messages. Tool
// results are placed right after the assistant message that requested them;
// results whose call is not in the request trail the conversation.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	pending := map[string]string{}
	var order []string
	for _, c := range req.Contents {
		if c.Role != core.RoleTool {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, seen := pending[fr.FunctionResponse.ID]; !seen {
				pending[fr.FunctionResponse.ID] = responseText(fr.FunctionResponse)
				order = append(order, fr.FunctionResponse.ID)
			}
		}
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(req.Instructions) != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		text, name := flatten(c)
		switch c.Role {
		case core.RoleTool:
		case core.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(text))
		case core.RoleAssistant:
			calls := toolCalls(c)
			if len(calls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(text))
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
			for _, call := range calls {
				if out, ok := pending[call.ID]; ok {
					msgs = append(msgs, openai.ToolMessage(out, call.ID))
					delete(pending, call.ID)
				}
			}
		default:
			if c.Role != core.RoleUser && text == "" {
				continue
			}
			msgs = append(msgs, userMessage(text, name))
		}
	}

	for _, id := range order {
		if out, ok := pending[id]; ok {
			msgs = append(msgs, openai.ToolMessage(out, id))
		}
	}
	return msgs
}

// invalidName matches characters the API rejects in a participant name.
var invalidName = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func userMessage(text, name string) openai.ChatCompletionMessageParamUnion {
	u := &openai.ChatCompletionUserMessageParam{}
	u.Content.OfString = openai.String(text)
	if name = invalidName.ReplaceAllString(name, "_"); name != "" {
		u.Name = openai.String(name)
	}
	return openai.ChatCompletionMessageParamUnion{OfUser: u}
}

// flatten joins the text parts of c and returns the author name attached to
// them, if any.
func flatten(c core.Content) (string, string) {
	var (
		b    strings.Builder
		name string
	)
	for _, p := range c.Parts {
		tp, ok := p.(core.TextPart)
		if !ok {
			continue
		}
		b.WriteString(tp.Text)
		if n, ok := tp.Metadata["name"].(string); ok && name == "" {
			name = n
		}
	}
	return b.String(), name
}

func toolCalls(c core.Content) []openai.ChatCompletionMessageToolCallParam {
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok || fc.FunctionCall.ID == "" {
			continue
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID: fc.FunctionCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.FunctionCall.Name,
				Arguments: fc.FunctionCall.Arguments,
			},
		})
	}
	return calls
}

// responseText renders a function response for a tool message. Failures are
// reported to the model as observations.
func responseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "error: " + fr.Error
	}
	if s, ok := fr.Response.(string); ok {
		return s
	}
	text, err := sonic.MarshalString(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response)
	}
	return text
}

// buildToolChoice maps the normalized tool choice to the SDK union.
func buildToolChoice(tc *model.ToolChoice) *openai.ChatCompletionToolChoiceOptionUnionParam {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case model.ToolChoiceFunction:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: tc.Name},
			},
		}
	case model.ToolChoiceRequired:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	default:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

func (m *Model) complete(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("openai: no choices returned")
	}

	choice := resp.Choices[0]
	var parts []core.Part
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	out <- model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: choice.FinishReason,
		Usage:        usage(resp.Usage),
	}
	return nil
}

// pendingCall accumulates the streamed fragments of one tool call.
type pendingCall struct {
	index int64
	call  core.FunctionCall
}

// callBuffer keeps streamed tool calls in the order the provider indexed
// them, so the first routing call stays first.
type callBuffer []*pendingCall

func (b *callBuffer) add(index int64, id, name, args string) core.FunctionCall {
	i := slices.IndexFunc(*b, func(p *pendingCall) bool { return p.index == index })
	if i < 0 {
		*b = append(*b, &pendingCall{index: index})
		slices.SortFunc(*b, func(x, y *pendingCall) int { return int(x.index - y.index) })
		i = slices.IndexFunc(*b, func(p *pendingCall) bool { return p.index == index })
	}
	p := (*b)[i]
	if id != "" {
		p.call.ID = id
	}
	if name != "" {
		p.call.Name = name
	}
	p.call.Arguments += args
	return p.call
}

func (b callBuffer) parts() []core.Part {
	parts := make([]core.Part, 0, len(b))
	for _, p := range b {
		parts = append(parts, core.FunctionCallPart{FunctionCall: p.call})
	}
	return parts
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	s := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer s.Close()

	var (
		text   strings.Builder
		calls  callBuffer
		id     string
		finish string
		used   *model.TokenUsage
	)
	for s.Next() {
		chunk := s.Current()
		id = chunk.ID
		if chunk.Usage.TotalTokens > 0 {
			used = usage(chunk.Usage)
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				out <- partial(core.TextPart{Text: ch.Delta.Content})
			}
			for _, tc := range ch.Delta.ToolCalls {
				call := calls.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
				out <- partial(core.FunctionCallPart{FunctionCall: call})
			}
			if ch.FinishReason != "" {
				finish = ch.FinishReason
			}
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}

	var parts []core.Part
	if text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: text.String()})
	}
	parts = append(parts, calls.parts()...)
	out <- model.Response{
		ID:           id,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        used,
	}
	return nil
}

func partial(p core.Part) model.Response {
	return model.Response{
		Partial: true,
		Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{p}},
	}
}

func usage(u openai.CompletionUsage) *model.TokenUsage {
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}
