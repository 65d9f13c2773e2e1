package openai

import (
	"testing"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagesPrependsInstructions(t *testing.T) {
	req := model.Request{
		Instructions: "You are a supervisor.",
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "hi"),
			core.NewTextContent(core.RoleUser, "Researcher: found it"),
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
}

func TestBuildMessagesNamesAuthors(t *testing.T) {
	tr := core.NewTranscript(core.NewUserMessage("plan a trip"), core.NewMessage("Travel Agent", "booked"))
	msgs := buildMessages(model.Request{Contents: tr.Contents()})
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].OfUser)
	assert.Equal(t, "Travel_Agent", msgs[1].OfUser.Name.Value)
	assert.Equal(t, "Travel Agent: booked", msgs[1].OfUser.Content.OfString.Value)
}

func TestBuildMessagesAttachesToolResults(t *testing.T) {
	req := model.Request{
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "weather?"),
			{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "weather", Arguments: `{}`}}}},
			{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "weather", Error: "offline"}}}},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[1].OfAssistant)
	require.NotNil(t, msgs[2].OfTool)
	assert.Equal(t, "c1", msgs[2].OfTool.ToolCallID)
	assert.Equal(t, "error: offline", msgs[2].OfTool.Content.OfString.Value)
}

func TestCallBufferKeepsProviderOrder(t *testing.T) {
	var b callBuffer
	b.add(1, "c2", "second", `{"a"`)
	b.add(0, "c1", "route", `{"next":`)
	b.add(0, "", "", `"Writer"}`)
	b.add(1, "", "", `:1}`)

	parts := b.parts()
	require.Len(t, parts, 2)
	first := parts[0].(core.FunctionCallPart).FunctionCall
	assert.Equal(t, "route", first.Name)
	assert.Equal(t, `{"next":"Writer"}`, first.Arguments)
	assert.Equal(t, `{"a":1}`, parts[1].(core.FunctionCallPart).FunctionCall.Arguments)
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "plain", responseText(core.FunctionResponse{Response: "plain"}))
	assert.JSONEq(t, `{"a":1}`, responseText(core.FunctionResponse{Response: map[string]int{"a": 1}}))
}

func TestBuildToolChoice(t *testing.T) {
	assert.Nil(t, buildToolChoice(nil))

	forced := buildToolChoice(model.ForceFunction("route"))
	require.NotNil(t, forced)
	require.NotNil(t, forced.OfChatCompletionNamedToolChoice)
	assert.Equal(t, "route", forced.OfChatCompletionNamedToolChoice.Function.Name)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "gpt-4o"
		o.APIKey = "test"
	})
	info := m.Info()
	assert.Equal(t, "gpt-4o", info.Name)
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.SupportsTools)
}
