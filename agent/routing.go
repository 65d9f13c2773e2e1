package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/tool"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RouteFunctionName is the name of the structured routing call.
const RouteFunctionName = "route"

// RoutingOptions returns the values accepted for RoutingDecision.Next:
// FINISH followed by the roster in order.
func RoutingOptions(roster []string) []string {
	return append([]string{core.Finish}, roster...)
}

// RoutingSchema builds the JSON schema of the routing call. The next field is
// an enumeration of RoutingOptions(roster).
func RoutingSchema(roster []string) *jsonschema.Schema {
	options := RoutingOptions(roster)
	enum := make([]any, len(options))
	for i, o := range options {
		enum[i] = o
	}

	sc := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
		Required:   []string{"reasoning", "next", "instructions"},
	}
	sc.Properties.Set("reasoning", &jsonschema.Schema{
		Type:        "string",
		Description: "Why the next worker was chosen, or why the task is complete.",
	})
	sc.Properties.Set("next", &jsonschema.Schema{
		Type:        "string",
		Description: "The worker to act next, or FINISH when the task is complete.",
		Enum:        enum,
	})
	sc.Properties.Set("instructions", &jsonschema.Schema{
		Type:        "string",
		Description: "Specific instructions for the selected worker's sub-task.",
	})
	return sc
}

// RoutingTool returns the routing function declaration for a model request.
func RoutingTool(roster []string) (model.ToolDefinition, error) {
	params, err := tool.SchemaMap(RoutingSchema(roster))
	if err != nil {
		return model.ToolDefinition{}, err
	}
	return model.NewFunctionTool(
		RouteFunctionName,
		"Select the next worker to act, or FINISH.",
		params,
	), nil
}

type routingArgs struct {
	Reasoning    string  `json:"reasoning"`
	Next         *string `json:"next"`
	Instructions string  `json:"instructions"`
}

// DecodeRouting parses the arguments of a routing call made by supervisor.
// next must match one of RoutingOptions(roster) exactly; any other payload is
// a *core.RoutingProtocolError carrying the raw arguments.
func DecodeRouting(supervisor, args string, roster []string) (core.RoutingDecision, error) {
	protocolErr := func(reason string) error {
		return &core.RoutingProtocolError{Supervisor: supervisor, Reason: reason, Raw: args}
	}

	if strings.TrimSpace(args) == "" {
		return core.RoutingDecision{}, protocolErr("routing call has no arguments")
	}

	var ra routingArgs
	if err := sonic.UnmarshalString(args, &ra); err != nil {
		return core.RoutingDecision{}, protocolErr(fmt.Sprintf("malformed routing arguments: %v", err))
	}
	if ra.Next == nil || *ra.Next == "" {
		return core.RoutingDecision{}, protocolErr("routing call is missing next")
	}
	if !slices.Contains(RoutingOptions(roster), *ra.Next) {
		return core.RoutingDecision{}, protocolErr(fmt.Sprintf("next %q is not FINISH or a roster member", *ra.Next))
	}

	return core.RoutingDecision{
		Reasoning:    ra.Reasoning,
		Next:         *ra.Next,
		Instructions: ra.Instructions,
	}, nil
}
