package testutil

import (
	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

// RouteArgs renders the arguments of a routing call.
func RouteArgs(next, instructions string) string {
	s, err := sonic.MarshalString(map[string]string{
		"reasoning":    "routing to " + next,
		"next":         next,
		"instructions": instructions,
	})
	if err != nil {
		panic(err)
	}
	return s
}

// RoutingModel returns a mock model answering each call with a routing call
// for the next entry of nexts.
func RoutingModel(nexts ...string) *model.MockModel {
	m := model.NewMockModel("supervisor-mock")
	for _, n := range nexts {
		m.AddCall("route", RouteArgs(n, "handle: "+n))
	}
	return m
}

// FinishDecision is a routing decision ending the run.
func FinishDecision() core.RoutingDecision {
	return core.RoutingDecision{Reasoning: "done", Next: core.Finish}
}

// RouteDecision is a routing decision naming worker.
func RouteDecision(worker string) core.RoutingDecision {
	return core.RoutingDecision{Reasoning: "next is " + worker, Next: worker, Instructions: "handle: " + worker}
}
