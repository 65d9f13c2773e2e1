package team

import (
	"context"
	"sync"

	"github.com/hupe1980/teammesh/agent"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []core.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) types() []core.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) last() core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

// funcModel answers every request with the content computed by fn. It keeps
// no state and can be shared by concurrent runs.
type funcModel func(req model.Request) core.Content

func (f funcModel) Generate(_ context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error)
	respCh <- model.Response{Content: f(req), FinishReason: "stop"}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (f funcModel) Info() model.Info { return model.Info{Name: "func", Provider: "test", SupportsTools: true} }

// workers creates one plain worker per name answering "<name> done".
func workers(names ...string) []Actor {
	out := make([]Actor, 0, len(names))
	for _, n := range names {
		llm := model.NewMockModel(n).SetFallback(n + " done")
		out = append(out, agent.NewWorker(n, llm))
	}
	return out
}
