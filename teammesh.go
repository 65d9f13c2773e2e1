// Package teammesh provides a high-level façade over the team coordinator
// and the asynchronous runner. Most applications interact with this package
// by:
//  1. Building a supervisor and its workers (see package agent)
//  2. Creating a TeamMesh via New() (optionally overriding the in-memory
//     run ledger, event sinks and logger)
//  3. Invoking the team asynchronously (Invoke) or synchronously (InvokeSync,
//     Run)
//
// Teams can also be described in YAML and built with package config.
package teammesh

import (
	"context"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/runner"
	"github.com/hupe1980/teammesh/store"
	"github.com/hupe1980/teammesh/team"
)

// Options configures the TeamMesh instance.
type Options struct {
	// StepBudget overrides the supervisor's step budget when > 0.
	StepBudget int

	// MaxConcurrentRuns limits the number of runs that can execute
	// simultaneously. Invoke blocks while the limit is reached. Set to 0 for
	// unlimited.
	MaxConcurrentRuns int

	// EventBufferSize sets the channel buffer size of Invoke's event stream.
	EventBufferSize int

	// Store records every invoked run (defaults to an in-memory store).
	Store store.Store

	// Sinks receive the events of every invoked run.
	Sinks []core.EventSink

	// Moderators check each request before the run starts.
	Moderators []team.Moderator

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TeamMesh is the high-level façade aggregating a coordinator and its runner.
type TeamMesh struct {
	coordinator *team.Coordinator
	runner      *runner.Runner
}

// New creates a TeamMesh for the given supervisor and workers. Wiring
// problems are reported as *core.ConfigError.
func New(supervisor team.Router, workers []team.Actor, optFns ...func(o *Options)) (*TeamMesh, error) {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		Store:             store.NewMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	c, err := team.New(supervisor, workers, func(o *team.Options) {
		o.StepBudget = opts.StepBudget
		o.Moderators = opts.Moderators
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	r := runner.New(c, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.EventBufferSize = opts.EventBufferSize
		o.Store = opts.Store
		o.Sinks = opts.Sinks
		o.Logger = opts.Logger
	})

	return &TeamMesh{coordinator: c, runner: r}, nil
}

// Coordinator returns the underlying coordinator.
func (m *TeamMesh) Coordinator() *team.Coordinator { return m.coordinator }

// Store returns the run ledger.
func (m *TeamMesh) Store() store.Store { return m.runner.Store() }

// Warnings returns non-fatal configuration findings.
func (m *TeamMesh) Warnings() []string { return m.coordinator.Warnings() }

// Run executes one run synchronously and returns its result. It bypasses the
// runner: the run is neither recorded in the store nor counted against
// MaxConcurrentRuns.
func (m *TeamMesh) Run(ctx context.Context, request string, optFns ...func(o *team.RunOptions)) (*team.Result, error) {
	return m.coordinator.Run(ctx, request, optFns...)
}

// Invoke starts an asynchronous run returning event & error channels.
func (m *TeamMesh) Invoke(
	ctx context.Context,
	sessionID string,
	request string,
) (string, <-chan core.Event, <-chan error, error) {
	return m.runner.Run(ctx, sessionID, request)
}

// InvokeSync is a synchronous helper that drains the async channels,
// accumulates events and returns the run ID.
func (m *TeamMesh) InvokeSync(
	ctx context.Context,
	sessionID string,
	request string,
) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := m.runner.Run(ctx, sessionID, request)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return events collected so far
			return runID, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				// The error channel is closed right after the events channel.
				return runID, events, <-errorsCh
			}
			events = append(events, event)
		}
	}
}

// Cancel cancels an invoked run by ID.
func (m *TeamMesh) Cancel(runID string) error { return m.runner.Cancel(runID) }

// Shutdown cancels all invoked runs and waits for them to end.
func (m *TeamMesh) Shutdown(ctx context.Context) error { return m.runner.Shutdown(ctx) }
