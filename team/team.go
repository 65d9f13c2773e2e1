package team

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
)

// Actor is the worker side of a team: given the transcript and the
// supervisor's instructions it produces one message authored under its name.
type Actor interface {
	Name() string
	Act(ctx context.Context, transcript core.Transcript, instructions string) (core.Message, error)
}

// Router is the supervisor side of a team.
type Router interface {
	Name() string
	Roster() []string
	StepBudget() int
	Decide(ctx context.Context, transcript core.Transcript) (core.RoutingDecision, error)
}

// Summarizer is implemented by routers that can summarize a finished run.
type Summarizer interface {
	SummarizeEnabled() bool
	Summarize(ctx context.Context, transcript core.Transcript) (string, error)
}

type validator interface{ Validate() error }

type warner interface{ Warnings() []string }

// Options configures a Coordinator.
type Options struct {
	// StepBudget overrides the router's step budget when > 0.
	StepBudget int
	// Sink receives run events. Publishing failures are logged only.
	Sink core.EventSink
	// Moderators check the initiating request before the transcript is
	// seeded.
	Moderators []Moderator
	Logger     logging.Logger
}

// RunOptions configures a single run.
type RunOptions struct {
	// RunID identifies the run; a new ID is generated when empty.
	RunID string
	// SessionID keys emitted events; it may be empty.
	SessionID string
	// Sink receives this run's events in addition to the coordinator's sink.
	Sink core.EventSink
}

// Coordinator runs a team. It holds configuration only and is safe for
// concurrent use.
type Coordinator struct {
	router     Router
	actors     map[string]Actor
	roster     []string
	stepBudget int
	sink       core.EventSink
	moderators []Moderator
	logger     logging.Logger
	warnings   []string
}

// New validates the team wiring and returns a Coordinator. Every roster name
// must be served by exactly one actor; a mismatch is a *core.ConfigError.
func New(router Router, actors []Actor, optFns ...func(o *Options)) (*Coordinator, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if router == nil {
		return nil, &core.ConfigError{Component: "team", Reason: "supervisor is required"}
	}
	if v, ok := router.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	c := &Coordinator{
		router:     router,
		actors:     make(map[string]Actor, len(actors)),
		roster:     router.Roster(),
		stepBudget: router.StepBudget(),
		sink:       opts.Sink,
		moderators: slices.Clone(opts.Moderators),
		logger:     logging.ForComponent(opts.Logger, "coordinator"),
	}
	if opts.StepBudget > 0 {
		c.stepBudget = opts.StepBudget
	}
	if c.stepBudget <= 0 {
		return nil, &core.ConfigError{Component: router.Name(), Reason: "step budget must be positive"}
	}
	if len(c.roster) == 0 {
		return nil, &core.ConfigError{Component: router.Name(), Reason: "roster is empty"}
	}

	for _, a := range actors {
		if a == nil {
			return nil, &core.ConfigError{Component: "team", Reason: "nil worker"}
		}
		if v, ok := a.(validator); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		if _, dup := c.actors[a.Name()]; dup {
			return nil, &core.ConfigError{Component: "team", Reason: fmt.Sprintf("duplicate worker %q", a.Name())}
		}
		c.actors[a.Name()] = a
	}

	for _, name := range c.roster {
		if _, ok := c.actors[name]; !ok {
			return nil, &core.ConfigError{
				Component: router.Name(),
				Reason:    fmt.Sprintf("roster member %q is not registered as a worker", name),
			}
		}
	}

	if w, ok := router.(warner); ok {
		c.warnings = append(c.warnings, w.Warnings()...)
	}
	for _, a := range actors {
		if !slices.Contains(c.roster, a.Name()) {
			msg := fmt.Sprintf("worker %s is not in the roster of %s and will never be routed to", a.Name(), router.Name())
			c.warnings = append(c.warnings, msg)
			c.logger.Warn("team.worker.unreachable", "worker", a.Name(), "supervisor", router.Name())
		}
	}

	return c, nil
}

// Roster returns the worker names of the team.
func (c *Coordinator) Roster() []string { return slices.Clone(c.roster) }

// StepBudget returns the maximum number of worker turns per run.
func (c *Coordinator) StepBudget() int { return c.stepBudget }

// Warnings returns non-fatal findings collected while building the team.
func (c *Coordinator) Warnings() []string { return slices.Clone(c.warnings) }
