package team

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
)

// Run executes one run for request. The returned Result is never nil; on
// error it reports StateFailed and everything produced before the failure.
func (c *Coordinator) Run(ctx context.Context, request string, optFns ...func(o *RunOptions)) (*Result, error) {
	var ro RunOptions
	for _, fn := range optFns {
		fn(&ro)
	}
	if ro.RunID == "" {
		ro.RunID = core.NewID()
	}

	r := &run{
		c:      c,
		opts:   ro,
		res:    &Result{RunID: ro.RunID, SessionID: ro.SessionID, State: StateRunning},
		limit:  core.NewStepLimiter(c.stepBudget),
		start:  time.Now(),
		rs:     &runState{},
		router: c.router.Name(),
		logger: logging.ForRun(c.logger, ro.SessionID, ro.RunID),
	}

	return r.execute(ctx, request)
}

// run carries the per-call state of Coordinator.Run.
type run struct {
	c      *Coordinator
	opts   RunOptions
	res    *Result
	rs     *runState
	limit  *core.StepLimiter
	start  time.Time
	router string
	logger logging.Logger
}

func (r *run) execute(ctx context.Context, request string) (*Result, error) {
	c := r.c

	r.logger.Info("team.run.started", "supervisor", r.router, "step_budget", c.stepBudget)

	input, err := moderate(ctx, c.moderators, request)
	if err != nil {
		return r.fail(ctx, err)
	}

	seed := core.NewUserMessage(input)
	r.rs.transcript = core.NewTranscript(seed)
	r.emit(ctx, core.NewRunStartedEvent(r.res.RunID, r.res.SessionID, seed))

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, err)
		}

		stepCtx := core.WithRunInfo(ctx, core.RunInfo{
			RunID:     r.res.RunID,
			SessionID: r.res.SessionID,
			Step:      r.rs.stepsTaken + 1,
			Roster:    c.roster,
		})

		decision, err := c.router.Decide(stepCtx, r.rs.transcript)
		if err != nil {
			return r.fail(ctx, fmt.Errorf("step %d: %w", r.rs.stepsTaken+1, err))
		}

		if decision.IsFinish() {
			r.accept(ctx, decision)
			return r.finish(ctx)
		}

		if !slices.Contains(c.roster, decision.Next) {
			return r.fail(ctx, &core.RoutingProtocolError{
				Supervisor: r.router,
				Reason:     fmt.Sprintf("next %q is not FINISH or a roster member", decision.Next),
				Raw:        decision.Next,
			})
		}

		r.rs.stepsTaken++
		if !r.limit.Take() {
			r.accept(ctx, decision)
			return r.end(ctx, StateBudgetExceeded, nil)
		}

		// New guarantees every roster member has an actor.
		actor := c.actors[decision.Next]
		idx := r.accept(ctx, decision)

		r.logger.Debug("team.decision", "step", r.rs.stepsTaken, "next", decision.Next)

		turnStart := time.Now()
		msg, err := actor.Act(stepCtx, r.rs.transcript, decision.Instructions)
		if err != nil {
			return r.fail(ctx, fmt.Errorf("step %d: %w", r.rs.stepsTaken, err))
		}
		if err := ctx.Err(); err != nil {
			// The turn completed after cancellation; its output is discarded.
			return r.fail(ctx, err)
		}

		msg = normalize(msg, actor.Name())
		r.rs.transcript = r.rs.transcript.Append(msg)
		r.rs.steps[idx].Message = &msg

		r.logger.Info("team.turn.completed",
			"step", r.rs.stepsTaken,
			"worker", actor.Name(),
			"tool_calls", len(msg.ToolUses),
			"duration_ms", time.Since(turnStart).Milliseconds(),
		)
		r.emit(ctx, core.NewMessageEvent(r.res.RunID, r.res.SessionID, r.rs.stepsTaken, msg))
	}
}

// accept records an accepted decision and returns its index in the steps.
func (r *run) accept(ctx context.Context, d core.RoutingDecision) int {
	n := len(r.rs.steps) + 1
	r.rs.steps = append(r.rs.steps, Step{Number: n, Decision: d})
	r.emit(ctx, core.NewDecisionEvent(r.res.RunID, r.res.SessionID, r.router, n, d))
	return len(r.rs.steps) - 1
}

func (r *run) finish(ctx context.Context) (*Result, error) {
	if s, ok := r.c.router.(Summarizer); ok && s.SummarizeEnabled() {
		stepCtx := core.WithRunInfo(ctx, core.RunInfo{
			RunID:     r.res.RunID,
			SessionID: r.res.SessionID,
			Step:      r.rs.stepsTaken,
			Roster:    r.c.roster,
		})
		summary, err := s.Summarize(stepCtx, r.rs.transcript)
		if err != nil {
			return r.fail(ctx, fmt.Errorf("summarize: %w", err))
		}
		r.res.Summary = summary
	}
	return r.end(ctx, StateFinished, nil)
}

func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	return r.end(ctx, StateFailed, err)
}

func (r *run) end(ctx context.Context, state State, err error) (*Result, error) {
	r.res.State = state
	res := r.rs.result(r.res)

	dur := time.Since(r.start)
	if err != nil {
		r.logger.Error("team.run.failed", "state", string(state), "steps", r.rs.stepsTaken, "duration_ms", dur.Milliseconds(), "error", err.Error())
	} else {
		r.logger.Info("team.run.completed", "state", string(state), "steps", r.rs.stepsTaken, "turns", res.Turns, "duration_ms", dur.Milliseconds())
	}

	// The terminal event must be delivered even when ctx was cancelled.
	r.emit(context.WithoutCancel(ctx), core.NewRunEndedEvent(res.RunID, res.SessionID, string(state), res.Turns, err))

	return res, err
}

func (r *run) emit(ctx context.Context, ev core.Event) {
	for _, s := range []core.EventSink{r.c.sink, r.opts.Sink} {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			r.logger.Warn("team.sink.failed", "event", string(ev.Type), "error", err.Error())
		}
	}
}

// normalize enforces the message invariants the coordinator relies on: the
// author is the acting worker and the message has an ID and timestamp.
func normalize(m core.Message, author string) core.Message {
	m.Author = author
	if m.ID == "" {
		m.ID = core.NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return m
}
