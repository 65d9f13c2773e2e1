package core

import "context"

// RunInfo identifies the run a unit is currently serving. The coordinator
// attaches it to the context handed to supervisor and worker calls so that
// stateless units can correlate logs and tool calls without holding run
// scoped state themselves.
type RunInfo struct {
	RunID     string
	SessionID string
	Step      int
	Roster    []string // Worker names of the team serving the run
}

type runInfoKey struct{}

// WithRunInfo returns a copy of ctx carrying info.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom extracts the RunInfo stored in ctx. The boolean is false when
// ctx does not belong to a team run (e.g. a unit invoked directly in a test).
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
