// Package agent contains the two unit kinds of a team: the Worker, which
// turns a transcript plus supervisor instructions into one authored message,
// and the Supervisor, which turns a transcript into a routing decision.
//
// Both are configuration-only. They hold no run scoped state, so one
// instance may serve any number of concurrent runs. The coordinator passes
// run identifiers and the roster through the context (core.RunInfo).
//
// Routing is a forced call of the "route" function whose schema enumerates
// the roster plus FINISH. The decoded decision is validated against the
// roster again before it is returned, since not every provider enforces the
// enumeration.
package agent
