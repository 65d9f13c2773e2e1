// Package runner is the asynchronous entry point for team runs.
//
// The Runner starts each run of a team.Coordinator in its own goroutine and
// hands the caller a run ID, a channel of run events and a channel carrying
// the terminal error, if any. Runs can be cancelled by ID; a cancelled run
// ends in the FAILED state and its terminal event is still delivered when the
// event buffer has room.
//
// # Responsibilities (abridged)
//   - Run lifecycle management (IDs, bounded concurrency, cancellation)
//   - Event streaming to the caller
//   - Run ledger recording through a store.Store
//   - Fan-out to additional sinks (NATS, custom)
//
// The synchronous helper lives in the teammesh façade.
package runner
