// Package team implements the coordinator that runs a supervisor and its
// workers as one team.
//
// A run alternates strictly between one supervisor decision and at most one
// worker turn:
//
//	RUNNING --decide--> FINISH            --> FINISHED
//	        --decide--> worker, budget ok --> act --> append --> RUNNING
//	        --decide--> worker, budget hit --> BUDGET_EXCEEDED
//	        --error / cancellation--------> FAILED
//
// The transcript of a run is owned by the coordinator and is the only state
// shared between the units of a team. Units receive it by value and return
// their output; the coordinator appends. Supervisor and worker instances hold
// no run state, so one Coordinator may execute many runs concurrently.
//
// Budget exhaustion is reported through Result.State and is not an error.
// Routing protocol violations, worker failures, moderation rejections and
// cancellation end the run in StateFailed; Run then returns the partial
// Result together with the error.
package team
