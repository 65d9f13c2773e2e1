// Package core provides the foundational domain types shared by every layer
// of TeamMesh. It defines:
//
//   - Message and Transcript (the append-only working memory of one team run)
//   - RoutingDecision (the structured output of one supervisor turn)
//   - Content / Part (role based model input shared by model adapters)
//   - Event (notifications emitted while a run progresses)
//   - ToolContext (scoped execution surface handed to tools)
//   - The error taxonomy surfaced to callers of a run
//
// The package holds no orchestration logic. Supervisor and worker units live
// in package agent, the control loop in package team.
package core
