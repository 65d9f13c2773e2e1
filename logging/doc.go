// Package logging provides a minimal logging interface and adapters for teammesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that supervisors, workers and the coordinator use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - TeamLogger with run scoped attributes
//   - ForRun and ForComponent scoping any Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	coordinator, err := team.New(supervisor, workers, team.WithLogger(logger))
package logging
