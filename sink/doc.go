// Package sink provides core.EventSink implementations for forwarding run
// events to observers:
//
//   - ChannelSink delivers events on a Go channel
//   - MultiSink fans an event out to several sinks
//   - NATSSink publishes events as JSON on a per-session NATS subject
//   - FuncSink adapts a function
//
// Sinks observe runs; they never influence them.
package sink
