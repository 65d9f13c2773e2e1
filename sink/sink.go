package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

var (
	// ErrClosed is returned when publishing to a closed sink.
	ErrClosed = errors.New("sink closed")

	// ErrDropped is returned when an event could not be delivered without
	// blocking.
	ErrDropped = errors.New("event dropped")
)

// FuncSink adapts a function to core.EventSink.
type FuncSink func(ctx context.Context, ev core.Event) error

// Publish implements core.EventSink.
func (f FuncSink) Publish(ctx context.Context, ev core.Event) error { return f(ctx, ev) }

// ChannelSink delivers events on a buffered channel. Publish blocks while the
// buffer is full until the event is received or ctx is done.
type ChannelSink struct {
	ch     chan core.Event
	mu     sync.RWMutex
	closed bool
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan core.Event, buffer)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan core.Event { return s.ch }

// Publish implements core.EventSink.
func (s *ChannelSink) Publish(ctx context.Context, ev core.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish delivers ev only if the buffer has room. It reports whether the
// event was delivered.
func (s *ChannelSink) TryPublish(ev core.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Close closes the events channel. It waits for in-flight publishes and is
// idempotent.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// MultiSink publishes every event to all of its sinks, in order. Nil sinks
// are skipped.
type MultiSink []core.EventSink

// Publish implements core.EventSink. Every sink is attempted; the errors are
// joined.
func (m MultiSink) Publish(ctx context.Context, ev core.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
