package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/sink"
	"github.com/hupe1980/teammesh/store"
	"github.com/hupe1980/teammesh/team"
)

// ErrRunNotFound is returned by Cancel for unknown or finished runs.
var ErrRunNotFound = errors.New("run not found")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits runs executing at the same time. Run blocks
	// while the limit is reached. Values <= 0 disable the limit.
	MaxConcurrentRuns int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// Store records every run. Defaults to an in-memory store.
	Store store.Store
	// Sinks receive the events of every run in addition to the caller.
	Sinks []core.EventSink
	// Logging services.
	Logger logging.Logger
}

// Runner coordinates asynchronous runs of one team. Public methods are safe
// for concurrent use.
type Runner struct {
	coordinator *team.Coordinator

	eventBufferSize int
	store           store.Store
	sinks           []core.EventSink
	logger          logging.Logger
	slots           chan struct{}

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// New constructs a Runner with optional overrides.
func New(coordinator *team.Coordinator, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		Store:             store.NewMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	r := &Runner{
		coordinator:     coordinator,
		eventBufferSize: opts.EventBufferSize,
		store:           opts.Store,
		sinks:           slices.Clone(opts.Sinks),
		logger:          logging.ForComponent(opts.Logger, "runner"),
		activeRuns:      make(map[string]context.CancelFunc),
	}
	if opts.MaxConcurrentRuns > 0 {
		r.slots = make(chan struct{}, opts.MaxConcurrentRuns)
	}
	return r
}

// Store returns the run ledger.
func (r *Runner) Store() store.Store { return r.store }

// Run starts an asynchronous run for request. The events channel is closed
// after the terminal run_ended event; the errors channel carries at most one
// error and is closed when the run is over. Budget exhaustion is reported by
// the terminal event's state, not as an error.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	request string,
) (string, <-chan core.Event, <-chan error, error) {
	if r.slots != nil {
		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			return "", nil, nil, fmt.Errorf("waiting for a run slot: %w", ctx.Err())
		}
	}

	runID := core.NewID()
	events := sink.NewChannelSink(r.eventBufferSize)
	errorsCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	targets := sink.MultiSink{r.forward(ctx, events)}
	if r.store != nil {
		targets = append(targets, r.store)
	}
	targets = append(targets, r.sinks...)

	r.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			if r.slots != nil {
				<-r.slots
			}
			events.Close()
			close(errorsCh)
			r.wg.Done()
		}()

		res, err := r.coordinator.Run(ctx, request, func(o *team.RunOptions) {
			o.RunID = runID
			o.SessionID = sessionID
			o.Sink = targets
		})
		if err != nil {
			errorsCh <- fmt.Errorf("run %s failed: %w", runID, err)
			return
		}
		r.logger.Debug("runner.run.completed", "run_id", runID, "session_id", sessionID, "state", string(res.State))
	}()

	return runID, events.Events(), errorsCh, nil
}

// forward delivers events to the caller's channel. Once the run is cancelled
// events are delivered only if the buffer has room, so an abandoned channel
// cannot block the run.
func (r *Runner) forward(runCtx context.Context, events *sink.ChannelSink) core.EventSink {
	return sink.FuncSink(func(_ context.Context, ev core.Event) error {
		if runCtx.Err() != nil {
			if !events.TryPublish(ev) {
				return sink.ErrDropped
			}
			return nil
		}
		return events.Publish(runCtx, ev)
	})
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the IDs of runs that have not ended.
func (r *Runner) ActiveRuns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Shutdown cancels every active run and waits for them to end or for ctx to
// be done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.activeRuns {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
