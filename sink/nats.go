package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the first subject token used by NATSSink.
const DefaultSubjectPrefix = "teammesh"

// DefaultFlushTimeout bounds a flush when the publish context has no deadline.
const DefaultFlushTimeout = 2 * time.Second

// NATSOptions configures a NATSSink.
type NATSOptions struct {
	SubjectPrefix string
	// Flush waits for the server to acknowledge the terminal event of a run.
	Flush        bool
	FlushTimeout time.Duration
	Logger       logging.Logger
}

// NATSSink publishes run events as JSON to
// "<prefix>.session.<session id>.events". Events of runs without a session
// are keyed by run ID instead.
type NATSSink struct {
	conn         *nats.Conn
	prefix       string
	flush        bool
	flushTimeout time.Duration
	logger       logging.Logger
}

// NewNATSSink creates a sink publishing on conn. The connection is owned by
// the caller.
func NewNATSSink(conn *nats.Conn, optFns ...func(o *NATSOptions)) *NATSSink {
	opts := NATSOptions{
		SubjectPrefix: DefaultSubjectPrefix,
		FlushTimeout:  DefaultFlushTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}

	return &NATSSink{
		conn:         conn,
		prefix:       opts.SubjectPrefix,
		flush:        opts.Flush,
		flushTimeout: opts.FlushTimeout,
		logger:       logging.ForComponent(opts.Logger, "sink.nats"),
	}
}

// Subject returns the subject events of sessionID are published on.
func (s *NATSSink) Subject(sessionID string) string {
	return SessionSubject(s.prefix, sessionID)
}

// SessionSubject builds the events subject of sessionID under prefix.
// Characters that are not valid in a subject token are replaced by "_".
func SessionSubject(prefix, sessionID string) string {
	return fmt.Sprintf("%s.session.%s.events", prefix, subjectToken(sessionID))
}

// Publish implements core.EventSink.
func (s *NATSSink) Publish(ctx context.Context, ev core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := ev.SessionID
	if key == "" {
		key = ev.RunID
	}

	data, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := s.Subject(key)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if s.flush && ev.IsTerminal() {
		if err := s.flushEvents(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", subject, err)
		}
	}

	s.logger.Debug("sink.nats.published", "subject", subject, "event", string(ev.Type), "run_id", ev.RunID)
	return nil
}

// flushEvents waits for the server to process everything published so far.
// FlushWithContext requires a deadline, and the terminal event is published
// on a context without one.
func (s *NATSSink) flushEvents(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.flushTimeout)
		defer cancel()
	}
	return s.conn.FlushWithContext(ctx)
}

// Subscribe delivers the events of sessionID to handler. Messages that do not
// decode as events are dropped.
func Subscribe(conn *nats.Conn, prefix, sessionID string, handler func(core.Event)) (*nats.Subscription, error) {
	return conn.Subscribe(SessionSubject(prefix, sessionID), func(msg *nats.Msg) {
		var ev core.Event
		if err := sonic.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
