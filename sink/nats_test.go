package sink

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/testutil"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	conn, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestSessionSubject(t *testing.T) {
	assert.Equal(t, "teammesh.session.abc.events", SessionSubject(DefaultSubjectPrefix, "abc"))
	assert.Equal(t, "teammesh.session.a_b_c.events", SessionSubject(DefaultSubjectPrefix, "a.b c"))
	assert.Equal(t, "x.session._.events", SessionSubject("x", ""))
}

func TestNATSSink_PublishSubscribe(t *testing.T) {
	conn := startServer(t)

	received := make(chan core.Event, 4)
	_, err := Subscribe(conn, DefaultSubjectPrefix, "session-1", func(ev core.Event) { received <- ev })
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	s := NewNATSSink(conn, func(o *NATSOptions) { o.Flush = true })
	assert.Equal(t, "teammesh.session.session-1.events", s.Subject("session-1"))

	decision := testutil.NewEventBuilder().Run("r1").Session("session-1").Decision(1, testutil.RouteDecision("Writer")).Build()
	ended := testutil.NewEventBuilder().Run("r1").Session("session-1").Ended("FINISHED", 1, "").Build()
	other := testutil.NewEventBuilder().Run("r2").Session("session-2").Ended("FAILED", 0, "boom").Build()

	for _, ev := range []core.Event{decision, other, ended} {
		require.NoError(t, s.Publish(context.Background(), ev))
	}

	var got []core.Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-received:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timeout waiting for events, got %d", len(got))
		}
	}

	assert.Equal(t, core.EventDecision, got[0].Type)
	require.NotNil(t, got[0].Decision)
	assert.Equal(t, "Writer", got[0].Decision.Next)
	assert.Equal(t, core.EventRunEnded, got[1].Type)
	assert.Equal(t, "FINISHED", got[1].State)

	select {
	case ev := <-received:
		t.Fatalf("received event of another session: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNATSSink_FlushesTerminalEventWithoutDeadline(t *testing.T) {
	conn := startServer(t)

	received := make(chan core.Event, 2)
	_, err := Subscribe(conn, DefaultSubjectPrefix, "session-1", func(ev core.Event) { received <- ev })
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	s := NewNATSSink(conn, func(o *NATSOptions) {
		o.Flush = true
		o.FlushTimeout = time.Second
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := context.WithoutCancel(cancelled)
	_, hasDeadline := ctx.Deadline()
	require.False(t, hasDeadline)

	msg := testutil.NewEventBuilder().Run("r1").Session("session-1").Message(1, "Writer", "draft").Build()
	ended := testutil.NewEventBuilder().Run("r1").Session("session-1").Ended("FAILED", 1, "context canceled").Build()
	require.NoError(t, s.Publish(ctx, msg))
	require.NoError(t, s.Publish(ctx, ended))

	for _, want := range []core.EventType{core.EventMessage, core.EventRunEnded} {
		select {
		case ev := <-received:
			assert.Equal(t, want, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestNATSSink_RunKeyWithoutSession(t *testing.T) {
	conn := startServer(t)

	received := make(chan core.Event, 1)
	_, err := Subscribe(conn, "custom", "run-9", func(ev core.Event) { received <- ev })
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	s := NewNATSSink(conn, func(o *NATSOptions) { o.SubjectPrefix = "custom" })
	require.NoError(t, s.Publish(context.Background(), testutil.NewEventBuilder().Run("run-9").Build()))
	require.NoError(t, conn.Flush())

	select {
	case ev := <-received:
		assert.Equal(t, "run-9", ev.RunID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}
