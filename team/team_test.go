package team

import (
	"context"
	"testing"

	"github.com/hupe1980/teammesh/agent"
	"github.com/hupe1980/teammesh/core"
	mockteam "github.com/hupe1980/teammesh/internal/mock/team"
	"github.com/hupe1980/teammesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNew_ConfigErrors(t *testing.T) {
	llm := model.NewMockModel("mock")

	tests := []struct {
		name   string
		router Router
		actors []Actor
		reason string
	}{
		{
			name:   "missing worker",
			router: agent.NewSupervisor("sup", llm, []string{"Researcher", "Writer"}),
			actors: workers("Researcher"),
			reason: `roster member "Writer" is not registered`,
		},
		{
			name:   "duplicate worker",
			router: agent.NewSupervisor("sup", llm, []string{"A"}),
			actors: workers("A", "A"),
			reason: "duplicate worker",
		},
		{
			name:   "invalid supervisor",
			router: agent.NewSupervisor("sup", llm, nil),
			actors: workers("A"),
			reason: "roster is empty",
		},
		{
			name:   "invalid worker",
			router: agent.NewSupervisor("sup", llm, []string{"A"}),
			actors: []Actor{agent.NewWorker("A", nil)},
			reason: "model is required",
		},
		{
			name:   "nil supervisor",
			actors: workers("A"),
			reason: "supervisor is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.router, tt.actors)

			var cfgErr *core.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Reason, tt.reason)
		})
	}
}

func TestNew_Warnings(t *testing.T) {
	sup := agent.NewSupervisor("sup", model.NewMockModel("mock"), []string{"A"}, func(o *agent.SupervisorOptions) {
		o.Instruction = agent.NewInstructionFromText("Route well.")
	})
	c, err := New(sup, workers("A", "Spare"))
	require.NoError(t, err)

	warnings := c.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "{team_members}")
	assert.Contains(t, warnings[1], "Spare")
}

func TestNew_StepBudgetOverride(t *testing.T) {
	sup := agent.NewSupervisor("sup", model.NewMockModel("mock"), []string{"A"})
	c, err := New(sup, workers("A"))
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultStepBudget, c.StepBudget())

	c, err = New(sup, workers("A"), func(o *Options) { o.StepBudget = 7 })
	require.NoError(t, err)
	assert.Equal(t, 7, c.StepBudget())
	assert.Equal(t, []string{"A"}, c.Roster())
}

func newMockRouter(ctrl *gomock.Controller, roster ...string) *mockteam.MockRouter {
	r := mockteam.NewMockRouter(ctrl)
	r.EXPECT().Name().Return("sup").AnyTimes()
	r.EXPECT().Roster().Return(roster).AnyTimes()
	r.EXPECT().StepBudget().Return(10).AnyTimes()
	return r
}

func newMockActor(ctrl *gomock.Controller, name string) *mockteam.MockActor {
	a := mockteam.NewMockActor(ctrl)
	a.EXPECT().Name().Return(name).AnyTimes()
	return a
}

func TestRun_RevalidatesRouterDecisions(t *testing.T) {
	tests := []struct {
		name    string
		next    string
		workers []string
	}{
		{name: "unregistered worker", next: "Archivist", workers: []string{"Researcher"}},
		{name: "registered worker outside the roster", next: "Archivist", workers: []string{"Researcher", "Archivist"}},
		{name: "empty next", next: "", workers: []string{"Researcher"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			router := newMockRouter(ctrl, "Researcher")
			router.EXPECT().Decide(gomock.Any(), gomock.Any()).
				Return(core.RoutingDecision{Next: tt.next}, nil).Times(1)

			actors := make([]Actor, 0, len(tt.workers))
			for _, name := range tt.workers {
				a := newMockActor(ctrl, name)
				a.EXPECT().Act(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				actors = append(actors, a)
			}

			c, err := New(router, actors)
			require.NoError(t, err)

			res, err := c.Run(context.Background(), "archive")
			assert.True(t, core.IsRoutingProtocolError(err), "got %v", err)
			assert.Equal(t, StateFailed, res.State)
			assert.Empty(t, res.Steps)
			assert.Zero(t, res.Turns)
		})
	}
}

func TestRun_AuthorIsActingWorker(t *testing.T) {
	ctrl := gomock.NewController(t)

	router := newMockRouter(ctrl, "Writer")
	gomock.InOrder(
		router.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(core.RoutingDecision{Next: "Writer", Instructions: "draft"}, nil),
		router.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(core.RoutingDecision{Next: core.Finish}, nil),
	)

	writer := newMockActor(ctrl, "Writer")
	writer.EXPECT().Act(gomock.Any(), gomock.Any(), "draft").
		Return(core.Message{Author: "Impostor", Content: "the draft"}, nil)

	c, err := New(router, []Actor{writer})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "write")
	require.NoError(t, err)

	msg := res.Transcript.At(1)
	assert.Equal(t, "Writer", msg.Author)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestRun_NoCallsAfterTerminalState(t *testing.T) {
	ctrl := gomock.NewController(t)

	router := newMockRouter(ctrl, "A")
	router.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(core.RoutingDecision{Next: core.Finish}, nil).Times(1)

	a := newMockActor(ctrl, "A")
	c, err := New(router, []Actor{a})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, res.State.IsTerminal())
}

type summarizingRouter struct {
	*mockteam.MockRouter
	*mockteam.MockSummarizer
}

func TestRun_SummaryFailureFailsRun(t *testing.T) {
	ctrl := gomock.NewController(t)

	router := newMockRouter(ctrl, "A")
	router.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(core.RoutingDecision{Next: core.Finish}, nil)

	summarizer := mockteam.NewMockSummarizer(ctrl)
	summarizer.EXPECT().SummarizeEnabled().Return(true)
	summarizer.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return("", assert.AnError)

	c, err := New(summarizingRouter{router, summarizer}, []Actor{newMockActor(ctrl, "A")})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "q")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StateFailed, res.State)
}
