package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/team"
	"github.com/hupe1980/teammesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockTeam = `
models:
  boss:
    provider: mock
    script:
      - route: Researcher
        instructions: find the facts
      - route: Writer
        instructions: write it up
      - route: FINISH
  hands:
    provider: mock
    fallback: done
supervisor:
  name: lead
  model: boss
  step_budget: 5
workers:
  - name: Researcher
    model: hands
    tools: [read_transcript]
  - name: Writer
    model: hands
    prompt: "You are {name}. Write for ${TEAMMESH_TEST_AUDIENCE}."
log:
  level: error
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teammesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, "supervisor", cfg.Supervisor.Name)
	assert.Equal(t, 100, cfg.Supervisor.StepBudget)
	assert.Equal(t, 10, cfg.Runner.MaxConcurrentRuns)
	assert.Equal(t, 100, cfg.Runner.EventBufferSize)
	assert.Equal(t, "teammesh", cfg.NATS.SubjectPrefix)
	assert.Empty(t, cfg.Store.Path)
}

func TestLoad(t *testing.T) {
	t.Setenv("TEAMMESH_TEST_AUDIENCE", "engineers")

	cfg, err := Load(writeConfig(t, mockTeam))
	require.NoError(t, err)

	assert.Equal(t, "lead", cfg.Supervisor.Name)
	assert.Equal(t, 5, cfg.Supervisor.StepBudget)
	require.Len(t, cfg.Workers, 2)
	assert.Equal(t, "You are {name}. Write for engineers.", cfg.Workers[1].Prompt)
	assert.Equal(t, []string{"Researcher", "Writer"}, cfg.Roster())
	assert.Equal(t, 10, cfg.Runner.MaxConcurrentRuns, "defaults survive partial files")
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvPath(t *testing.T) {
	t.Setenv("TEAMMESH_CONFIG", writeConfig(t, mockTeam))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "lead", cfg.Supervisor.Name)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "workers: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TEAMMESH_STORE_PATH", "/tmp/runs.db")
	t.Setenv("TEAMMESH_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("TEAMMESH_LOG_LEVEL", "debug")
	t.Setenv("TEAMMESH_STEP_BUDGET", "7")
	t.Setenv("TEAMMESH_MAX_CONCURRENT_RUNS", "not-a-number")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Parse([]byte(`
models:
  gpt:
    provider: openai
  claude:
    provider: anthropic
  pinned:
    provider: openai
    api_key: sk-pinned
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/runs.db", cfg.Store.Path)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Supervisor.StepBudget)
	assert.Equal(t, 10, cfg.Runner.MaxConcurrentRuns, "invalid numbers are ignored")
	assert.Equal(t, "sk-openai", cfg.Models["gpt"].APIKey)
	assert.Equal(t, "sk-ant", cfg.Models["claude"].APIKey)
	assert.Equal(t, "sk-pinned", cfg.Models["pinned"].APIKey)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaults()
		cfg.Models = map[string]ModelConfig{"m": {Provider: ProviderMock}}
		cfg.Supervisor.Model = "m"
		cfg.Workers = []WorkerConfig{{Name: "A", Model: "m"}, {Name: "B", Model: "m"}}
		return &cfg
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		component string
	}{
		{"unknown provider", func(c *Config) { c.Models["m"] = ModelConfig{Provider: "bedrock"} }, "model m"},
		{"supervisor without name", func(c *Config) { c.Supervisor.Name = "" }, "supervisor"},
		{"supervisor without model", func(c *Config) { c.Supervisor.Model = "" }, "supervisor supervisor"},
		{"supervisor unknown model", func(c *Config) { c.Supervisor.Model = "x" }, "supervisor supervisor"},
		{"supervisor prompt format", func(c *Config) { c.Supervisor.PromptFormat = "mustache" }, "supervisor supervisor"},
		{"no workers", func(c *Config) { c.Workers = nil }, "workers"},
		{"worker without name", func(c *Config) { c.Workers[1].Name = "" }, "worker 1"},
		{"duplicate worker", func(c *Config) { c.Workers[1].Name = "A" }, "worker A"},
		{"worker unknown model", func(c *Config) { c.Workers[0].Model = "x" }, "worker A"},
		{"worker prompt format", func(c *Config) { c.Workers[0].PromptFormat = "mustache" }, "worker A"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
	}

	require.NoError(t, base().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			var ce *core.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.component, ce.Component)
		})
	}
}

func TestBuild_RunsMockTeam(t *testing.T) {
	t.Setenv("TEAMMESH_TEST_AUDIENCE", "engineers")
	cfg, err := Load(writeConfig(t, mockTeam))
	require.NoError(t, err)

	tm, err := Build(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })

	assert.Equal(t, []string{"Researcher", "Writer"}, tm.Coordinator.Roster())
	assert.Equal(t, 5, tm.Coordinator.StepBudget())

	res, err := tm.Coordinator.Run(context.Background(), "summarize the findings")
	require.NoError(t, err)
	assert.Equal(t, team.StateFinished, res.State)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, "Writer", res.Transcript.At(2).Author)
	assert.Equal(t, "done", res.FinalAnswer)
}

func TestBuild_WithSQLiteStore(t *testing.T) {
	cfg, err := Parse([]byte(mockTeam))
	require.NoError(t, err)
	cfg.Store.Path = filepath.Join(t.TempDir(), "runs.db")

	tm, err := Build(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })

	r := tm.NewRunner()
	runID, events, errs, err := r.Run(context.Background(), "session", "go")
	require.NoError(t, err)
	for range events {
	}
	for err := range errs {
		require.NoError(t, err)
	}

	run, err := tm.Store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, string(team.StateFinished), run.State)
	assert.Equal(t, "session", run.SessionID)
}

func TestBuild_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
models:
  remote:
    provider: openai
supervisor:
  model: remote
  summarize: true
workers:
  - name: Clock
    model: remote
    tools: [now]
moderation:
  deny_list: [forbidden]
  message: not allowed
`))
	require.NoError(t, err)

	llm := model.NewMockModel("override").
		AddCall("route", `{"reasoning":"r","next":"FINISH","instructions":""}`).
		AddText("nothing to do")
	now := tool.NewFunctionTool("now", "Current time", map[string]any{"type": "object"},
		func(*core.ToolContext, map[string]any) (any, error) { return "noon", nil })

	tm, err := Build(cfg, func(o *BuildOptions) {
		o.Models = map[string]model.Model{"remote": llm}
		o.Tools = []tool.Tool{now}
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })

	_, err = tm.Coordinator.Run(context.Background(), "a forbidden request")
	require.ErrorIs(t, err, core.ErrModeration)

	res, err := tm.Coordinator.Run(context.Background(), "an allowed request")
	require.NoError(t, err)
	assert.Equal(t, team.StateFinished, res.State)
	assert.Equal(t, "nothing to do", res.Summary)
}

func TestBuild_Errors(t *testing.T) {
	t.Run("unknown tool", func(t *testing.T) {
		cfg, err := Parse([]byte(mockTeam))
		require.NoError(t, err)
		cfg.Workers[0].Tools = []string{"teleport"}

		_, err = Build(cfg)
		var ce *core.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "worker Researcher", ce.Component)
	})

	t.Run("roster names unregistered worker", func(t *testing.T) {
		cfg, err := Parse([]byte(mockTeam))
		require.NoError(t, err)
		cfg.Supervisor.Roster = []string{"Researcher", "Archivist"}

		_, err = Build(cfg)
		var ce *core.ConfigError
		require.ErrorAs(t, err, &ce)
	})
}
