package config

import (
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/agent"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/model/anthropic"
	"github.com/hupe1980/teammesh/model/openai"
	"github.com/hupe1980/teammesh/prompt"
	"github.com/hupe1980/teammesh/runner"
	"github.com/hupe1980/teammesh/sink"
	"github.com/hupe1980/teammesh/store"
	"github.com/hupe1980/teammesh/team"
	"github.com/hupe1980/teammesh/tool"
	"github.com/nats-io/nats.go"
)

// BuildOptions supplies collaborators that cannot be expressed in YAML.
type BuildOptions struct {
	// Models replaces configured models by name.
	Models map[string]model.Model
	// Tools extends the built-in tool registry.
	Tools []tool.Tool
	// Logger overrides the logger derived from the log section.
	Logger logging.Logger
}

// Team is a built team together with the resources it owns.
type Team struct {
	Coordinator *team.Coordinator
	Store       store.Store
	Logger      logging.Logger

	runner RunnerConfig
	conn   *nats.Conn
}

// NewRunner returns an asynchronous runner recording into the team's store.
func (t *Team) NewRunner(optFns ...func(o *runner.Options)) *runner.Runner {
	return runner.New(t.Coordinator, append([]func(o *runner.Options){func(o *runner.Options) {
		o.MaxConcurrentRuns = t.runner.MaxConcurrentRuns
		o.EventBufferSize = t.runner.EventBufferSize
		o.Store = t.Store
		o.Logger = t.Logger
	}}, optFns...)...)
}

// Close releases the store and the NATS connection.
func (t *Team) Close() error {
	var errs []error
	if t.conn != nil {
		if err := t.conn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if t.Store != nil {
		if err := t.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Build validates cfg and wires the team it describes.
func Build(cfg *Config, optFns ...func(o *BuildOptions)) (*Team, error) {
	opts := BuildOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		level, _ := logging.ParseLevel(cfg.Log.Level)
		logger = logging.NewSlogLogger(level, cfg.Log.Format, false).WithContext("team", cfg.Supervisor.Name)
	}

	models := make(map[string]model.Model, len(cfg.Models))
	for name, mc := range cfg.Models {
		if m, ok := opts.Models[name]; ok {
			models[name] = m
			continue
		}
		m, err := newModel(name, mc)
		if err != nil {
			return nil, err
		}
		models[name] = m
	}

	registry := map[string]tool.Tool{}
	for _, t := range builtinTools() {
		registry[t.Name()] = t
	}
	for _, t := range opts.Tools {
		registry[t.Name()] = t
	}

	supervisor, err := newSupervisor(cfg, models[cfg.Supervisor.Model], logger)
	if err != nil {
		return nil, err
	}

	actors := make([]team.Actor, 0, len(cfg.Workers))
	for _, wc := range cfg.Workers {
		w, err := newWorker(wc, models[wc.Model], registry, logger)
		if err != nil {
			return nil, err
		}
		actors = append(actors, w)
	}

	var moderators []team.Moderator
	if len(cfg.Moderation.DenyList) > 0 {
		moderators = append(moderators, team.NewDenyListModerator(cfg.Moderation.Message, cfg.Moderation.DenyList...))
	}

	t := &Team{Logger: logger, runner: cfg.Runner}

	var teamSink core.EventSink
	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("teammesh"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		t.conn = conn
		teamSink = sink.NewNATSSink(conn, func(o *sink.NATSOptions) {
			o.SubjectPrefix = cfg.NATS.SubjectPrefix
			o.Logger = logger
		})
	}

	coordinator, err := team.New(supervisor, actors, func(o *team.Options) {
		o.Sink = teamSink
		o.Moderators = moderators
		o.Logger = logger
	})
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.Coordinator = coordinator

	if cfg.Store.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		t.Store = s
	} else {
		t.Store = store.NewMemoryStore()
	}

	return t, nil
}

func builtinTools() []tool.Tool {
	return []tool.Tool{tool.NewTranscriptReaderTool()}
}

func newModel(name string, mc ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if mc.Model != "" {
				o.Model = mc.Model
			}
			if mc.Temperature != 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = mc.MaxTokens
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
		}), nil
	case ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Model != "" {
				o.Model = anthropicsdk.Model(mc.Model)
			}
			if mc.Temperature != 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = mc.MaxTokens
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
		}), nil
	case ProviderMock:
		return newMockModel(name, mc)
	default:
		return nil, &core.ConfigError{Component: "model " + name, Reason: fmt.Sprintf("unknown provider %q", mc.Provider)}
	}
}

func newMockModel(name string, mc ModelConfig) (model.Model, error) {
	m := model.NewMockModel(name)
	for i, r := range mc.Script {
		switch {
		case r.Route != "":
			args, err := sonic.MarshalString(map[string]string{
				"reasoning":    "scripted",
				"next":         r.Route,
				"instructions": r.Instructions,
			})
			if err != nil {
				return nil, fmt.Errorf("model %s: script %d: %w", name, i, err)
			}
			m.AddCall(agent.RouteFunctionName, args)
		case r.Call != "":
			args := r.Arguments
			if args == "" {
				args = "{}"
			}
			m.AddCall(r.Call, args)
		default:
			m.AddText(r.Text)
		}
	}
	if mc.Fallback != "" {
		m.SetFallback(mc.Fallback)
	}
	return m, nil
}

func newSupervisor(cfg *Config, llm model.Model, logger logging.Logger) (*agent.Supervisor, error) {
	sc := cfg.Supervisor
	format, err := prompt.ParseFormat(sc.PromptFormat)
	if err != nil {
		return nil, &core.ConfigError{Component: "supervisor " + sc.Name, Reason: err.Error()}
	}

	return agent.NewSupervisor(sc.Name, llm, cfg.Roster(), func(o *agent.SupervisorOptions) {
		if sc.Prompt != "" {
			o.Instruction = agent.NewInstruction(sc.Prompt, format)
		}
		if sc.SummaryPrompt != "" {
			o.SummaryInstruction = agent.NewInstruction(sc.SummaryPrompt, format)
		}
		o.StepBudget = sc.StepBudget
		o.Summarize = sc.Summarize
		o.Logger = logger
	}), nil
}

func newWorker(wc WorkerConfig, llm model.Model, registry map[string]tool.Tool, logger logging.Logger) (*agent.Worker, error) {
	format, err := prompt.ParseFormat(wc.PromptFormat)
	if err != nil {
		return nil, &core.ConfigError{Component: "worker " + wc.Name, Reason: err.Error()}
	}

	tools := make([]tool.Tool, 0, len(wc.Tools))
	for _, name := range wc.Tools {
		t, ok := registry[name]
		if !ok {
			return nil, &core.ConfigError{Component: "worker " + wc.Name, Reason: fmt.Sprintf("unknown tool %q", name)}
		}
		tools = append(tools, t)
	}

	return agent.NewWorker(wc.Name, llm, func(o *agent.WorkerOptions) {
		if wc.Prompt != "" {
			o.Instruction = agent.NewInstruction(wc.Prompt, format)
		}
		if wc.MaxIterations > 0 {
			o.MaxIterations = wc.MaxIterations
		}
		o.Tools = tools
		o.Logger = logger
	}), nil
}
