package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/prompt"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when neither an explicit path nor TEAMMESH_CONFIG is
// given.
const DefaultPath = "teammesh.yaml"

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

type Config struct {
	Models     map[string]ModelConfig `yaml:"models"`
	Supervisor SupervisorConfig       `yaml:"supervisor"`
	Workers    []WorkerConfig         `yaml:"workers"`
	Moderation ModerationConfig       `yaml:"moderation"`
	Runner     RunnerConfig           `yaml:"runner"`
	Store      StoreConfig            `yaml:"store"`
	NATS       NATSConfig             `yaml:"nats"`
	Log        LogConfig              `yaml:"log"`
}

type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`

	// Script and Fallback configure the mock provider.
	Script   []MockResponse `yaml:"script"`
	Fallback string         `yaml:"fallback"`
}

// MockResponse is one scripted answer of a mock model. Exactly one of Text,
// Route or Call should be set.
type MockResponse struct {
	Text         string `yaml:"text"`
	Route        string `yaml:"route"`
	Instructions string `yaml:"instructions"`
	Call         string `yaml:"call"`
	Arguments    string `yaml:"arguments"`
}

type SupervisorConfig struct {
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Prompt       string `yaml:"prompt"`
	PromptFormat string `yaml:"prompt_format"`
	// Roster defaults to the names of all workers, in order.
	Roster        []string `yaml:"roster"`
	StepBudget    int      `yaml:"step_budget"`
	Summarize     bool     `yaml:"summarize"`
	SummaryPrompt string   `yaml:"summary_prompt"`
}

type WorkerConfig struct {
	Name          string   `yaml:"name"`
	Model         string   `yaml:"model"`
	Prompt        string   `yaml:"prompt"`
	PromptFormat  string   `yaml:"prompt_format"`
	Tools         []string `yaml:"tools"`
	MaxIterations int      `yaml:"max_iterations"`
}

type ModerationConfig struct {
	DenyList []string `yaml:"deny_list"`
	Message  string   `yaml:"message"`
}

type RunnerConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
	EventBufferSize   int `yaml:"event_buffer_size"`
}

// StoreConfig selects the run ledger. An empty path keeps runs in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		Supervisor: SupervisorConfig{
			Name:       "supervisor",
			StepBudget: 100,
		},
		Runner: RunnerConfig{
			MaxConcurrentRuns: 10,
			EventBufferSize:   100,
		},
		NATS: NATSConfig{
			SubjectPrefix: "teammesh",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the team definition at path. An empty path falls back to
// TEAMMESH_CONFIG and then DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TEAMMESH_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML team definition and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TEAMMESH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TEAMMESH_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("TEAMMESH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TEAMMESH_STEP_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Supervisor.StepBudget = n
		}
	}
	if v := os.Getenv("TEAMMESH_MAX_CONCURRENT_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.MaxConcurrentRuns = n
		}
	}

	keys := map[string]string{
		ProviderOpenAI:    os.Getenv("OPENAI_API_KEY"),
		ProviderAnthropic: os.Getenv("ANTHROPIC_API_KEY"),
	}
	for name, mc := range cfg.Models {
		if mc.APIKey == "" && keys[mc.Provider] != "" {
			mc.APIKey = keys[mc.Provider]
			cfg.Models[name] = mc
		}
	}
}

// Roster returns the supervisor's roster: the configured one, or the names
// of all workers in definition order.
func (c *Config) Roster() []string {
	if len(c.Supervisor.Roster) > 0 {
		return slices.Clone(c.Supervisor.Roster)
	}
	names := make([]string, 0, len(c.Workers))
	for _, w := range c.Workers {
		names = append(names, w.Name)
	}
	return names
}

// Validate checks references between sections. Team wiring rules (roster
// membership, step budget) are enforced again when the team is built.
func (c *Config) Validate() error {
	for name, mc := range c.Models {
		switch mc.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		default:
			return &core.ConfigError{Component: "model " + name, Reason: fmt.Sprintf("unknown provider %q", mc.Provider)}
		}
	}

	if c.Supervisor.Name == "" {
		return &core.ConfigError{Component: "supervisor", Reason: "name is required"}
	}
	if err := c.checkModel("supervisor "+c.Supervisor.Name, c.Supervisor.Model); err != nil {
		return err
	}
	if _, err := prompt.ParseFormat(c.Supervisor.PromptFormat); err != nil {
		return &core.ConfigError{Component: "supervisor " + c.Supervisor.Name, Reason: err.Error()}
	}
	if len(c.Workers) == 0 {
		return &core.ConfigError{Component: "workers", Reason: "at least one worker is required"}
	}

	seen := make(map[string]bool, len(c.Workers))
	for i, w := range c.Workers {
		if w.Name == "" {
			return &core.ConfigError{Component: fmt.Sprintf("worker %d", i), Reason: "name is required"}
		}
		if seen[w.Name] {
			return &core.ConfigError{Component: "worker " + w.Name, Reason: "duplicate worker name"}
		}
		seen[w.Name] = true

		if err := c.checkModel("worker "+w.Name, w.Model); err != nil {
			return err
		}
		if _, err := prompt.ParseFormat(w.PromptFormat); err != nil {
			return &core.ConfigError{Component: "worker " + w.Name, Reason: err.Error()}
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &core.ConfigError{Component: "log", Reason: err.Error()}
	}

	return nil
}

func (c *Config) checkModel(component, ref string) error {
	if ref == "" {
		return &core.ConfigError{Component: component, Reason: "model is required"}
	}
	if _, ok := c.Models[ref]; !ok {
		return &core.ConfigError{Component: component, Reason: fmt.Sprintf("unknown model %q", ref)}
	}
	return nil
}
