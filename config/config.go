package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/orchestrator"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/trim"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTRELAY_"

// Config is the complete configuration of one agent process.
type Config struct {
	Agent        AgentConfig        `yaml:"agent"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Context      ContextConfig      `yaml:"context"`
	Model        ModelConfig        `yaml:"model"`
	Memory       MemoryConfig       `yaml:"memory"`
	Guardrails   GuardrailsConfig   `yaml:"guardrails"`
	Routing      RoutingConfig      `yaml:"routing"`
	Coordinator  CoordinatorConfig  `yaml:"coordinator"`
	Transport    TransportConfig    `yaml:"transport"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AgentConfig identifies the agent.
type AgentConfig struct {
	Address string `yaml:"address"`
	// SystemPrompt is a template; {{.agent}} and {{.conversation}} are available.
	SystemPrompt string `yaml:"system_prompt"`
	// ReplyTo sends every reply to a fixed address instead of the sender.
	ReplyTo string `yaml:"reply_to"`
}

// OrchestratorConfig bounds turns and conversations.
type OrchestratorConfig struct {
	MaxInteractions       int           `yaml:"max_interactions"`
	MaxToolIterations     int           `yaml:"max_tool_iterations"`
	TerminationMarkers    []string      `yaml:"termination_markers"`
	ReceiveTimeout        time.Duration `yaml:"receive_timeout"`
	IdleTimeout           time.Duration `yaml:"idle_timeout"`
	MaxInteractionsNotice string        `yaml:"max_interactions_notice"`
	ErrorNotice           string        `yaml:"error_notice"`
}

// ContextConfig selects the trimming strategy.
type ContextConfig struct {
	Strategy        string `yaml:"strategy"`
	MaxMessages     int    `yaml:"max_messages"`
	PreserveInitial int    `yaml:"preserve_initial"`
	PrioritizeTools bool   `yaml:"prioritize_tools"`
}

// ModelConfig selects the model provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
}

// MemoryConfig selects the long-term memory backend.
type MemoryConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
	// Tools exposes remember and recall to the model.
	Tools bool `yaml:"tools"`
}

// GuardrailStage configures the guardrails of one stage.
type GuardrailStage struct {
	Blocklist   []string `yaml:"blocklist"`
	Redact      []string `yaml:"redact"`
	Replacement string   `yaml:"replacement"`
	MaxLength   int      `yaml:"max_length"`
	// Policy is the path of a rego policy file.
	Policy string `yaml:"policy"`
	// Judge enables a model-backed safety check with these instructions.
	Judge string `yaml:"judge"`
}

// GuardrailsConfig configures both guardrail chains.
type GuardrailsConfig struct {
	Input        GuardrailStage `yaml:"input"`
	Output       GuardrailStage `yaml:"output"`
	BlockedReply string         `yaml:"blocked_reply"`
}

// RoutingRule maps a keyword to recipients.
type RoutingRule struct {
	Keyword    string   `yaml:"keyword"`
	Recipients []string `yaml:"recipients"`
}

// RoutingConfig selects the routing resolver.
type RoutingConfig struct {
	Kind  string        `yaml:"kind"`
	Rules []RoutingRule `yaml:"rules"`
}

// CoordinatorConfig turns the agent into a supervisor when workers are set.
type CoordinatorConfig struct {
	SessionKey      string        `yaml:"session_key"`
	Workers         []string      `yaml:"workers"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

// Enabled reports whether the agent supervises workers.
func (c CoordinatorConfig) Enabled() bool { return len(c.Workers) > 0 }

// TransportConfig selects the messaging substrate.
type TransportConfig struct {
	Kind   string            `yaml:"kind"`
	Listen string            `yaml:"listen"`
	Peers  map[string]string `yaml:"peers"`
	Codec  string            `yaml:"codec"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxToolIterations: orchestrator.DefaultMaxToolIterations,
			ReceiveTimeout:    orchestrator.DefaultReceiveTimeout,
		},
		Context: ContextConfig{
			Strategy:    string(trim.KindSmart),
			MaxMessages: 40,
		},
		Model:       ModelConfig{Provider: "mock", Name: "mock"},
		Memory:      MemoryConfig{Backend: "none"},
		Routing:     RoutingConfig{Kind: "default"},
		Coordinator: CoordinatorConfig{SessionKey: "coordination", ResponseTimeout: 60 * time.Second},
		Transport:   TransportConfig{Kind: "inmemory", Codec: "json"},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AGENTRELAY_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Agent.Address = getEnv("ADDRESS", c.Agent.Address)
	c.Agent.ReplyTo = getEnv("REPLY_TO", c.Agent.ReplyTo)
	c.Model.Provider = getEnv("MODEL_PROVIDER", c.Model.Provider)
	c.Model.Name = getEnv("MODEL_NAME", c.Model.Name)
	c.Model.APIKey = getEnv("MODEL_API_KEY", c.Model.APIKey)
	c.Model.BaseURL = getEnv("MODEL_BASE_URL", c.Model.BaseURL)
	c.Memory.Backend = getEnv("MEMORY_BACKEND", c.Memory.Backend)
	c.Memory.DSN = getEnv("MEMORY_DSN", c.Memory.DSN)
	c.Transport.Kind = getEnv("TRANSPORT_KIND", c.Transport.Kind)
	c.Transport.Listen = getEnv("TRANSPORT_LISTEN", c.Transport.Listen)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	var errs []error
	var err error
	if c.Orchestrator.MaxInteractions, err = getEnvInt("MAX_INTERACTIONS", c.Orchestrator.MaxInteractions); err != nil {
		errs = append(errs, err)
	}
	if c.Context.MaxMessages, err = getEnvInt("CONTEXT_MAX_MESSAGES", c.Context.MaxMessages); err != nil {
		errs = append(errs, err)
	}
	if c.Orchestrator.ReceiveTimeout, err = getEnvDuration("RECEIVE_TIMEOUT", c.Orchestrator.ReceiveTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Coordinator.ResponseTimeout, err = getEnvDuration("RESPONSE_TIMEOUT", c.Coordinator.ResponseTimeout); err != nil {
		errs = append(errs, err)
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		c.Coordinator.Workers = splitList(v)
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.Address == "" {
		errs = append(errs, errors.New("agent.address is required"))
	}
	if c.Orchestrator.MaxInteractions < 0 {
		errs = append(errs, errors.New("orchestrator.max_interactions must not be negative"))
	}
	if _, err := c.ContextStrategy(); err != nil {
		errs = append(errs, fmt.Errorf("context: %w", err))
	}
	if !slices.Contains([]string{"openai", "anthropic", "mock"}, c.Model.Provider) {
		errs = append(errs, fmt.Errorf("model.provider must be one of openai, anthropic, mock; got %q", c.Model.Provider))
	}
	if !slices.Contains([]string{"none", "memory", "sqlite"}, c.Memory.Backend) {
		errs = append(errs, fmt.Errorf("memory.backend must be one of none, memory, sqlite; got %q", c.Memory.Backend))
	}
	if c.Memory.Backend == "sqlite" && c.Memory.DSN == "" {
		errs = append(errs, errors.New("memory.dsn is required for the sqlite backend"))
	}
	if c.Memory.Tools && c.Memory.Backend == "none" {
		errs = append(errs, errors.New("memory.tools requires a memory backend"))
	}
	if !slices.Contains([]string{"default", "keyword", "directive"}, c.Routing.Kind) {
		errs = append(errs, fmt.Errorf("routing.kind must be one of default, keyword, directive; got %q", c.Routing.Kind))
	}
	if c.Coordinator.Enabled() {
		if c.Coordinator.SessionKey == "" {
			errs = append(errs, errors.New("coordinator.session_key is required when workers are set"))
		}
		if slices.Contains(c.Coordinator.Workers, c.Agent.Address) {
			errs = append(errs, errors.New("coordinator.workers must not contain the agent itself"))
		}
	}
	if !slices.Contains([]string{"inmemory", "http"}, c.Transport.Kind) {
		errs = append(errs, fmt.Errorf("transport.kind must be one of inmemory, http; got %q", c.Transport.Kind))
	}
	if !slices.Contains([]string{"", "json", "cbor"}, c.Transport.Codec) {
		errs = append(errs, fmt.Errorf("transport.codec must be json or cbor; got %q", c.Transport.Codec))
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ContextStrategy builds the configured trimming strategy.
func (c *Config) ContextStrategy() (trim.Strategy, error) {
	return trim.New(trim.Options{
		Kind:            trim.Kind(c.Context.Strategy),
		MaxMessages:     c.Context.MaxMessages,
		PreserveInitial: c.Context.PreserveInitial,
		PrioritizeTools: c.Context.PrioritizeTools,
	})
}

// Logger builds the process logger.
func (c *Config) Logger() *logging.RelayLogger {
	return logging.NewSlogLogger(logging.ParseLevel(c.Logging.Level), c.Logging.Format, false).
		WithAgent(c.Agent.Address)
}

// Resolver builds the configured routing resolver.
func (c *Config) Resolver() routing.Resolver {
	def := routing.Default{ReplyTo: c.Agent.ReplyTo}
	switch c.Routing.Kind {
	case "keyword":
		rules := make([]routing.Rule, len(c.Routing.Rules))
		for i, r := range c.Routing.Rules {
			rules[i] = routing.Rule{Keyword: r.Keyword, Recipients: r.Recipients}
		}
		return routing.Keyword{Rules: rules, Fallback: def}
	case "directive":
		return routing.Directive{Fallback: def}
	}
	return def
}

// OrchestratorOptions applies the orchestrator section.
func (c *Config) OrchestratorOptions() func(o *orchestrator.Options) {
	return func(o *orchestrator.Options) {
		o.Address = c.Agent.Address
		o.MaxInteractions = c.Orchestrator.MaxInteractions
		o.MaxToolIterations = c.Orchestrator.MaxToolIterations
		o.TerminationMarkers = slices.Clone(c.Orchestrator.TerminationMarkers)
		o.ReceiveTimeout = c.Orchestrator.ReceiveTimeout
		o.IdleTimeout = c.Orchestrator.IdleTimeout
		o.MaxInteractionsNotice = c.Orchestrator.MaxInteractionsNotice
		o.ErrorNotice = c.Orchestrator.ErrorNotice
		o.Resolver = c.Resolver()
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
