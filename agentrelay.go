// Package agentrelay assembles a message-driven agent from configuration.
//
// Most applications interact with this package by:
//  1. Loading a config.Config (config.Load)
//  2. Creating an Agent via NewAgent, optionally overriding the model,
//     messenger or tools
//  3. Calling Run until the context is cancelled
//
// The facade builds the trimming strategy, context store, guardrail chains,
// long-term memory, routing resolver, transport and either a plain
// orchestrator or, when workers are configured, a supervising coordinator.
package agentrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/coordinator"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/memory/sqlite"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/model/anthropic"
	"github.com/hupe1980/agentrelay/model/openai"
	"github.com/hupe1980/agentrelay/orchestrator"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/transport/http"
	"github.com/hupe1980/agentrelay/transport/inmemory"
)

// Options overrides parts NewAgent would otherwise build from configuration.
type Options struct {
	// Model replaces the configured provider.
	Model model.Model
	// Messenger replaces the configured transport.
	Messenger core.Messenger
	// Hub is used by the inmemory transport. A private hub is created when nil.
	Hub *inmemory.Hub
	// Tools are registered in addition to the built-in ones.
	Tools []tool.Tool
	// Logger replaces the configured logger.
	Logger logging.Logger
}

// Agent is one running agent.
type Agent struct {
	cfg          *config.Config
	orchestrator *orchestrator.Orchestrator
	coordinator  *coordinator.Coordinator
	server       *http.Transport
	closers      []io.Closer
	logger       logging.Logger
}

// NewAgent builds an agent from cfg.
func NewAgent(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("agentrelay: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agentrelay: %w", err)
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Agent{cfg: cfg, logger: opts.Logger}
	if a.logger == nil {
		a.logger = cfg.Logger()
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	m := opts.Model
	if m == nil {
		m = buildModel(cfg.Model)
	}

	strategy, err := cfg.ContextStrategy()
	if err != nil {
		return nil, err
	}
	store := session.NewStore(func(o *session.Options) {
		o.SystemPrompt = cfg.Agent.SystemPrompt
		o.Agent = cfg.Agent.Address
		o.Strategy = strategy
		o.Logger = a.logger
	})

	registry, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, err
	}

	mem, err := a.buildMemory(cfg.Memory)
	if err != nil {
		return nil, err
	}
	if mem != nil && cfg.Memory.Tools {
		if err := registry.Register(tool.NewRememberTool(mem), tool.NewRecallTool(mem)); err != nil {
			return nil, err
		}
	}

	input, err := a.buildChain(ctx, guardrail.StageInput, cfg.Guardrails.Input, m)
	if err != nil {
		return nil, err
	}
	output, err := a.buildChain(ctx, guardrail.StageOutput, cfg.Guardrails.Output, m)
	if err != nil {
		return nil, err
	}

	messenger := opts.Messenger
	if messenger == nil {
		if messenger, err = a.buildTransport(cfg, opts.Hub); err != nil {
			return nil, err
		}
	}

	orchOpts := []func(o *orchestrator.Options){
		cfg.OrchestratorOptions(),
		func(o *orchestrator.Options) {
			o.Store = store
			o.Tools = registry
			o.InputGuardrails = input
			o.OutputGuardrails = output
			o.Logger = a.logger
			if mem != nil {
				o.Memory = mem
			}
		},
	}

	if cfg.Coordinator.Enabled() {
		a.coordinator, err = coordinator.New(messenger, func(o *coordinator.Options) {
			o.Address = cfg.Agent.Address
			o.SessionKey = cfg.Coordinator.SessionKey
			o.Workers = cfg.Coordinator.Workers
			o.ResponseTimeout = cfg.Coordinator.ResponseTimeout
			if len(cfg.Orchestrator.TerminationMarkers) > 0 {
				o.TerminationMarkers = cfg.Orchestrator.TerminationMarkers
			}
			o.Logger = a.logger
		})
		if err != nil {
			return nil, err
		}
		a.orchestrator, err = a.coordinator.NewOrchestrator(m, orchOpts...)
	} else {
		a.orchestrator, err = orchestrator.New(messenger, m, orchOpts...)
	}
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Orchestrator returns the agent's orchestrator.
func (a *Agent) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Coordinator returns the coordinator, or nil for a plain agent.
func (a *Agent) Coordinator() *coordinator.Coordinator { return a.coordinator }

// Run serves the HTTP transport when configured and processes messages
// until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if a.server != nil && a.cfg.Transport.Listen != "" {
		errCh := make(chan error, 1)
		go func() { errCh <- a.server.Start(a.cfg.Transport.Listen) }()
		defer func() {
			if err := a.server.Shutdown(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("agentrelay.transport.shutdown_failed", "error", err)
			}
		}()

		runErr := make(chan error, 1)
		go func() { runErr <- a.orchestrator.Run(ctx) }()
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("transport: %w", err)
			}
			return <-runErr
		case err := <-runErr:
			return err
		}
	}
	return a.orchestrator.Run(ctx)
}

// Close releases the memory backend and transport endpoints.
func (a *Agent) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildModel(mc config.ModelConfig) model.Model {
	switch mc.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = mc.Temperature
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
		})
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			o.Temperature = mc.Temperature
			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
		})
	}
	return model.NewMockModel(mc.Name, "mock")
}

type memoryBackend interface {
	core.MemoryProvider
	core.MemoryWriter
}

func (a *Agent) buildMemory(mc config.MemoryConfig) (memoryBackend, error) {
	switch mc.Backend {
	case "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		s, err := sqlite.New(mc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	}
	return nil, nil
}

func (a *Agent) buildChain(ctx context.Context, stage guardrail.Stage, gc config.GuardrailStage, m model.Model) (*guardrail.Chain, error) {
	var guards []guardrail.Guardrail
	if len(gc.Blocklist) > 0 {
		guards = append(guards, guardrail.NewKeyword(gc.Blocklist, ""))
	}
	if len(gc.Redact) > 0 {
		r, err := guardrail.NewRedact(gc.Redact, gc.Replacement)
		if err != nil {
			return nil, fmt.Errorf("%s guardrails: %w", stage, err)
		}
		guards = append(guards, r)
	}
	if gc.MaxLength > 0 {
		guards = append(guards, guardrail.NewMaxLength(gc.MaxLength))
	}
	if gc.Policy != "" {
		src, err := os.ReadFile(gc.Policy)
		if err != nil {
			return nil, fmt.Errorf("%s guardrails: read policy: %w", stage, err)
		}
		p, err := guardrail.NewPolicy(ctx, stage, string(src))
		if err != nil {
			return nil, fmt.Errorf("%s guardrails: %w", stage, err)
		}
		guards = append(guards, p)
	}
	if gc.Judge != "" {
		guards = append(guards, guardrail.NewJudge(m, gc.Judge))
	}
	if len(guards) == 0 {
		return nil, nil
	}
	return guardrail.NewChain(guards, func(o *guardrail.ChainOptions) {
		if a.cfg.Guardrails.BlockedReply != "" {
			o.BlockedReply = a.cfg.Guardrails.BlockedReply
		}
		o.Logger = a.logger
		o.OnDecision = func(stage guardrail.Stage, msg core.Message, d guardrail.Decision) {
			a.logger.Info("guardrail.decision", "stage", string(stage), "guardrail", d.Guardrail,
				"action", string(d.Action), "reason", d.Reason, "sender", msg.Sender)
		}
	}), nil
}

func (a *Agent) buildTransport(cfg *config.Config, hub *inmemory.Hub) (core.Messenger, error) {
	switch cfg.Transport.Kind {
	case "http":
		codec, err := http.CodecByName(cfg.Transport.Codec)
		if err != nil {
			return nil, err
		}
		t, err := http.New(func(o *http.Options) {
			o.Address = cfg.Agent.Address
			o.Codec = codec
			o.Logger = a.logger
		})
		if err != nil {
			return nil, err
		}
		for addr, url := range cfg.Transport.Peers {
			t.AddPeer(addr, url)
		}
		a.server = t
		return t, nil
	default:
		if hub == nil {
			hub = inmemory.NewHub(func(o *inmemory.Options) { o.Logger = a.logger })
		}
		ep, err := hub.Register(cfg.Agent.Address)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ep)
		return ep, nil
	}
}
