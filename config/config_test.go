package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/orchestrator"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/trim"
)

const sample = `
agent:
  address: support@x
  system_prompt: "You are {{.agent}}."
orchestrator:
  max_interactions: 10
  termination_markers: ["TERMINATE", "[DONE]"]
  receive_timeout: 250ms
  idle_timeout: 10m
context:
  strategy: smart
  max_messages: 12
  preserve_initial: 2
  prioritize_tools: true
model:
  provider: openai
  name: gpt-4o-mini
  temperature: 0.2
memory:
  backend: sqlite
  dsn: memory.db
routing:
  kind: keyword
  rules:
    - keyword: invoice
      recipients: [billing@x]
coordinator:
  workers: [research@x, writer@x]
  response_timeout: 30s
transport:
  kind: http
  listen: ":8080"
  codec: cbor
  peers:
    research@x: http://localhost:8081
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "support@x", cfg.Agent.Address)
	assert.Equal(t, 10, cfg.Orchestrator.MaxInteractions)
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.ReceiveTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.IdleTimeout)
	// untouched defaults survive
	assert.Equal(t, orchestrator.DefaultMaxToolIterations, cfg.Orchestrator.MaxToolIterations)
	assert.Equal(t, "coordination", cfg.Coordinator.SessionKey)
	assert.True(t, cfg.Coordinator.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Coordinator.ResponseTimeout)
	assert.Equal(t, "http://localhost:8081", cfg.Transport.Peers["research@x"])

	strategy, err := cfg.ContextStrategy()
	require.NoError(t, err)
	st := strategy.Stats(20)
	assert.Equal(t, "smart", st.Strategy)
	assert.Equal(t, 12, st.MaxMessages)
	assert.Equal(t, 2, st.PreserveInitial)
	assert.True(t, st.PrioritizeTools)

	_, ok := cfg.Resolver().(routing.Keyword)
	assert.True(t, ok)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Model.Provider)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTRELAY_ADDRESS", "env@x")
	t.Setenv("AGENTRELAY_MAX_INTERACTIONS", "3")
	t.Setenv("AGENTRELAY_RECEIVE_TIMEOUT", "2s")
	t.Setenv("AGENTRELAY_WORKERS", "a@x, b@x,")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "env@x", cfg.Agent.Address)
	assert.Equal(t, 3, cfg.Orchestrator.MaxInteractions)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.ReceiveTimeout)
	assert.Equal(t, []string{"a@x", "b@x"}, cfg.Coordinator.Workers)
}

func TestParse_InvalidEnv(t *testing.T) {
	t.Setenv("AGENTRELAY_MAX_INTERACTIONS", "many")
	_, err := Parse([]byte(sample))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTRELAY_MAX_INTERACTIONS")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.address is required")

	cfg.Agent.Address = "a@x"
	require.NoError(t, cfg.Validate())

	cfg.Context.Strategy = "fixed"
	cfg.Context.MaxMessages = 0
	cfg.Model.Provider = "gemini"
	cfg.Memory.Backend = "sqlite"
	cfg.Transport.Codec = "xml"
	cfg.Coordinator.Workers = []string{"a@x"}
	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"context:", "model.provider", "memory.dsn", "transport.codec", "coordinator.workers"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("agent: [unclosed"))
	require.Error(t, err)
}

func TestOrchestratorOptions(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	var o orchestrator.Options
	cfg.OrchestratorOptions()(&o)
	assert.Equal(t, "support@x", o.Address)
	assert.Equal(t, 10, o.MaxInteractions)
	assert.Equal(t, []string{"TERMINATE", "[DONE]"}, o.TerminationMarkers)
	assert.NotNil(t, o.Resolver)
}

func TestDefault_UsesSmartWindow(t *testing.T) {
	cfg := Default()
	s, err := cfg.ContextStrategy()
	require.NoError(t, err)
	assert.Equal(t, string(trim.KindSmart), s.Name())
}
