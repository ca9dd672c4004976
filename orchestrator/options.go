package orchestrator

import (
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
)

const (
	// DefaultMaxToolIterations bounds the tool resolution loop of one turn.
	DefaultMaxToolIterations = 20
	// DefaultReceiveTimeout is the bounded wait of one Receive call.
	DefaultReceiveTimeout = time.Second
	// DefaultMaxInteractionsNotice is sent when a conversation runs out of interactions.
	DefaultMaxInteractionsNotice = "This conversation has reached its maximum number of interactions."
	// DefaultErrorNotice is sent when the model provider fails during a turn.
	DefaultErrorNotice = "Sorry, I ran into an internal error and cannot continue this conversation."
)

// Options configures an Orchestrator.
type Options struct {
	// Address is the agent's own messaging address; replies are sent from it.
	Address string

	// Store holds conversation histories. Defaults to an untrimmed store.
	Store *session.Store
	// Tools are exposed to the model. Defaults to an empty registry.
	Tools *tool.Registry

	InputGuardrails  *guardrail.Chain
	OutputGuardrails *guardrail.Chain

	// Resolver picks reply recipients. Defaults to routing.Default{}.
	Resolver routing.Resolver
	// Memory optionally injects a long-term summary once per conversation.
	Memory core.MemoryProvider

	// MaxInteractions ends a conversation after this many inbound messages.
	// Zero means unlimited.
	MaxInteractions   int
	MaxToolIterations int
	// TerminationMarkers complete a conversation when a reply contains one.
	TerminationMarkers []string

	ReceiveTimeout time.Duration
	// IdleTimeout moves ACTIVE conversations without activity to TIMEOUT.
	// Zero disables the sweep.
	IdleTimeout time.Duration

	MaxInteractionsNotice string
	ErrorNotice           string

	// KeyFunc maps an inbound message to its conversation key. Defaults to DefaultKey.
	KeyFunc func(m core.Message) string
	// Observe sees every inbound message before it is queued.
	Observe func(m core.Message)
	// Intercept may consume an inbound message before it is queued for a
	// turn; it reports true when it did.
	Intercept func(m core.Message) bool

	Logger logging.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultKey derives the conversation key: the thread when present, else
// the sender and recipient pair.
func DefaultKey(m core.Message) string {
	if m.Thread != "" {
		return m.Thread
	}
	return m.Sender + "_" + m.To
}

func (o *Options) applyDefaults() {
	if o.Store == nil {
		o.Store = session.NewStore(func(so *session.Options) { so.Agent = o.Address })
	}
	if o.Tools == nil {
		o.Tools, _ = tool.NewRegistry()
	}
	if o.Resolver == nil {
		o.Resolver = routing.Default{}
	}
	if o.MaxToolIterations <= 0 {
		o.MaxToolIterations = DefaultMaxToolIterations
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = DefaultReceiveTimeout
	}
	if o.MaxInteractionsNotice == "" {
		o.MaxInteractionsNotice = DefaultMaxInteractionsNotice
	}
	if o.ErrorNotice == "" {
		o.ErrorNotice = DefaultErrorNotice
	}
	if o.KeyFunc == nil {
		o.KeyFunc = DefaultKey
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}
