package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/orchestrator"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
)

var (
	// ErrUnknownWorker is returned for worker ids outside the configured set.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrWorkerTimeout is returned when a worker did not answer in time.
	ErrWorkerTimeout = errors.New("worker did not respond")
)

// DefaultResponseTimeout bounds a SendToAgent wait.
const DefaultResponseTimeout = 60 * time.Second

// Status is the delegation status of one worker.
type Status string

const (
	// StatusUnknown means no command has been sent to the worker yet.
	StatusUnknown Status = "unknown"
	// StatusSentCommand means a command is awaiting the worker's reply.
	StatusSentCommand Status = "sent_command"
	// StatusResponded means the last command was answered.
	StatusResponded Status = "responded"
	// StatusTimeout means the last command got no reply in time.
	StatusTimeout Status = "timeout"
)

// Options configures a Coordinator.
type Options struct {
	// Address is the supervisor's own address.
	Address string
	// SessionKey is the coordination conversation key.
	SessionKey string
	Workers    []string

	ResponseTimeout time.Duration
	// TerminationMarkers mark the supervisor's final answer. Defaults to TERMINATE.
	TerminationMarkers []string

	Logger logging.Logger
}

// Coordinator lets a supervisor agent delegate sub-tasks to worker agents
// inside one shared coordination conversation.
type Coordinator struct {
	opts      Options
	messenger core.Messenger
	logger    logging.Logger
	// workers is fixed at construction and read without the lock.
	workers map[string]struct{}

	mu        sync.Mutex
	status    map[string]Status
	requester string
	waiting   map[string]chan core.Message

	// store is set once the coordinator is attached to an orchestrator.
	store *session.Store
}

// New creates a coordinator that reaches workers through messenger.
func New(messenger core.Messenger, optFns ...func(o *Options)) (*Coordinator, error) {
	opts := Options{
		ResponseTimeout:    DefaultResponseTimeout,
		TerminationMarkers: []string{"TERMINATE"},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if messenger == nil {
		return nil, errors.New("coordinator: messenger is required")
	}
	if opts.Address == "" {
		return nil, errors.New("coordinator: address is required")
	}
	if opts.SessionKey == "" {
		return nil, errors.New("coordinator: session key is required")
	}
	if len(opts.Workers) == 0 {
		return nil, errors.New("coordinator: at least one worker is required")
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	workers := make(map[string]struct{}, len(opts.Workers))
	status := make(map[string]Status, len(opts.Workers))
	for _, w := range opts.Workers {
		if w == opts.Address {
			return nil, fmt.Errorf("coordinator: worker %q is the supervisor itself", w)
		}
		workers[w] = struct{}{}
		status[w] = StatusUnknown
	}

	return &Coordinator{
		opts:      opts,
		messenger: messenger,
		logger:    opts.Logger,
		workers:   workers,
		status:    status,
		waiting:   make(map[string]chan core.Message),
	}, nil
}

// NewOrchestrator builds the supervisor's orchestrator. The caller's options
// are applied first; the coordinator then installs its keying, observation,
// interception and routing hooks around them and registers its tools.
func (c *Coordinator) NewOrchestrator(m model.Model, optFns ...func(o *orchestrator.Options)) (*orchestrator.Orchestrator, error) {
	var setupErr error
	all := append(slices.Clone(optFns), func(o *orchestrator.Options) {
		setupErr = c.configure(o)
	})
	orch, err := orchestrator.New(c.messenger, m, all...)
	if err != nil {
		return nil, err
	}
	if setupErr != nil {
		return nil, setupErr
	}
	return orch, nil
}

func (c *Coordinator) configure(o *orchestrator.Options) error {
	o.Address = c.opts.Address
	if o.Store == nil {
		o.Store = session.NewStore(func(so *session.Options) { so.Agent = c.opts.Address })
	}
	c.store = o.Store

	if o.Tools == nil {
		reg, err := tool.NewRegistry()
		if err != nil {
			return err
		}
		o.Tools = reg
	}
	if err := o.Tools.Register(c.Tools()...); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	for _, m := range c.opts.TerminationMarkers {
		if !slices.Contains(o.TerminationMarkers, m) {
			o.TerminationMarkers = append(o.TerminationMarkers, m)
		}
	}

	fallbackKey := o.KeyFunc
	if fallbackKey == nil {
		fallbackKey = orchestrator.DefaultKey
	}
	o.KeyFunc = func(m core.Message) string { return c.key(m, fallbackKey) }

	observe := o.Observe
	o.Observe = func(m core.Message) {
		c.Observe(m)
		if observe != nil {
			observe(m)
		}
	}

	intercept := o.Intercept
	o.Intercept = func(m core.Message) bool {
		if c.Intercept(m) {
			return true
		}
		return intercept != nil && intercept(m)
	}

	fallback := o.Resolver
	if fallback == nil {
		fallback = routing.Default{}
	}
	o.Resolver = &resolver{c: c, fallback: fallback}
	return nil
}

// SessionKey returns the coordination conversation key.
func (c *Coordinator) SessionKey() string { return c.opts.SessionKey }

// Workers returns the configured worker ids in order.
func (c *Coordinator) Workers() []string { return slices.Clone(c.opts.Workers) }

// IsWorker reports whether id belongs to the worker set.
func (c *Coordinator) IsWorker(id string) bool {
	_, ok := c.workers[id]
	return ok
}

// Requester returns the captured original requester, or "".
func (c *Coordinator) Requester() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requester
}

// Status returns the delegation status of worker.
func (c *Coordinator) Status(worker string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.status[worker]; ok {
		return s
	}
	return StatusUnknown
}

func (c *Coordinator) setStatus(worker string, s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[worker] = s
}

func (c *Coordinator) key(m core.Message, fallback func(core.Message) string) string {
	if c.IsWorker(m.Sender) || c.IsWorker(m.To) || m.Thread == c.opts.SessionKey {
		return c.opts.SessionKey
	}
	return fallback(m)
}

// Observe captures the first sender outside the worker set as the original requester.
func (c *Coordinator) Observe(m core.Message) {
	if m.Sender == "" || m.Sender == c.opts.Address || c.IsWorker(m.Sender) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requester == "" {
		c.requester = m.Sender
		c.logger.Info("coordinator.requester.captured", "requester", m.Sender)
	}
}

// Intercept resolves an outstanding SendToAgent wait with m. It reports
// false for every message nobody is waiting for; those take an ordinary turn.
func (c *Coordinator) Intercept(m core.Message) bool {
	c.mu.Lock()
	ch, ok := c.waiting[m.Sender]
	if ok {
		delete(c.waiting, m.Sender)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- m
	return true
}

// SendToAgent sends command to worker on the coordination thread and waits
// for that worker's reply. Replies from other senders are left to ordinary
// turn processing. The returned text contains the worker's reply body.
func (c *Coordinator) SendToAgent(ctx context.Context, worker, command string) (string, error) {
	return c.sendToAgent(ctx, "", worker, command)
}

func (c *Coordinator) sendToAgent(ctx context.Context, turnKey, worker, command string) (string, error) {
	if !c.IsWorker(worker) {
		return "", fmt.Errorf("%w: %s (known workers: %s)", ErrUnknownWorker, worker, strings.Join(c.opts.Workers, ", "))
	}

	reply := make(chan core.Message, 1)
	c.mu.Lock()
	c.waiting[worker] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.waiting[worker] == reply {
			delete(c.waiting, worker)
		}
		c.mu.Unlock()
	}()

	out := core.NewMessage(c.opts.Address, worker, c.opts.SessionKey, command)
	if err := c.messenger.Send(ctx, out); err != nil {
		return "", fmt.Errorf("send command to %s: %w", worker, err)
	}
	c.setStatus(worker, StatusSentCommand)
	c.logger.Info("coordinator.worker.sent", "worker", worker, "id", out.ID)

	timer := time.NewTimer(c.opts.ResponseTimeout)
	defer timer.Stop()

	select {
	case m := <-reply:
		c.setStatus(worker, StatusResponded)
		c.logger.Info("coordinator.worker.responded", "worker", worker)
		// A turn on the coordination key already records the reply as its tool result.
		if c.store != nil && turnKey != c.opts.SessionKey {
			c.store.AddMessage(c.opts.SessionKey, core.FromMessage(m))
		}
		return fmt.Sprintf("Response from %s: %s", worker, m.Body), nil
	case <-timer.C:
		c.setStatus(worker, StatusTimeout)
		c.logger.Warn("coordinator.worker.timeout", "worker", worker, "timeout", c.opts.ResponseTimeout)
		return "", fmt.Errorf("%w: %s within %s", ErrWorkerTimeout, worker, c.opts.ResponseTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ListSubagents renders every worker with its status, one per line.
func (c *Coordinator) ListSubagents() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	b.WriteString("Available agents:")
	for _, w := range c.opts.Workers {
		fmt.Fprintf(&b, "\n- %s: %s", w, c.status[w])
	}
	return b.String()
}

// resolver routes the supervisor's replies: a final answer goes to the
// original requester with markers stripped, worker traffic goes back to the
// supervisor, its own notes go nowhere and everything else to the fallback.
type resolver struct {
	c        *Coordinator
	fallback routing.Resolver
}

func (r *resolver) Resolve(ctx context.Context, original core.Message, text string, tc routing.TurnContext) (routing.Route, error) {
	c := r.c
	markers := c.opts.TerminationMarkers
	if orchestrator.ContainsMarker(text, markers) {
		if req := c.Requester(); req != "" {
			return routing.Route{
				Recipients: []string{req},
				Transform:  func(s string) string { return orchestrator.StripMarkers(s, markers) },
			}, nil
		}
	}
	switch {
	case original.Sender == c.opts.Address:
		return routing.Route{}, nil
	case c.IsWorker(original.Sender):
		return routing.To(c.opts.Address), nil
	}
	return r.fallback.Resolve(ctx, original, text, tc)
}
