// Package inmemory connects agents of one process through a shared Hub.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// DefaultMailboxSize is the buffer of each endpoint's inbound queue.
const DefaultMailboxSize = 256

var (
	// ErrUnknownAddress is returned when sending to an unregistered address.
	ErrUnknownAddress = errors.New("unknown address")
	// ErrAddressInUse is returned when registering an address twice.
	ErrAddressInUse = errors.New("address already registered")
	// ErrClosed is returned by a closed endpoint.
	ErrClosed = errors.New("endpoint closed")
)

// Options configures a Hub.
type Options struct {
	MailboxSize int
	Logger      logging.Logger
}

// Hub routes messages between registered endpoints.
type Hub struct {
	opts Options

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

// NewHub creates an empty hub.
func NewHub(optFns ...func(o *Options)) *Hub {
	opts := Options{MailboxSize: DefaultMailboxSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Hub{opts: opts, endpoints: make(map[string]*Endpoint)}
}

// Register creates the endpoint for address.
func (h *Hub) Register(address string) (*Endpoint, error) {
	if address == "" {
		return nil, errors.New("address is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.endpoints[address]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, address)
	}
	ep := &Endpoint{
		hub:     h,
		address: address,
		inbox:   make(chan core.Message, h.opts.MailboxSize),
		done:    make(chan struct{}),
	}
	h.endpoints[address] = ep
	h.opts.Logger.Debug("transport.inmemory.registered", "address", address)
	return ep, nil
}

// Len returns the number of registered endpoints.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

func (h *Hub) deliver(ctx context.Context, m core.Message) error {
	h.mu.RLock()
	ep, ok := h.endpoints[m.To]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, m.To)
	}
	select {
	case ep.inbox <- m:
		return nil
	case <-ep.done:
		return fmt.Errorf("%w: %s", ErrClosed, m.To)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) unregister(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, address)
}

// Endpoint is one address on a Hub. It implements core.Messenger.
type Endpoint struct {
	hub     *Hub
	address string
	inbox   chan core.Message

	closeOnce sync.Once
	done      chan struct{}
}

// Address returns the endpoint's address.
func (e *Endpoint) Address() string { return e.address }

// Send implements core.Messenger. An empty sender is filled with the
// endpoint's address and an empty id with a fresh one.
func (e *Endpoint) Send(ctx context.Context, m core.Message) error {
	if m.Sender == "" {
		m.Sender = e.address
	}
	if m.ID == "" {
		m.ID = core.NewID()
	}
	return e.hub.deliver(ctx, m)
}

// Receive implements core.Messenger.
func (e *Endpoint) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-e.inbox:
		return &m, nil
	case <-timer.C:
		return nil, nil
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close removes the endpoint from its hub.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.hub.unregister(e.address)
		close(e.done)
	})
	return nil
}

var _ core.Messenger = (*Endpoint)(nil)
