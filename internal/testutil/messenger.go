package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Messenger is an in-process core.Messenger for tests. Inbound messages are
// queued with Push; outbound messages are recorded and can be awaited.
type Messenger struct {
	mu      sync.Mutex
	inbound chan core.Message
	sent    []core.Message
	failFor map[string]error
	onSend  func(core.Message)
	changed chan struct{}
}

// NewMessenger creates a messenger with a generous inbound buffer.
func NewMessenger() *Messenger {
	return &Messenger{
		inbound: make(chan core.Message, 256),
		failFor: map[string]error{},
		changed: make(chan struct{}, 1),
	}
}

// Push queues an inbound message.
func (m *Messenger) Push(msg core.Message) { m.inbound <- msg }

// FailFor makes every send to recipient fail with err.
func (m *Messenger) FailFor(recipient string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[recipient] = err
}

// OnSend registers a hook run after each successful send. Tests use it to
// script peers that answer what the agent sends.
func (m *Messenger) OnSend(fn func(core.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = fn
}

// Send implements core.Messenger.
func (m *Messenger) Send(_ context.Context, msg core.Message) error {
	m.mu.Lock()
	if err, ok := m.failFor[msg.To]; ok {
		m.mu.Unlock()
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	m.sent = append(m.sent, msg)
	hook := m.onSend
	m.mu.Unlock()

	select {
	case m.changed <- struct{}{}:
	default:
	}
	if hook != nil {
		hook(msg)
	}
	return nil
}

// Receive implements core.Messenger.
func (m *Messenger) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-m.inbound:
		return &msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sent returns a copy of every recorded outbound message.
func (m *Messenger) Sent() []core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Message(nil), m.sent...)
}

// SentTo returns the recorded messages addressed to recipient.
func (m *Messenger) SentTo(recipient string) []core.Message {
	var out []core.Message
	for _, msg := range m.Sent() {
		if msg.To == recipient {
			out = append(out, msg)
		}
	}
	return out
}

// WaitSent blocks until at least n messages were sent or timeout elapses and
// returns the recorded messages.
func (m *Messenger) WaitSent(n int, timeout time.Duration) []core.Message {
	deadline := time.After(timeout)
	for {
		if sent := m.Sent(); len(sent) >= n {
			return sent
		}
		select {
		case <-m.changed:
		case <-deadline:
			return m.Sent()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var _ core.Messenger = (*Messenger)(nil)
