package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// mailbox is an unbounded FIFO of inbound messages. Enqueue never blocks so
// the pump keeps draining the messenger while a turn is waiting on a peer.
type mailbox struct {
	mu     sync.Mutex
	queue  []core.Message
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (b *mailbox) put(m core.Message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *mailbox) take() (core.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return core.Message{}, false
	}
	m := b.queue[0]
	b.queue[0] = core.Message{}
	b.queue = b.queue[1:]
	return m, true
}

func (b *mailbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Deliver queues msg for a turn, bypassing the messenger. Observe and
// Intercept still see it.
func (o *Orchestrator) Deliver(msg core.Message) {
	o.accept(msg)
}

// Pending returns the number of queued messages awaiting a turn.
func (o *Orchestrator) Pending() int { return o.inbox.len() }

func (o *Orchestrator) accept(msg core.Message) {
	if o.opts.Observe != nil {
		o.opts.Observe(msg)
	}
	if o.opts.Intercept != nil && o.opts.Intercept(msg) {
		o.logger.Debug("orchestrator.message.intercepted", "id", msg.ID, "sender", msg.Sender)
		return
	}
	o.inbox.put(msg)
}

// Run receives messages until ctx is cancelled and processes them one turn
// at a time. It returns ctx.Err() on cancellation or the first receive error.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- o.pump(ctx) }()

	var sweep <-chan time.Time
	if o.opts.IdleTimeout > 0 {
		interval := o.opts.IdleTimeout / 2
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	o.logger.Info("orchestrator.started", "address", o.opts.Address)
	defer o.logger.Info("orchestrator.stopped", "address", o.opts.Address)

	for {
		o.drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pumpErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return ctx.Err()
		case <-sweep:
			o.SweepIdle(o.opts.Clock())
		case <-o.inbox.notify:
		}
	}
}

func (o *Orchestrator) drain(ctx context.Context) {
	for ctx.Err() == nil {
		msg, ok := o.inbox.take()
		if !ok {
			return
		}
		res, err := o.HandleMessage(ctx, msg)
		switch {
		case err != nil:
			o.logger.Error("orchestrator.turn.failed", "id", msg.ID, "sender", msg.Sender, "error", err)
		case res.Err() != nil:
			o.logger.Debug("orchestrator.turn.skipped", "id", msg.ID, "outcome", string(res.Outcome), "reason", res.Err())
		}
	}
}

// pump moves messages from the messenger into the mailbox.
func (o *Orchestrator) pump(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := o.messenger.Receive(ctx, o.opts.ReceiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msg == nil {
			continue
		}
		o.accept(*msg)
	}
}
