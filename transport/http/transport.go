// Package http exchanges agent messages between processes.
//
// Each agent runs a Transport: an echo server accepting POST /v1/messages
// into a bounded inbox, and a client that delivers outbound messages to the
// base URL its peers table lists for the recipient. Bodies are JSON or CBOR.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// MessagesPath is the inbound endpoint.
const MessagesPath = "/v1/messages"

// DefaultInboxSize bounds queued inbound messages.
const DefaultInboxSize = 256

var (
	// ErrUnknownPeer is returned when no base URL is known for a recipient.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrInboxFull is reported to senders when the inbox cannot take more messages.
	ErrInboxFull = errors.New("inbox full")
)

// Options configures a Transport.
type Options struct {
	// Address is the agent address served by this transport.
	Address string
	// Peers maps recipient addresses to base URLs such as http://host:8080.
	Peers     map[string]string
	Codec     Codec
	InboxSize int
	Client    *http.Client
	Logger    logging.Logger
}

// Transport is an HTTP core.Messenger.
type Transport struct {
	opts  Options
	echo  *echo.Echo
	inbox chan core.Message
}

// New creates a transport. Call Start to listen or mount Handler yourself.
func New(optFns ...func(o *Options)) (*Transport, error) {
	opts := Options{
		Codec:     JSONCodec{},
		InboxSize: DefaultInboxSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Address == "" {
		return nil, errors.New("transport/http: address is required")
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	t := &Transport{
		opts:  opts,
		echo:  e,
		inbox: make(chan core.Message, opts.InboxSize),
	}
	e.GET("/health", t.handleHealth)
	e.POST(MessagesPath, t.handleMessage)
	return t, nil
}

// Handler returns the HTTP handler serving the inbound endpoints.
func (t *Transport) Handler() http.Handler { return t.echo }

// Start listens on addr until Shutdown.
func (t *Transport) Start(addr string) error {
	if err := t.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (t *Transport) Shutdown(ctx context.Context) error {
	return t.echo.Shutdown(ctx)
}

// AddPeer registers or replaces the base URL of address.
func (t *Transport) AddPeer(address, baseURL string) {
	if t.opts.Peers == nil {
		t.opts.Peers = map[string]string{}
	}
	t.opts.Peers[address] = strings.TrimRight(baseURL, "/")
}

func (t *Transport) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"address": t.opts.Address,
		"pending": len(t.inbox),
	})
}

type acceptedResponse struct {
	ID string `json:"id"`
}

func (t *Transport) handleMessage(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}
	var m core.Message
	if err := codecForContentType(c.Request().Header.Get(echo.HeaderContentType)).Unmarshal(body, &m); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message"})
	}
	if m.Sender == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sender is required"})
	}
	if m.To != "" && m.To != t.opts.Address {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "recipient not served here"})
	}
	m.To = t.opts.Address
	if m.ID == "" {
		m.ID = core.NewID()
	}

	select {
	case t.inbox <- m:
	default:
		t.opts.Logger.Warn("transport.http.inbox_full", "sender", m.Sender, "id", m.ID)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": ErrInboxFull.Error()})
	}
	t.opts.Logger.Debug("transport.http.received", "sender", m.Sender, "id", m.ID)
	return c.JSON(http.StatusAccepted, acceptedResponse{ID: m.ID})
}

// Send implements core.Messenger.
func (t *Transport) Send(ctx context.Context, m core.Message) error {
	base, ok := t.opts.Peers[m.To]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, m.To)
	}
	if m.Sender == "" {
		m.Sender = t.opts.Address
	}
	if m.ID == "" {
		m.ID = core.NewID()
	}

	body, err := t.opts.Codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(echo.HeaderContentType, t.opts.Codec.ContentType())

	resp, err := t.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", m.To, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deliver to %s: status %d: %s", m.To, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Receive implements core.Messenger.
func (t *Transport) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.inbox:
		return &m, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ core.Messenger = (*Transport)(nil)
