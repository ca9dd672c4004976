package core

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Message is the envelope exchanged between agents over a Messenger.
type Message struct {
	ID       string            `json:"id" cbor:"id"`
	Sender   string            `json:"sender" cbor:"sender"`
	To       string            `json:"to" cbor:"to"`
	Thread   string            `json:"thread,omitempty" cbor:"thread,omitempty"`
	Body     string            `json:"body" cbor:"body"`
	Metadata map[string]string `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(sender, to, thread, body string) Message {
	return Message{ID: NewID(), Sender: sender, To: to, Thread: thread, Body: body}
}

// WithMetadata returns a copy of m with key set in its metadata.
func (m Message) WithMetadata(key, value string) Message {
	md := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[key] = value
	m.Metadata = md
	return m
}

// NewID generates a new unique identifier for messages and tool calls.
func NewID() string { return uuid.NewString() }

// fingerprintKey domain-separates message fingerprints from other blake3 uses.
var fingerprintKey = [32]byte{
	'a', 'g', 'e', 'n', 't', 'r', 'e', 'l', 'a', 'y', '.', 'm', 'e', 's', 's', 'a',
	'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint returns the idempotency key of a message: its id when present,
// otherwise a keyed blake3 digest of sender, recipient, thread and body.
func Fingerprint(m Message) string {
	if m.ID != "" {
		return m.ID
	}
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		// NewKeyed only fails on a wrong key length.
		panic("core: blake3 key initialization failed: " + err.Error())
	}
	for _, part := range []string{m.Sender, m.To, m.Thread, m.Body} {
		_, _ = hasher.Write([]byte(part))
		_, _ = hasher.Write([]byte{0})
	}
	return "fp:" + hex.EncodeToString(hasher.Sum(nil))
}
