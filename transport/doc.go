// Package transport holds the messaging substrates agents talk through.
//
// Subpackages implement core.Messenger: inmemory connects agents inside one
// process through a Hub, http exchanges messages between processes over an
// echo server with JSON or CBOR bodies.
package transport
