package port

import (
	"encoding/json"
	"maps"
	"sync/atomic"
)

// Message is one value travelling on an engine port.
// Payload is opaque to the bridge; its shape is defined by the engine.
type Message struct {
	// Seq is assigned by the outbound broadcaster, starting at 1. Zero on inbound messages.
	Seq     uint64
	Payload json.RawMessage
	Headers map[string]string

	claim *atomic.Bool
}

// NewMessage builds a message carrying payload with an optional header set.
func NewMessage(payload json.RawMessage, headers map[string]string) Message {
	return Message{Payload: payload, Headers: headers}
}

// WithClaim returns a copy of m carrying a fresh claim token. Broadcasters stamp
// every emission so that listeners sharing one delivery can compete for it.
func (m Message) WithClaim() Message {
	m.claim = new(atomic.Bool)
	return m
}

// Claim reports whether the caller is the first to claim this emission.
// Messages without a claim token are always claimable.
func (m Message) Claim() bool {
	if m.claim == nil {
		return true
	}

	return m.claim.CompareAndSwap(false, true)
}

// Header returns the header value for key, or "".
func (m Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}

	return m.Headers[key]
}

// WithHeader returns a copy of m with key set. The original header map is not mutated.
func (m Message) WithHeader(key, value string) Message {
	h := make(map[string]string, len(m.Headers)+1)
	maps.Copy(h, m.Headers)
	h[key] = value
	m.Headers = h

	return m
}
