package bridge

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
)

// DefaultCorrelationHeader is the header used by Header when name is empty.
const DefaultCorrelationHeader = "x-correlation-id"

// Correlator pairs outbound emissions with pending invocations.
//
// Begin is called once per invocation just before its input is sent and may tag the
// message. Match is called from listeners for every emission and must be safe for
// concurrent use. End is called once the invocation resolves, whether or not it
// matched; sent reports whether the engine may still answer its input. End may be
// called again for the same id with sent false when the send turns out to have failed.
type Correlator interface {
	Begin(id string, msg port.Message) (port.Message, error)
	Match(id string, msg port.Message) bool
	End(id string, sent bool)
}

// sendOrdered is implemented by correlators that pair by send order. The bridge
// serializes Begin and the engine send only for these.
type sendOrdered interface{ sendOrdered() }

// drainer is implemented by correlators that keep slots for invocations which gave
// up before their answer arrived. While Abandoned is non-zero the bridge offers every
// emission to Drain, which discards answers owed to abandoned slots.
type drainer interface {
	Abandoned() int
	Drain(msg port.Message) (remaining int)
}

// FIFO returns the identity-less correlator: the oldest pending invocation claims the
// next unclaimed emission. It is only correct when the engine answers every input with
// exactly one emission, in send order.
//
// An invocation that ends without its answer (timeout, cancel, bridge close) keeps its
// slot as an abandoned marker; the marker swallows the next emission in its turn so
// the late answer is not handed to the invocation behind it.
func FIFO() Correlator { return &fifo{} }

type slot struct {
	id        string
	abandoned bool
}

type fifo struct {
	mu        sync.Mutex
	pending   []slot
	abandoned int
}

func (*fifo) sendOrdered() {}

func (f *fifo) Begin(id string, msg port.Message) (port.Message, error) {
	f.mu.Lock()
	f.pending = append(f.pending, slot{id: id})
	f.mu.Unlock()

	return msg, nil
}

func (f *fifo) Match(id string, msg port.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.discardLocked(msg) || len(f.pending) == 0 || f.pending[0].id != id {
		return false
	}

	if !msg.Claim() {
		return false
	}

	f.pending = f.pending[1:]

	return true
}

// discardLocked lets an abandoned head slot take msg. It reports whether the head
// was abandoned, in which case msg belongs to nobody else.
func (f *fifo) discardLocked(msg port.Message) bool {
	if len(f.pending) == 0 || !f.pending[0].abandoned {
		return false
	}

	if msg.Claim() {
		f.pending = f.pending[1:]
		f.abandoned--
	}

	return true
}

func (f *fifo) End(id string, sent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := slices.IndexFunc(f.pending, func(s slot) bool { return s.id == id })
	if i < 0 {
		return
	}

	switch {
	case !sent:
		if f.pending[i].abandoned {
			f.abandoned--
		}
		f.pending = slices.Delete(f.pending, i, i+1)
	case !f.pending[i].abandoned:
		f.pending[i].abandoned = true
		f.abandoned++
	}
}

func (f *fifo) Abandoned() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.abandoned
}

func (f *fifo) Drain(msg port.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.discardLocked(msg)

	return f.abandoned
}

// Header returns a correlator that carries the invocation id in a message header.
// The engine must copy the header from each input onto its answer.
func Header(name string) Correlator {
	if name == "" {
		name = DefaultCorrelationHeader
	}

	return headerCorrelator{name: name}
}

type headerCorrelator struct{ name string }

func (h headerCorrelator) Begin(id string, msg port.Message) (port.Message, error) {
	return msg.WithHeader(h.name, id), nil
}

func (h headerCorrelator) Match(id string, msg port.Message) bool {
	return msg.Header(h.name) == id && msg.Claim()
}

func (headerCorrelator) End(string, bool) {}

// JSONField returns a correlator that writes the invocation id into the JSON input at
// path (gjson/sjson syntax) and expects the engine to echo it at the same path.
// Outputs are delivered unchanged, id included.
func JSONField(path string) Correlator { return fieldCorrelator{path: path} }

type fieldCorrelator struct{ path string }

func (c fieldCorrelator) Begin(id string, msg port.Message) (port.Message, error) {
	if c.path == "" {
		return msg, fmt.Errorf("json field correlator: empty path: %w", berr.ErrCorrelationFailed)
	}

	payload := msg.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	if !gjson.ValidBytes(payload) {
		return msg, fmt.Errorf("json field correlator: input is not JSON: %w", berr.ErrCorrelationFailed)
	}

	tagged, err := sjson.SetBytes(payload, c.path, id)
	if err != nil {
		return msg, fmt.Errorf("json field correlator: %w", err)
	}

	msg.Payload = tagged

	return msg, nil
}

func (c fieldCorrelator) Match(id string, msg port.Message) bool {
	return gjson.GetBytes(msg.Payload, c.path).String() == id && msg.Claim()
}

func (fieldCorrelator) End(string, bool) {}
