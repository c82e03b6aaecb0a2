package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/tidwall/sjson"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
	"github.com/next-trace/scg-port-bridge/fanout"
)

// ComputeFunc is the engine's computation: one output per input.
type ComputeFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// ErrNoResponse may be returned by a ComputeFunc to emit nothing for an input.
var ErrNoResponse = errors.New("inmemory: no response")

// Engine is a thread-safe in-process engine for tests, examples, and local runs.
// It records every input it receives and answers each one by emitting the
// ComputeFunc's result on its outbound port, echoing the input headers.
// Compute errors other than ErrNoResponse are encoded into the output as
// {"errorMessage": "..."}; they are never reported to the sender.
type Engine struct {
	*fanout.Port

	compute ComputeFunc
	sync    bool
	logger  *slog.Logger

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
	inputs []port.Message
}

// Ensure Engine implements the combined contract.
var _ port.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithSynchronousDelivery makes Send compute and emit before returning.
// By default each answer is emitted from its own goroutine.
func WithSynchronousDelivery() Option { return func(e *Engine) { e.sync = true } }

// WithLogger sets the logger used by the engine and its outbound port.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// Echo answers every input with itself.
func Echo(_ context.Context, input json.RawMessage) (json.RawMessage, error) { return input, nil }

// New creates an Engine around compute. A nil compute behaves like Echo.
func New(compute ComputeFunc, opts ...Option) *Engine {
	if compute == nil {
		compute = Echo
	}

	e := &Engine{compute: compute}
	for _, o := range opts {
		o(e)
	}

	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	e.Port = fanout.New(e.logger)

	return e
}

// Send records msg and schedules its answer.
func (e *Engine) Send(ctx context.Context, msg port.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// the closed check and wg.Add share e.mu with Close so Wait never races an Add
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("inmemory send: %w", berr.ErrPortClosed)
	}

	e.inputs = append(e.inputs, msg)
	e.wg.Add(1)
	e.mu.Unlock()

	// the answer outlives the caller's context, as a real engine's would
	runCtx := context.WithoutCancel(ctx)

	if e.sync {
		defer e.wg.Done()

		e.answer(runCtx, msg)

		return nil
	}

	go func() {
		defer e.wg.Done()

		e.answer(runCtx, msg)
	}()

	return nil
}

func (e *Engine) answer(ctx context.Context, in port.Message) {
	out, err := e.compute(ctx, in.Payload)

	switch {
	case errors.Is(err, ErrNoResponse):
		e.logger.DebugContext(ctx, "inmemory: no response for input")
		return
	case err != nil:
		out = errorDocument(err)
	}

	var headers map[string]string
	if len(in.Headers) > 0 {
		headers = maps.Clone(in.Headers)
	}

	e.Emit(ctx, port.NewMessage(out, headers))
}

func errorDocument(err error) json.RawMessage {
	doc, serr := sjson.SetBytes([]byte(`{}`), "errorMessage", err.Error())
	if serr != nil {
		return json.RawMessage(`{"errorMessage":"unencodable error"}`)
	}

	return doc
}

// Inputs returns a copy of every message sent to the engine so far.
func (e *Engine) Inputs() []port.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]port.Message(nil), e.inputs...)
}

// Wait blocks until all scheduled answers have been emitted.
func (e *Engine) Wait() { e.wg.Wait() }

// Close stops accepting inputs, waits for pending answers, and closes the outbound port.
func (e *Engine) Close() error {
	e.mu.Lock()
	already := e.closed
	e.closed = true
	e.mu.Unlock()

	if !already {
		e.wg.Wait()
		e.Port.Close()
	}

	return nil
}
