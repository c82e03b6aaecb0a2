package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
)

// Bridge adapts request/response invocations onto an injected port.Engine.
//
// Bridge is safe for concurrent use. It holds no engine state of its own beyond the
// set of in-flight invocations; the engine's lifecycle belongs to the caller.
type Bridge struct {
	engine  port.Engine
	corr    Correlator
	timeout time.Duration
	logger  *slog.Logger

	// sendMu keeps correlator registration and the inbound send in one order
	// for correlators that pair by send order.
	sendMu sync.Mutex

	mu       sync.Mutex
	inflight map[string]*invocation
	closed   bool

	// drain is attached only while the correlator holds abandoned slots.
	drainMu sync.Mutex
	drain   port.Subscription
}

// New constructs a Bridge over engine. A nil engine, including a typed nil pointer,
// fails every invocation with ErrEngineNotConfigured.
func New(engine port.Engine, opts ...Option) *Bridge {
	if isNil(engine) {
		engine = nil
	}

	b := &Bridge{
		engine:   engine,
		corr:     FIFO(),
		logger:   slog.New(slog.DiscardHandler),
		inflight: make(map[string]*invocation),
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// Handle starts an invocation and returns immediately. complete is called exactly once,
// from the listener when a matching emission arrives, or with a non-nil error when the
// invocation is timed out, canceled, or cannot be sent. If the engine never answers and
// neither ctx nor the bridge bounds the invocation, complete is never called.
func (b *Bridge) Handle(ctx context.Context, input json.RawMessage, complete Callback) {
	b.start(ctx, input, func(r Result) {
		if complete != nil {
			complete(r.Err, r.Output)
		}
	})
}

// Submit starts an invocation and returns its Future.
func (b *Bridge) Submit(ctx context.Context, input json.RawMessage) *Future {
	f := newFuture()
	f.id = b.start(ctx, input, f.resolve)

	return f
}

// Invoke starts an invocation and blocks until it resolves. Its signature matches the
// usual serverless handler shape, so a Bridge can be served directly by such a host.
func (b *Bridge) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return b.Submit(ctx, input).Result()
}

// InFlight returns the number of invocations whose listener is still attached.
// A FIFO bridge may additionally hold one listener of its own while answers owed to
// timed-out or canceled invocations are outstanding.
func (b *Bridge) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.inflight)
}

// Close resolves every in-flight invocation with ErrBridgeClosed and rejects new ones.
// The engine is left untouched.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	pending := make([]*invocation, 0, len(b.inflight))

	for _, inv := range b.inflight {
		pending = append(pending, inv)
	}
	b.mu.Unlock()

	for _, inv := range pending {
		inv.finish(Result{Err: fmt.Errorf("invoke %s: %w", inv.id, berr.ErrBridgeClosed)})
	}

	b.syncDrain()

	return nil
}

func (b *Bridge) start(ctx context.Context, input json.RawMessage, complete func(Result)) string {
	if ctx == nil {
		ctx = context.Background()
	}

	inv := &invocation{id: uuid.NewString(), b: b, complete: complete}

	if b.timeout > 0 {
		ctx, inv.cancel = context.WithTimeout(ctx, b.timeout)
	}

	if err := b.register(inv); err != nil {
		inv.finish(Result{Err: err})
		return inv.id
	}

	if b.engine == nil {
		inv.finish(Result{Err: fmt.Errorf("invoke %s: %w", inv.id, berr.ErrEngineNotConfigured)})
		return inv.id
	}

	if err := ctx.Err(); err != nil {
		inv.finish(Result{Err: contextError(inv.id, err)})
		return inv.id
	}

	// Attach before sending so an engine answering inside Send is not missed.
	sub, err := b.engine.Subscribe(inv.onOutput)
	if err != nil {
		inv.finish(Result{Err: fmt.Errorf("invoke %s: %w", inv.id, errors.Join(berr.ErrSubscribeFailed, err))})
		return inv.id
	}

	if !inv.attach(sub) {
		return inv.id
	}

	b.logger.DebugContext(ctx, "bridge: listener attached", "invocation", inv.id)

	inv.watch(context.AfterFunc(ctx, func() {
		if inv.finish(Result{Err: contextError(inv.id, ctx.Err())}) {
			b.logger.WarnContext(context.WithoutCancel(ctx), "bridge: invocation ended before output",
				"invocation", inv.id, "err", ctx.Err())
		}
	}))

	if err := b.send(ctx, inv, input); err != nil {
		inv.finish(Result{Err: err})
	}

	return inv.id
}

func (b *Bridge) send(ctx context.Context, inv *invocation, input json.RawMessage) error {
	if _, ok := b.corr.(sendOrdered); ok {
		b.sendMu.Lock()
		defer b.sendMu.Unlock()
	}

	msg, ok, err := inv.begin(port.NewMessage(input, nil))
	if err != nil {
		return fmt.Errorf("invoke %s: %w", inv.id, errors.Join(berr.ErrCorrelationFailed, err))
	}

	if !ok {
		return nil
	}

	if err := b.engine.Send(ctx, msg); err != nil {
		// the engine never took the input, so no answer is owed to it
		b.end(inv.id, false)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return contextError(inv.id, err)
		}

		return fmt.Errorf("invoke %s send: %w", inv.id, errors.Join(berr.ErrSendFailed, err))
	}

	return nil
}

// end releases id from the correlator and keeps the drain listener in step.
func (b *Bridge) end(id string, sent bool) {
	b.corr.End(id, sent)
	b.syncDrain()
}

// syncDrain attaches the drain listener while abandoned slots remain and detaches it
// once they are gone or the bridge is closed.
func (b *Bridge) syncDrain() {
	d, ok := b.corr.(drainer)
	if !ok || b.engine == nil {
		return
	}

	b.drainMu.Lock()
	defer b.drainMu.Unlock()

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	want := !closed && d.Abandoned() > 0

	switch {
	case want && b.drain == nil:
		sub, err := b.engine.Subscribe(b.onDrain)
		if err != nil {
			b.logger.Warn("bridge: cannot attach drain listener", "err", err)
			return
		}
		b.drain = sub
	case !want && b.drain != nil:
		b.drain.Unsubscribe()
		b.drain = nil
	}
}

func (b *Bridge) onDrain(_ context.Context, msg port.Message) {
	d, ok := b.corr.(drainer)
	if !ok {
		return
	}

	if d.Drain(msg) == 0 {
		b.syncDrain()
	}
}

func (b *Bridge) register(inv *invocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("invoke %s: %w", inv.id, berr.ErrBridgeClosed)
	}

	b.inflight[inv.id] = inv

	return nil
}

func (b *Bridge) unregister(id string) {
	b.mu.Lock()
	delete(b.inflight, id)
	b.mu.Unlock()
}

func isNil(engine port.Engine) bool {
	if engine == nil {
		return true
	}

	v := reflect.ValueOf(engine)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

func contextError(id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("invoke %s: %w", id, errors.Join(berr.ErrInvocationTimeout, err))
	}

	return fmt.Errorf("invoke %s: %w", id, errors.Join(berr.ErrInvocationCanceled, err))
}
