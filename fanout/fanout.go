package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
)

// Port is a concurrency-safe outbound broadcaster. Every emission is delivered
// to the listeners attached at the moment Emit is called, in attach order.
//
// Port implements port.Outbound and is embedded by the transport adapters.
type Port struct {
	mu     sync.Mutex
	subs   []*subscription
	seq    uint64
	closed bool
	logger *slog.Logger
}

var _ port.Outbound = (*Port)(nil)

// New constructs a Port. A nil logger discards output.
func New(logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Port{logger: logger}
}

type subscription struct {
	p    *Port
	fn   port.Listener
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.p.remove(s) })
}

// Subscribe attaches l. It fails with ErrPortClosed after Close.
func (p *Port) Subscribe(l port.Listener) (port.Subscription, error) {
	if l == nil {
		return nil, fmt.Errorf("subscribe nil listener: %w", berr.ErrSubscribeFailed)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("subscribe: %w", berr.ErrPortClosed)
	}

	s := &subscription{p: p, fn: l}
	p.subs = append(p.subs, s)

	return s, nil
}

func (p *Port) remove(s *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, cur := range p.subs {
		if cur == s {
			// copy-on-write so in-progress Emit snapshots stay valid
			next := make([]*subscription, 0, len(p.subs)-1)
			next = append(next, p.subs[:i]...)
			next = append(next, p.subs[i+1:]...)
			p.subs = next

			return
		}
	}
}

// Emit broadcasts msg to all attached listeners and returns the assigned sequence number.
// Listeners run synchronously on the caller's goroutine without the lock held, so they
// may subscribe or unsubscribe freely. A panicking listener is logged and skipped.
// Emissions after Close are dropped and return 0.
func (p *Port) Emit(ctx context.Context, msg port.Message) uint64 {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "fanout: emission dropped on closed port")

		return 0
	}

	p.seq++
	msg.Seq = p.seq
	snapshot := p.subs
	p.mu.Unlock()

	msg = msg.WithClaim()

	for _, s := range snapshot {
		p.dispatch(ctx, s, msg)
	}

	return msg.Seq
}

func (p *Port) dispatch(ctx context.Context, s *subscription, msg port.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "fanout: listener panicked", "seq", msg.Seq, "panic", r)
		}
	}()

	s.fn(ctx, msg)
}

// Len returns the number of attached listeners.
func (p *Port) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.subs)
}

// Close detaches every listener and rejects further subscriptions. Safe to call twice.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.subs = nil
}
