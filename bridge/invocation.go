package bridge

import (
	"context"
	"sync"

	"github.com/next-trace/scg-port-bridge/contract/port"
)

// invocation moves through unattached -> attached -> resolved-and-detached.
type invocation struct {
	id       string
	b        *Bridge
	complete func(Result)
	cancel   context.CancelFunc

	mu    sync.Mutex
	sub   port.Subscription
	stop  func() bool
	begun bool
	done  bool
}

// attach records the subscription. If the invocation already resolved, the
// subscription is dropped immediately and attach reports false.
func (inv *invocation) attach(sub port.Subscription) bool {
	inv.mu.Lock()
	if inv.done {
		inv.mu.Unlock()
		sub.Unsubscribe()

		return false
	}

	inv.sub = sub
	inv.mu.Unlock()

	return true
}

func (inv *invocation) watch(stop func() bool) {
	inv.mu.Lock()
	if inv.done {
		inv.mu.Unlock()
		stop()

		return
	}

	inv.stop = stop
	inv.mu.Unlock()
}

// begin registers with the correlator unless the invocation already resolved.
func (inv *invocation) begin(msg port.Message) (port.Message, bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.done {
		return msg, false, nil
	}

	out, err := inv.b.corr.Begin(inv.id, msg)
	if err != nil {
		return msg, false, err
	}

	inv.begun = true

	return out, true, nil
}

func (inv *invocation) onOutput(ctx context.Context, msg port.Message) {
	if !inv.b.corr.Match(inv.id, msg) {
		return
	}

	if inv.finish(Result{Output: msg.Payload}) {
		inv.b.logger.DebugContext(ctx, "bridge: output delivered", "invocation", inv.id, "seq", msg.Seq)
	}
}

// finish resolves the invocation at most once. The listener is detached after complete
// returns, and also when complete panics.
func (inv *invocation) finish(r Result) bool {
	inv.mu.Lock()
	if inv.done {
		inv.mu.Unlock()
		return false
	}

	inv.done = true
	inv.mu.Unlock()

	defer inv.release()

	inv.complete(r)

	return true
}

func (inv *invocation) release() {
	inv.mu.Lock()
	sub, stop, begun := inv.sub, inv.stop, inv.begun
	inv.sub, inv.stop = nil, nil
	inv.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}

	if stop != nil {
		stop()
	}

	if begun {
		inv.b.end(inv.id, true)
	}

	if inv.cancel != nil {
		inv.cancel()
	}

	inv.b.unregister(inv.id)
}
