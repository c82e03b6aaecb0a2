package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
	"github.com/next-trace/scg-port-bridge/fanout"
)

func TestPort_EmitReachesAllListenersInOrder(t *testing.T) {
	p := fanout.New(nil)

	var got []string

	for _, name := range []string{"a", "b", "c"} {
		if _, err := p.Subscribe(func(ctx context.Context, m port.Message) {
			got = append(got, name+":"+string(m.Payload))
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	seq := p.Emit(t.Context(), port.NewMessage([]byte(`1`), nil))
	if seq != 1 {
		t.Fatalf("seq=%d", seq)
	}

	want := []string{"a:1", "b:1", "c:1"}
	if len(got) != len(want) {
		t.Fatalf("got=%v", got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}

	if seq := p.Emit(t.Context(), port.NewMessage([]byte(`2`), nil)); seq != 2 {
		t.Fatalf("second seq=%d", seq)
	}
}

func TestPort_UnsubscribeInsideListener(t *testing.T) {
	p := fanout.New(nil)
	calls := 0

	var sub port.Subscription

	sub, err := p.Subscribe(func(ctx context.Context, m port.Message) {
		calls++
		sub.Unsubscribe()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p.Emit(t.Context(), port.Message{})
	p.Emit(t.Context(), port.Message{})

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}

	if p.Len() != 0 {
		t.Fatalf("len=%d", p.Len())
	}

	// idempotent
	sub.Unsubscribe()
}

func TestPort_ClaimIsExclusivePerEmission(t *testing.T) {
	p := fanout.New(nil)
	claims := 0

	for i := 0; i < 3; i++ {
		_, _ = p.Subscribe(func(ctx context.Context, m port.Message) {
			if m.Claim() {
				claims++
			}
		})
	}

	p.Emit(t.Context(), port.Message{})
	p.Emit(t.Context(), port.Message{})

	if claims != 2 {
		t.Fatalf("claims=%d, want one per emission", claims)
	}
}

func TestPort_PanickingListenerIsIsolated(t *testing.T) {
	p := fanout.New(nil)
	reached := false

	_, _ = p.Subscribe(func(ctx context.Context, m port.Message) { panic("boom") })
	_, _ = p.Subscribe(func(ctx context.Context, m port.Message) { reached = true })

	p.Emit(t.Context(), port.Message{})

	if !reached {
		t.Fatalf("second listener not reached after panic")
	}
}

func TestPort_Close(t *testing.T) {
	p := fanout.New(nil)
	calls := 0

	_, _ = p.Subscribe(func(ctx context.Context, m port.Message) { calls++ })
	p.Close()
	p.Close()

	if seq := p.Emit(t.Context(), port.Message{}); seq != 0 {
		t.Fatalf("emit after close returned seq=%d", seq)
	}

	if calls != 0 {
		t.Fatalf("listener called after close")
	}

	if _, err := p.Subscribe(func(ctx context.Context, m port.Message) {}); !errors.Is(err, berr.ErrPortClosed) {
		t.Fatalf("want ErrPortClosed, got %v", err)
	}
}

func TestPort_NilListener(t *testing.T) {
	p := fanout.New(nil)
	if _, err := p.Subscribe(nil); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}
}

func TestPort_ConcurrentSubscribeEmit(t *testing.T) {
	p := fanout.New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			sub, err := p.Subscribe(func(ctx context.Context, m port.Message) {})
			if err == nil {
				sub.Unsubscribe()
			}
		}()

		go func() {
			defer wg.Done()

			p.Emit(context.Background(), port.Message{})
		}()
	}

	wg.Wait()

	if p.Len() != 0 {
		t.Fatalf("len=%d", p.Len())
	}
}
