package port_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/next-trace/scg-port-bridge/contract/port"
)

func TestMessage_ClaimOnce(t *testing.T) {
	m := port.NewMessage([]byte(`{}`), nil).WithClaim()

	var wins atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(copyOf port.Message) {
			defer wg.Done()

			if copyOf.Claim() {
				wins.Add(1)
			}
		}(m)
	}

	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("want exactly one claim, got %d", wins.Load())
	}
}

func TestMessage_ClaimWithoutToken(t *testing.T) {
	m := port.NewMessage([]byte(`{}`), nil)
	if !m.Claim() || !m.Claim() {
		t.Fatalf("message without token must always be claimable")
	}
}

func TestMessage_WithHeaderDoesNotMutate(t *testing.T) {
	orig := map[string]string{"a": "1"}
	m := port.NewMessage(nil, orig)

	m2 := m.WithHeader("b", "2")
	if _, ok := orig["b"]; ok {
		t.Fatalf("original headers mutated: %+v", orig)
	}

	if m2.Header("a") != "1" || m2.Header("b") != "2" {
		t.Fatalf("headers=%+v", m2.Headers)
	}

	if (port.Message{}).Header("x") != "" {
		t.Fatalf("nil headers must read as empty")
	}
}
