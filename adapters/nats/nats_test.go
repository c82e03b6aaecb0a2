package nats_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-port-bridge/adapters/nats"
	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
)

type fakeClient struct {
	calls []struct {
		subject string
		data    []byte
		headers map[string]string
	}
	err error
}

func (f *fakeClient) Publish(subject string, data []byte, headers map[string]string) error {
	f.calls = append(f.calls, struct {
		subject string
		data    []byte
		headers map[string]string
	}{subject, data, headers})

	return f.err
}

func TestNATS_SendPublishesWithHeaders(t *testing.T) {
	fc := &fakeClient{}
	eng := nats.New(fc, "", nil)

	in := map[string]string{"x-correlation-id": "c1"}
	if err := eng.Send(t.Context(), port.NewMessage([]byte(`{"a":1}`), in)); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(fc.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fc.calls))
	}

	c := fc.calls[0]
	if c.subject != nats.DefaultInputSubject {
		t.Fatalf("subject mismatch: %s", c.subject)
	}

	if string(c.data) != `{"a":1}` {
		t.Fatalf("data=%s", c.data)
	}

	if c.headers["x-correlation-id"] != "c1" {
		t.Fatalf("headers missing or wrong: %+v", c.headers)
	}

	// headers handed to the client are a copy
	c.headers["x"] = "y"
	if _, ok := in["x"]; ok {
		t.Fatalf("caller headers mutated")
	}
}

func TestNATS_DeliverBroadcasts(t *testing.T) {
	eng := nats.New(&fakeClient{}, "in", nil)

	var got []port.Message

	sub, err := eng.Subscribe(func(ctx context.Context, m port.Message) { got = append(got, m) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if seq := eng.Deliver(t.Context(), []byte(`{"r":1}`), map[string]string{"k": "v"}); seq != 1 {
		t.Fatalf("seq=%d", seq)
	}

	sub.Unsubscribe()
	eng.Deliver(t.Context(), []byte(`{"r":2}`), nil)

	if len(got) != 1 || string(got[0].Payload) != `{"r":1}` || got[0].Header("k") != "v" {
		t.Fatalf("got=%+v", got)
	}
}

func TestNATS_NilClientError(t *testing.T) {
	eng := nats.New(nil, "", nil)

	if err := eng.Send(t.Context(), port.Message{}); !errors.Is(err, berr.ErrEngineNotConfigured) {
		t.Fatalf("expected ErrEngineNotConfigured, got %v", err)
	}
}

func TestNATS_Publish_ErrorWrapping_And_ContextCancel(t *testing.T) {
	// client returns generic error -> should wrap
	fc := &fakeClient{err: errors.New("boom")}
	eng := nats.New(fc, "", nil)

	if err := eng.Send(t.Context(), port.Message{}); !errors.Is(err, berr.ErrSendFailed) {
		t.Fatalf("expected wrapped ErrSendFailed, got %v", err)
	}

	// client returns context.Canceled -> propagate as-is
	fc2 := &fakeClient{err: context.Canceled}
	eng2 := nats.New(fc2, "", nil)

	err := eng2.Send(t.Context(), port.Message{})
	if !errors.Is(err, context.Canceled) || errors.Is(err, berr.ErrSendFailed) {
		t.Fatalf("want bare context.Canceled, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := eng.Send(ctx, port.Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled before publish, got %v", err)
	}
}
