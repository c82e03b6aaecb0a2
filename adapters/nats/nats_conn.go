package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
)

// Concrete NATS connection-backed Client and constructor.

type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
	InputSubject  string
	OutputSubject string
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	var h nats.Header
	if len(headers) > 0 {
		h = nats.Header{}
		for k, v := range headers {
			h.Add(k, v)
		}
	}

	msg.Header = h

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

func flattenHeaders(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}

	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}

	return out
}

// NewWithNATS connects to NATS, subscribes the output subject into the engine's
// outbound port, and returns the Engine and a cleanup.
func NewWithNATS(cfg Config, logger *slog.Logger) (*Engine, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", berr.ErrConnectFailed)
	}

	if cfg.OutputSubject == "" {
		cfg.OutputSubject = DefaultOutputSubject
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", berr.ErrConnectFailed, err)
	}

	eng := New(natsClient{nc: nc}, cfg.InputSubject, logger)

	sub, err := nc.Subscribe(cfg.OutputSubject, func(m *nats.Msg) {
		eng.Deliver(context.Background(), m.Data, flattenHeaders(m.Header))
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("%w: nats subscribe %q: %w", berr.ErrConnectFailed, cfg.OutputSubject, err)
	}

	cleanup := func() {
		_ = sub.Unsubscribe() //nolint:errcheck // best-effort shutdown
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
		eng.Port.Close()
	}

	return eng, cleanup, nil
}
