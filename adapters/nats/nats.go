package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
	"github.com/next-trace/scg-port-bridge/fanout"
)

const (
	DefaultInputSubject  = "portbridge.input"
	DefaultOutputSubject = "portbridge.output"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
}

// Engine implements port.Engine over NATS subjects: inputs are published to Subject,
// and whatever the owner feeds into Deliver is broadcast to listeners.
type Engine struct {
	*fanout.Port

	Client  Client
	Subject string
}

// Ensure Engine implements the combined contract.
var _ port.Engine = (*Engine)(nil)

// New creates a NATS engine publishing inputs to subject with the provided client.
func New(c Client, subject string, logger *slog.Logger) *Engine {
	if subject == "" {
		subject = DefaultInputSubject
	}

	return &Engine{Port: fanout.New(logger), Client: c, Subject: subject}
}

func (e *Engine) Send(ctx context.Context, msg port.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.Client == nil {
		return fmt.Errorf("nats send: %w", berr.ErrEngineNotConfigured)
	}

	if err := e.Client.Publish(e.Subject, msg.Payload, copyHeaders(msg.Headers)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats send publish: %w", errors.Join(berr.ErrSendFailed, err))
	}

	return nil
}

// Deliver broadcasts one output received from the engine to attached listeners.
func (e *Engine) Deliver(ctx context.Context, data []byte, headers map[string]string) uint64 {
	return e.Emit(ctx, port.NewMessage(data, headers))
}

func copyHeaders(in map[string]string) map[string]string {
	h := make(map[string]string, len(in))
	for k, v := range in {
		h[k] = v
	}

	return h
}
