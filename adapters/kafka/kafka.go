package kafka

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
	DefaultInputTopic  = "portbridge.input"
	DefaultOutputTopic = "portbridge.output"
)

// Writer is a minimal Kafka-like writer interface.
// Users can adapt franz-go, segmentio/kafka-go, or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Engine implements port.Engine using an injected Writer for inputs.
// Outputs are fed into Deliver by a consumer loop.
type Engine struct {
	*fanout.Port

	Writer Writer
	Topic  string
	// KeyHeader, when set, names the input header whose value becomes the record key.
	KeyHeader string
}

var _ port.Engine = (*Engine)(nil)

// New creates a new Kafka engine writing inputs to topic with the provided writer.
func New(w Writer, topic string, logger *slog.Logger) *Engine {
	if topic == "" {
		topic = DefaultInputTopic
	}

	return &Engine{Port: fanout.New(logger), Writer: w, Topic: topic}
}

func (e *Engine) Send(ctx context.Context, msg port.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.Writer == nil {
		return fmt.Errorf("kafka send: %w", berr.ErrEngineNotConfigured)
	}

	var key []byte
	if e.KeyHeader != "" {
		if v := msg.Header(e.KeyHeader); v != "" {
			key = []byte(v)
		}
	}

	headers := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}

	if err := e.Writer.Write(ctx, e.Topic, key, msg.Payload, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// separate return from preceding multi-line block (wsl)
		return fmt.Errorf("kafka send write: %w", errors.Join(berr.ErrSendFailed, err))
	}

	return nil
}

// Deliver broadcasts one consumed output record to attached listeners.
func (e *Engine) Deliver(ctx context.Context, value []byte, headers map[string]string) uint64 {
	return e.Emit(ctx, port.NewMessage(value, headers))
}
