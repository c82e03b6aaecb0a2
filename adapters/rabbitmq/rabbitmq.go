package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
	"github.com/next-trace/scg-port-bridge/fanout"
)

const (
	DefaultExchange  = "portbridge"
	DefaultInputKey  = "input"
	DefaultOutputKey = "output"
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Engine implements port.Engine over an AMQP exchange.
type Engine struct {
	*fanout.Port

	Publisher  Publisher
	Propagator port.HeaderPropagator // optional, for context propagation into headers
	Exchange   string
	RoutingKey string
}

var _ port.Engine = (*Engine)(nil)

func New(p Publisher, exchange, routingKey string, logger *slog.Logger) *Engine {
	if exchange == "" {
		exchange = DefaultExchange
	}

	if routingKey == "" {
		routingKey = DefaultInputKey
	}

	return &Engine{Port: fanout.New(logger), Publisher: p, Exchange: exchange, RoutingKey: routingKey}
}

// NewWithPropagator is New with a HeaderPropagator injecting context into every input's headers.
func NewWithPropagator(p Publisher, exchange, routingKey string, hp port.HeaderPropagator, logger *slog.Logger) *Engine {
	e := New(p, exchange, routingKey, logger)
	e.Propagator = hp

	return e
}

func (e *Engine) Send(ctx context.Context, msg port.Message) error {
	if err := e.ready(ctx); err != nil {
		return err
	}

	// copy headers to avoid mutating caller-provided map
	hdrs := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		hdrs[k] = v
	}
	// Inject tracing context via configured propagator (keeps adapter decoupled)
	if e.Propagator != nil {
		e.Propagator.Inject(ctx, hdrs)
	}

	m := PubMsg{
		Exchange:   e.Exchange,
		RoutingKey: e.RoutingKey,
		Body:       msg.Payload,
		Headers:    hdrs,
	}
	if err := e.Publisher.Publish(ctx, m); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq send publish: %w", errors.Join(berr.ErrSendFailed, err))
	}

	return nil
}

// Deliver broadcasts one consumed output to attached listeners.
func (e *Engine) Deliver(ctx context.Context, body []byte, headers map[string]string) uint64 {
	return e.Emit(ctx, port.NewMessage(body, headers))
}

func (e *Engine) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.Publisher == nil {
		return fmt.Errorf("rabbitmq send: %w", berr.ErrEngineNotConfigured)
	}

	return nil
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	h := amqp.Table{}
	for k, v := range headers {
		h[k] = v
	}

	return h
}

func fromTable(t amqp.Table) map[string]string {
	if len(t) == 0 {
		return nil
	}

	h := make(map[string]string, len(t))
	for k, v := range t {
		switch s := v.(type) {
		case string:
			h[k] = s
		case []byte:
			h[k] = string(s)
		default:
			h[k] = fmt.Sprint(v)
		}
	}

	return h
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Headers:      toTable(m.Headers),
			ContentType:  "application/json",
			Body:         m.Body,
		},
	)
}
