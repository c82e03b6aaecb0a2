package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
	"github.com/next-trace/scg-port-bridge/contract/port"
)

// Concrete AMQP connection-backed constructor with auto-reconnect for both directions.

const exchangeKind = "topic"

type Config struct {
	URL         string
	ConnTimeout time.Duration
	Exchange    string
	InputKey    string
	OutputKey   string
	// Propagator, when set, injects context into the headers of every input.
	Propagator port.HeaderPropagator
}

type deliverFunc func(ctx context.Context, body []byte, headers map[string]string) uint64

type reconnectingClient struct {
	cfg     Config
	deliver deliverFunc
	logger  *slog.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan struct{}
	ready  chan struct{} // closed when a channel is ready
}

func newReconnectingClient(cfg Config, deliver deliverFunc, logger *slog.Logger) (*reconnectingClient, func()) {
	rc := &reconnectingClient{
		cfg:     cfg,
		deliver: deliver,
		logger:  logger,
		closed:  make(chan struct{}),
		ready:   make(chan struct{}),
	}
	go rc.run()
	cleanup := func() { rc.close() }

	return rc, cleanup
}

func (rc *reconnectingClient) Publish(ctx context.Context, m PubMsg) error {
	// Fast path: ensure channel available
	rc.mu.RLock()
	ch := rc.ch
	ready := rc.ready
	rc.mu.RUnlock()

	if ch == nil {
		// Wait for readiness or context cancellation
		select {
		case <-ready:
		case <-rc.closed:
			return fmt.Errorf("%w: rabbitmq client closed", berr.ErrPortClosed)
		case <-ctx.Done():
			return ctx.Err()
		}

		rc.mu.RLock()
		ch = rc.ch
		rc.mu.RUnlock()

		if ch == nil {
			return fmt.Errorf("%w: rabbitmq not connected", berr.ErrSendFailed)
		}
	}

	return amqpChannelPublisher{ch: ch}.Publish(ctx, m)
}

func (rc *reconnectingClient) connect() (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
	conn, err := amqp.DialConfig(rc.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-port-bridge"},
		Dial:       amqp.DefaultDial(rc.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	fail := func(err error) (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
		_ = conn.Close()
		return nil, nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fail(err)
	}

	if err := ch.ExchangeDeclare(rc.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return fail(err)
	}

	// exclusive, auto-delete reply queue; recreated on every reconnect
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fail(err)
	}

	if err := ch.QueueBind(q.Name, rc.cfg.OutputKey, rc.cfg.Exchange, false, nil); err != nil {
		return fail(err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fail(err)
	}

	return conn, ch, deliveries, nil
}

func (rc *reconnectingClient) consume(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		rc.deliver(context.Background(), d.Body, fromTable(d.Headers))
	}
}

func (rc *reconnectingClient) run() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	for {
		select {
		case <-rc.closed:
			return
		default:
		}

		conn, ch, deliveries, err := rc.connect()
		if err != nil {
			rc.logger.Warn("rabbitmq: connect failed", "err", err, "backoff", backoff)
			// exponential backoff with jitter
			jitter := time.Duration(rng.Int63n(int64(backoff / 2)))
			sleep := backoff + jitter/2
			if sleep > maxBackoff {
				sleep = maxBackoff
			}
			t := time.NewTimer(sleep)
			select {
			case <-rc.closed:
				t.Stop()
				return
			case <-t.C:
			}
			if backoff < maxBackoff {
				backoff = min(backoff*2, maxBackoff)
			}

			continue
		}

		// success
		backoff = time.Second

		rc.mu.Lock()
		rc.conn = conn
		rc.ch = ch
		close(rc.ready)
		rc.mu.Unlock()

		go rc.consume(deliveries)

		// Block on connection close notifications to trigger reconnect
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rc.closed:
			_ = ch.Close()
			_ = conn.Close()

			return
		case <-notify:
			rc.logger.Warn("rabbitmq: connection lost, reconnecting")

			rc.mu.Lock()
			rc.conn, rc.ch = nil, nil
			rc.ready = make(chan struct{})
			rc.mu.Unlock()

			_ = ch.Close()
			_ = conn.Close()
			// loop to reconnect
		}
	}
}

func (rc *reconnectingClient) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	select {
	case <-rc.closed:
		// already closed
		return
	default:
		close(rc.closed)
	}
	if rc.ch != nil {
		_ = rc.ch.Close()
		rc.ch = nil
	}
	if rc.conn != nil {
		_ = rc.conn.Close()
		rc.conn = nil
	}
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect, declares the exchange and reply
// queue, and returns an Engine wired in both directions along with a cleanup.
func NewWithAMQPConn(cfg Config, logger *slog.Logger) (*Engine, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrConnectFailed)
	}

	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	if cfg.InputKey == "" {
		cfg.InputKey = DefaultInputKey
	}

	if cfg.OutputKey == "" {
		cfg.OutputKey = DefaultOutputKey
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	eng := NewWithPropagator(nil, cfg.Exchange, cfg.InputKey, cfg.Propagator, logger)
	client, stop := newReconnectingClient(cfg, eng.Deliver, logger)
	eng.Publisher = client

	cleanup := func() {
		stop()
		eng.Port.Close()
	}

	return eng, cleanup, nil
}
