package cli

import (
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-port-bridge/adapters/inmemory"
	"github.com/next-trace/scg-port-bridge/adapters/kafka"
	"github.com/next-trace/scg-port-bridge/adapters/nats"
	"github.com/next-trace/scg-port-bridge/adapters/rabbitmq"
	"github.com/next-trace/scg-port-bridge/bridge"
	"github.com/next-trace/scg-port-bridge/contract/port"
	"github.com/next-trace/scg-port-bridge/internal/config"
)

// buildEngine connects the configured transport. The returned cleanup
// releases the connection and is safe to call once.
func buildEngine(s config.Settings, logger *slog.Logger) (port.Engine, func(), error) {
	switch s.Transport {
	case "inmemory":
		// synchronous delivery keeps answers in input order, which FIFO pairing relies on
		e := inmemory.New(inmemory.Echo, inmemory.WithSynchronousDelivery(), inmemory.WithLogger(logger))
		return e, func() { _ = e.Close() }, nil
	case "nats":
		return nats.NewWithNATS(s.NATS, logger)
	case "rabbitmq":
		return rabbitmq.NewWithAMQPConn(s.RabbitMQ, logger)
	case "kafka":
		return kafka.NewWithKgo(s.Kafka, logger)
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
}

func correlator(s config.Settings) bridge.Correlator {
	switch s.CorrelationMode {
	case "header":
		return bridge.Header(s.CorrelationHeader)
	case "field":
		return bridge.JSONField(s.CorrelationField)
	default:
		return bridge.FIFO()
	}
}

// openBridge builds the engine and a bridge over it. The cleanup closes
// the bridge before the engine so in-flight callers are failed first.
func openBridge(app *App) (*bridge.Bridge, func(), error) {
	engine, closeEngine, err := buildEngine(app.Settings, app.Logger)
	if err != nil {
		return nil, nil, err
	}

	b := bridge.New(engine,
		bridge.WithLogger(app.Logger),
		bridge.WithTimeout(app.Settings.Timeout),
		bridge.WithCorrelator(correlator(app.Settings)),
	)

	return b, func() {
		_ = b.Close()
		closeEngine()
	}, nil
}
