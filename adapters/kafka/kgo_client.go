package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
)

// Concrete franz-go based constructor, writer wrapper, and consumer loop.

type Config struct {
	Brokers []string
	TLS     *tls.Config
	// Acks is "all", "leader" or "none"; empty keeps the client default (all).
	Acks       string
	Idempotent bool
	ClientID   string
	// Compression is "gzip", "snappy", "lz4", "zstd" or "none"; empty keeps the client default.
	Compression string
	InputTopic  string
	OutputTopic string
	// Group is the consumer group for the output topic. Empty means direct partition
	// consumption, where every bridge process sees every output.
	Group string
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value, Headers: recordHeaders(headers)}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

func recordHeaders(headers map[string]string) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}

	out := make([]kgo.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	return out
}

func headerMap(rh []kgo.RecordHeader) map[string]string {
	if len(rh) == 0 {
		return nil
	}

	out := make(map[string]string, len(rh))
	for _, h := range rh {
		out[h.Key] = string(h.Value)
	}

	return out
}

func acks(name string) (kgo.Acks, bool) {
	switch strings.ToLower(name) {
	case "all", "-1":
		return kgo.AllISRAcks(), true
	case "leader", "1":
		return kgo.LeaderAck(), true
	case "none", "0":
		return kgo.NoAck(), true
	default:
		return kgo.Acks{}, false
	}
}

func compression(name string) (kgo.CompressionCodec, bool) {
	switch strings.ToLower(name) {
	case "gzip":
		return kgo.GzipCompression(), true
	case "snappy":
		return kgo.SnappyCompression(), true
	case "lz4":
		return kgo.Lz4Compression(), true
	case "zstd":
		return kgo.ZstdCompression(), true
	case "none":
		return kgo.NoCompression(), true
	default:
		return kgo.CompressionCodec{}, false
	}
}

func clientOpts(cfg Config) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.OutputTopic),
		// only outputs produced after startup are relevant to in-flight invocations
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	}
	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}
	if !cfg.Idempotent {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if c, ok := compression(cfg.Compression); ok {
		opts = append(opts, kgo.ProducerBatchCompression(c))
	}
	// idempotent writes require acks from all in-sync replicas
	if a, ok := acks(cfg.Acks); ok && (!cfg.Idempotent || cfg.Acks == "all" || cfg.Acks == "-1") {
		opts = append(opts, kgo.RequiredAcks(a))
	}

	return opts
}

// NewWithKgo builds a franz-go client based Engine. Outputs are polled from the output
// topic on a background goroutine. The returned cleanup stops polling and closes the client.
func NewWithKgo(cfg Config, logger *slog.Logger) (*Engine, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrConnectFailed)
	}

	if cfg.OutputTopic == "" {
		cfg.OutputTopic = DefaultOutputTopic
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cl, err := kgo.NewClient(clientOpts(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrConnectFailed, err)
	}

	eng := New(kgoWriter{cl: cl}, cfg.InputTopic, logger)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		poll(ctx, cl, eng, logger)
	}()

	cleanup := func() {
		cancel()
		wg.Wait()
		cl.Close()
		eng.Port.Close()
	}

	return eng, cleanup, nil
}

func poll(ctx context.Context, cl *kgo.Client, eng *Engine, logger *slog.Logger) {
	for {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}

			logger.WarnContext(ctx, "kafka: fetch error", "topic", topic, "partition", partition, "err", err)
		})

		fetches.EachRecord(func(r *kgo.Record) {
			eng.Deliver(ctx, r.Value, headerMap(r.Headers))
		})
	}
}
