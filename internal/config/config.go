package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/next-trace/scg-port-bridge/adapters/kafka"
	"github.com/next-trace/scg-port-bridge/adapters/nats"
	"github.com/next-trace/scg-port-bridge/adapters/rabbitmq"
)

// Transports lists the engine transports the CLI can build.
var Transports = []string{"inmemory", "nats", "rabbitmq", "kafka"}

// CorrelationModes lists the accepted correlation.mode values.
var CorrelationModes = []string{"fifo", "header", "field"}

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the default configuration options and their meanings.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "transport", Default: "inmemory", Comment: "Engine transport: inmemory|nats|rabbitmq|kafka"},
		{Key: "timeout", Default: "0s", Comment: "Per-invocation bound; 0 waits until the engine answers"},

		{Key: "correlation.mode", Default: "fifo", Comment: "How outputs are paired with inputs: fifo|header|field"},
		{Key: "correlation.header", Default: "x-correlation-id", Comment: "Header carrying the invocation id (mode=header)"},
		{Key: "correlation.field", Default: "requestId", Comment: "JSON path carrying the invocation id (mode=field)"},

		{Key: "stream.parallel", Default: 4, Comment: "Concurrent invocations for the stream command"},

		{Key: "log.level", Default: "info", Comment: "debug|info|warn|error"},
		{Key: "log.format", Default: "text", Comment: "text|json"},

		{Key: "nats.url", Default: "", Comment: "NATS server URL"},
		{Key: "nats.name", Default: "portbridge", Comment: "NATS connection name"},
		{Key: "nats.conn_timeout", Default: "5s", Comment: "NATS dial timeout"},
		{Key: "nats.max_reconnects", Default: 60, Comment: "NATS reconnect attempts; -1 retries forever"},
		{Key: "nats.input_subject", Default: nats.DefaultInputSubject, Comment: "Subject inputs are published to"},
		{Key: "nats.output_subject", Default: nats.DefaultOutputSubject, Comment: "Subject outputs are read from"},

		{Key: "rabbitmq.url", Default: "", Comment: "AMQP URL"},
		{Key: "rabbitmq.conn_timeout", Default: "5s", Comment: "AMQP dial timeout"},
		{Key: "rabbitmq.exchange", Default: rabbitmq.DefaultExchange, Comment: "Topic exchange for both directions"},
		{Key: "rabbitmq.input_key", Default: rabbitmq.DefaultInputKey, Comment: "Routing key for inputs"},
		{Key: "rabbitmq.output_key", Default: rabbitmq.DefaultOutputKey, Comment: "Routing key bound for outputs"},

		{Key: "kafka.brokers", Default: []string{}, Comment: "Seed brokers"},
		{Key: "kafka.client_id", Default: "portbridge", Comment: "Kafka client id"},
		{Key: "kafka.input_topic", Default: kafka.DefaultInputTopic, Comment: "Topic inputs are produced to"},
		{Key: "kafka.output_topic", Default: kafka.DefaultOutputTopic, Comment: "Topic outputs are consumed from"},
		{Key: "kafka.group", Default: "", Comment: "Consumer group for outputs; empty reads all partitions directly"},
		{Key: "kafka.acks", Default: "", Comment: "Producer acks: all|leader|none; empty keeps the client default"},
		{Key: "kafka.idempotent", Default: false, Comment: "Idempotent producer writes (requires acks all)"},
		{Key: "kafka.compression", Default: "", Comment: "Batch compression: gzip|snappy|lz4|zstd|none"},
	}
}

// applyDefaults seeds Viper with defaults defined in GetConfigOptions.
func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env < flags.
// The provided Viper instance is mutated with defaults, file contents, and env.
func Load(ctx context.Context, v *viper.Viper) error {
	_ = ctx

	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("portbridge")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "portbridge"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "portbridge"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// a missing optional file is fine; a named file that fails to load is not
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: PORTBRIDGE_* (e.g. PORTBRIDGE_NATS_URL)
	v.SetEnvPrefix("portbridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow comma-separated env override for kafka.brokers
	if s := strings.TrimSpace(os.Getenv("PORTBRIDGE_KAFKA_BROKERS")); s != "" {
		v.Set("kafka.brokers", splitList(s))
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}

	return out
}

// Settings is the resolved, typed view of the configuration.
type Settings struct {
	Transport         string
	Timeout           time.Duration
	CorrelationMode   string
	CorrelationHeader string
	CorrelationField  string
	Parallel          int
	LogLevel          string
	LogFormat         string

	NATS     nats.Config
	RabbitMQ rabbitmq.Config
	Kafka    kafka.Config
}

// Resolve reads Settings from a loaded Viper instance.
func Resolve(v *viper.Viper) Settings {
	return Settings{
		Transport:         strings.ToLower(strings.TrimSpace(v.GetString("transport"))),
		Timeout:           v.GetDuration("timeout"),
		CorrelationMode:   strings.ToLower(strings.TrimSpace(v.GetString("correlation.mode"))),
		CorrelationHeader: v.GetString("correlation.header"),
		CorrelationField:  v.GetString("correlation.field"),
		Parallel:          v.GetInt("stream.parallel"),
		LogLevel:          v.GetString("log.level"),
		LogFormat:         v.GetString("log.format"),
		NATS: nats.Config{
			URL:           v.GetString("nats.url"),
			Name:          v.GetString("nats.name"),
			ConnTimeout:   v.GetDuration("nats.conn_timeout"),
			MaxReconnects: v.GetInt("nats.max_reconnects"),
			InputSubject:  v.GetString("nats.input_subject"),
			OutputSubject: v.GetString("nats.output_subject"),
		},
		RabbitMQ: rabbitmq.Config{
			URL:         v.GetString("rabbitmq.url"),
			ConnTimeout: v.GetDuration("rabbitmq.conn_timeout"),
			Exchange:    v.GetString("rabbitmq.exchange"),
			InputKey:    v.GetString("rabbitmq.input_key"),
			OutputKey:   v.GetString("rabbitmq.output_key"),
		},
		Kafka: kafka.Config{
			Brokers:     v.GetStringSlice("kafka.brokers"),
			ClientID:    v.GetString("kafka.client_id"),
			InputTopic:  v.GetString("kafka.input_topic"),
			OutputTopic: v.GetString("kafka.output_topic"),
			Group:       v.GetString("kafka.group"),
			Acks:        v.GetString("kafka.acks"),
			Idempotent:  v.GetBool("kafka.idempotent"),
			Compression: v.GetString("kafka.compression"),
		},
	}
}

// CheckConfigValidity reports every problem found in v as one error.
func CheckConfigValidity(v *viper.Viper) error {
	s := Resolve(v)

	var problems []string

	if !slices.Contains(Transports, s.Transport) {
		problems = append(problems, fmt.Sprintf("transport %q must be one of %v", s.Transport, Transports))
	}

	if s.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}

	if !slices.Contains(CorrelationModes, s.CorrelationMode) {
		problems = append(problems, fmt.Sprintf("correlation.mode %q must be one of %v", s.CorrelationMode, CorrelationModes))
	}

	if s.CorrelationMode == "header" && strings.TrimSpace(s.CorrelationHeader) == "" {
		problems = append(problems, "correlation.header is required for mode header")
	}

	if s.CorrelationMode == "field" && strings.TrimSpace(s.CorrelationField) == "" {
		problems = append(problems, "correlation.field is required for mode field")
	}

	if s.Parallel <= 0 {
		problems = append(problems, "stream.parallel must be greater than 0")
	}

	switch s.Transport {
	case "nats":
		if s.NATS.URL == "" {
			problems = append(problems, "nats.url is required for transport nats")
		}
	case "rabbitmq":
		if s.RabbitMQ.URL == "" {
			problems = append(problems, "rabbitmq.url is required for transport rabbitmq")
		}
	case "kafka":
		if len(s.Kafka.Brokers) == 0 {
			problems = append(problems, "kafka.brokers is required for transport kafka")
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return errors.New("invalid config: " + strings.Join(problems, "; "))
}
