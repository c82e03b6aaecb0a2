package bridge

import (
	"log/slog"
	"time"
)

// Option configures a Bridge instance.
type Option func(*Bridge)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTimeout bounds every invocation. Zero disables the bound: an invocation whose
// engine never answers then stays attached until its context ends or the bridge closes.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithCorrelator selects how emissions are paired with invocations. Defaults to FIFO.
func WithCorrelator(c Correlator) Option {
	return func(b *Bridge) {
		if c != nil {
			b.corr = c
		}
	}
}
