package port

import "context"

// HeaderPropagator abstracts injecting tracing context into outgoing message headers.
// Implementations may bridge to OpenTelemetry or any other propagation standard.
// Implementors should mutate the provided headers map by inserting keys that
// carry the context across process boundaries. Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// NopHeaderPropagator is a no-op implementation useful for tests or when tracing is disabled.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}
