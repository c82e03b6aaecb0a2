package memory

import (
	"github.com/next-trace/scg-port-bridge/adapters/inmemory"
	"github.com/next-trace/scg-port-bridge/bridge"
)

// New constructs a bridge backed by an in-memory engine running compute and returns
// it along with the engine and a cleanup function that closes both.
//
// The engine answers each input on its own goroutine, so answers may overtake one
// another; the bridge therefore pairs them by the correlation header, which the engine
// echoes. Options passed in opts are applied afterwards and may replace it.
func New(compute inmemory.ComputeFunc, opts ...bridge.Option) (*bridge.Bridge, *inmemory.Engine, func()) {
	eng := inmemory.New(compute)

	all := append([]bridge.Option{bridge.WithCorrelator(bridge.Header(bridge.DefaultCorrelationHeader))}, opts...)
	b := bridge.New(eng, all...)
	cleanup := func() {
		_ = b.Close()
		_ = eng.Close()
	}

	return b, eng, cleanup
}
