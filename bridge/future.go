package bridge

import (
	"context"
	"encoding/json"
	"sync"
)

// Result is the outcome of one invocation.
// Err is set only for bridge-level failures; engine failures travel inside Output.
type Result struct {
	Output json.RawMessage
	Err    error
}

// Callback follows the host convention of an error slot followed by the output.
type Callback func(err error, output json.RawMessage)

// Future is a single-resolution handle for an invocation started with Submit.
type Future struct {
	id   string
	done chan struct{}
	once sync.Once
	res  Result
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(r Result) {
	f.once.Do(func() {
		f.res = r
		close(f.done)
	})
}

// ID returns the invocation id used for correlation and logging.
func (f *Future) ID() string { return f.id }

// Done is closed once the invocation has resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until resolution and returns the outcome.
func (f *Future) Result() (json.RawMessage, error) {
	<-f.done
	return f.res.Output, f.res.Err
}

// Wait is like Result but gives up when ctx ends. Giving up does not cancel the invocation.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.res.Output, f.res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
