// ABOUTME: Single-assignment future used by the blocking wait helpers
// ABOUTME: Completed once by a response or progress callback, awaited with a context

package queryserver

import (
	"context"
	"encoding/json"
	"sync"
)

// Future holds the outcome of one request, settled at most once.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete settles the future. Later calls are ignored.
func (f *Future) Complete(result json.RawMessage, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends, returning ctx.Err() in
// the latter case.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
