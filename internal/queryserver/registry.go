// ABOUTME: Request registry correlating outbound request ids with response handlers
// ABOUTME: Ids start at 1, are never reused, and each handler fires at most once

package queryserver

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/jsonrpc"
	"github.com/harper/codeql-relay/internal/logger"
)

// ResponseHandler receives the result of a request, or its error.
type ResponseHandler func(result json.RawMessage, err error)

type pendingRequest struct {
	method  string
	handler ResponseHandler
	sent    time.Time
}

// PendingInfo describes an outstanding request for health reporting.
type PendingInfo struct {
	ID     int64     `json:"id"`
	Method string    `json:"method"`
	Sent   time.Time `json:"sent"`
}

// Registry hands out request ids and holds the handler for each pending one.
type Registry struct {
	last atomic.Int64

	mu      sync.Mutex
	pending map[int64]pendingRequest

	// onResolve is told the method and latency of each matched response.
	onResolve func(method string, failed bool, elapsed time.Duration)
}

// NewRegistry returns a registry whose first id is 1.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[int64]pendingRequest)}
}

// NextID returns a fresh id. The first id is 1.
func (r *Registry) NextID() int64 {
	return r.last.Add(1)
}

// Peek returns the id the next call to NextID will hand out.
func (r *Registry) Peek() int64 {
	return r.last.Load() + 1
}

// Register stores handler for id until Resolve, Forget or FailAll.
func (r *Registry) Register(id int64, method string, handler ResponseHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = pendingRequest{method: method, handler: handler, sent: time.Now()}
}

// Forget drops a registration without invoking its handler. Used when the
// request never made it onto the wire.
func (r *Registry) Forget(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Resolve removes the handler for id and invokes it once. An error envelope
// is delivered as *errors.ProtocolError. Unknown ids are logged and ignored.
func (r *Registry) Resolve(id int64, result json.RawMessage, rpcErr *jsonrpc.Error) bool {
	r.mu.Lock()
	entry, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		logger.Warn("Response for unknown request id %d ignored", id)
		return false
	}

	var err error
	if rpcErr != nil {
		err = errors.NewProtocolError(entry.method, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	if r.onResolve != nil {
		r.onResolve(entry.method, err != nil, time.Since(entry.sent))
	}
	if entry.handler != nil {
		entry.handler(result, err)
	}
	return true
}

// FailAll removes every pending request and hands each handler err.
// Returns how many were failed.
func (r *Registry) FailAll(err error) int {
	r.mu.Lock()
	entries := r.pending
	r.pending = make(map[int64]pendingRequest)
	r.mu.Unlock()

	for _, entry := range entries {
		if entry.handler != nil {
			entry.handler(nil, err)
		}
	}
	return len(entries)
}

// Len is the number of pending requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Snapshot lists outstanding requests, oldest id first.
func (r *Registry) Snapshot() []PendingInfo {
	r.mu.Lock()
	out := make([]PendingInfo, 0, len(r.pending))
	for id, entry := range r.pending {
		out = append(out, PendingInfo{ID: id, Method: entry.method, Sent: entry.sent})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
