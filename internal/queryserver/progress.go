// ABOUTME: Progress dispatcher routing progress notifications to their callers
// ABOUTME: Recognises ql/progressUpdated and evaluation/progress shapes

package queryserver

import (
	"encoding/json"
	"sync"

	"github.com/harper/codeql-relay/internal/logger"
)

const (
	MethodProgressUpdated    = "ql/progressUpdated"
	MethodEvaluationProgress = "evaluation/progress"
)

// ProgressUpdate is one progress notification. Textual updates come from
// evaluation/progress and only carry a message.
type ProgressUpdate struct {
	ID      int64  `json:"id"`
	Step    int    `json:"step"`
	MaxStep int    `json:"maxStep"`
	Message string `json:"message,omitempty"`
	Textual bool   `json:"textual,omitempty"`
}

// Done reports the completion signal: step has reached maxStep.
func (u ProgressUpdate) Done() bool {
	return !u.Textual && u.Step == u.MaxStep
}

// ProgressHandler receives progress for one progress id.
type ProgressHandler func(ProgressUpdate)

type stepParams struct {
	ID      *int64 `json:"id"`
	Step    int    `json:"step"`
	MaxStep int    `json:"maxStep"`
	Message string `json:"message"`
}

type textParams struct {
	ProgressID *int64 `json:"progressId"`
	Message    string `json:"message"`
}

// Dispatcher routes progress notifications to handlers by progress id.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[int64]ProgressHandler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[int64]ProgressHandler)}
}

// Register sends progress for progressID to handler until Unregister.
func (d *Dispatcher) Register(progressID int64, handler ProgressHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[progressID] = handler
}

// Unregister drops the handler for progressID.
func (d *Dispatcher) Unregister(progressID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, progressID)
}

// Len is the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// ParseProgress decodes a progress notification without delivering it.
func ParseProgress(method string, params json.RawMessage) (ProgressUpdate, bool) {
	switch method {
	case MethodProgressUpdated:
		var p stepParams
		if err := json.Unmarshal(params, &p); err != nil || p.ID == nil {
			return ProgressUpdate{}, false
		}
		return ProgressUpdate{ID: *p.ID, Step: p.Step, MaxStep: p.MaxStep, Message: p.Message}, true
	case MethodEvaluationProgress:
		var p textParams
		if err := json.Unmarshal(params, &p); err != nil || p.ProgressID == nil {
			return ProgressUpdate{}, false
		}
		return ProgressUpdate{ID: *p.ProgressID, Message: p.Message, Textual: true}, true
	default:
		return ProgressUpdate{}, false
	}
}

// Dispatch delivers a notification to the handler registered for its
// progress id. Unknown methods, malformed params and unknown ids are dropped.
func (d *Dispatcher) Dispatch(method string, params json.RawMessage) bool {
	update, ok := ParseProgress(method, params)
	if !ok {
		logger.Debug("Dropping notification %s with unrecognised params", method)
		return false
	}
	return d.Deliver(update)
}

// Deliver hands an already parsed update to its handler.
func (d *Dispatcher) Deliver(update ProgressUpdate) bool {
	d.mu.RLock()
	handler, ok := d.handlers[update.ID]
	d.mu.RUnlock()
	if !ok {
		logger.Debug("Dropping progress for unknown progress id %d", update.ID)
		return false
	}

	handler(update)
	return true
}
