// ABOUTME: Progress store keeping per-instance operation state from the feed
// ABOUTME: Folds progress and completion events into operations with a FIFO history limit
package client

import (
	"fmt"
	"sort"
	"sync"
	"time"

	feed "github.com/harper/codeql-relay/internal/websocket"
)

// OperationState is the lifecycle of one tracked operation.
type OperationState int

const (
	StateRunning OperationState = iota
	StateFinished
	StateSucceeded
	StateFailed
)

func (s OperationState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateFinished:
		return "Finished"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s OperationState) Icon() string {
	switch s {
	case StateRunning:
		return "⏳"
	case StateFinished:
		return "🏁"
	case StateSucceeded:
		return "✅"
	case StateFailed:
		return "❌"
	default:
		return "❓"
	}
}

// Operation is one progress stream or one completed request. Progress
// streams are keyed by progress id; completions by request id.
type Operation struct {
	InstanceID string
	Key        string
	Title      string
	Message    string
	Step       int
	MaxStep    int
	Textual    bool
	State      OperationState
	Error      string
	Started    time.Time
	Updated    time.Time
}

// Fraction is step/maxStep, or -1 when the operation has no step count.
func (o *Operation) Fraction() float64 {
	if o.Textual || o.MaxStep <= 0 {
		return -1
	}
	f := float64(o.Step) / float64(o.MaxStep)
	if f > 1 {
		f = 1
	}
	return f
}

// Instance summarises one query-server client seen on the feed.
type Instance struct {
	ID       string
	Running  int
	Failed   int
	LastSeen time.Time
}

// ProgressStore folds feed events into operations per query-server instance.
type ProgressStore struct {
	ops   map[string][]*Operation
	index map[string]*Operation
	limit int
	mu    sync.RWMutex
}

// NewProgressStore keeps at most limit operations, dropping the oldest first.
func NewProgressStore(limit int) *ProgressStore {
	return &ProgressStore{
		ops:   make(map[string][]*Operation),
		index: make(map[string]*Operation),
		limit: limit,
	}
}

// Apply folds ev into the store and returns the operation it touched.
func (ps *ProgressStore) Apply(ev feed.Event) *Operation {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Type {
	case feed.EventProgress:
		if ev.Progress == nil {
			return nil
		}
		p := ev.Progress
		key := fmt.Sprintf("progress/%d", p.ID)
		op := ps.lookup(ev.InstanceID, key, at)
		op.Title = fmt.Sprintf("Progress #%d", p.ID)
		op.Message = p.Message
		op.Textual = p.Textual
		op.Updated = at
		if !p.Textual {
			op.Step = p.Step
			op.MaxStep = p.MaxStep
		}
		if p.Done() {
			op.State = StateFinished
		}
		return copyOp(op)

	case feed.EventCompleted:
		key := fmt.Sprintf("request/%d", ev.RequestID)
		op := ps.lookup(ev.InstanceID, key, at)
		op.Title = fmt.Sprintf("%s #%d", ev.Method, ev.RequestID)
		op.Updated = at
		op.Error = ev.Error
		if ev.Error != "" {
			op.State = StateFailed
			op.Message = ev.Error
		} else {
			op.State = StateSucceeded
			op.Message = "completed"
		}
		return copyOp(op)
	}
	return nil
}

func (ps *ProgressStore) lookup(instanceID, key string, at time.Time) *Operation {
	id := instanceID + "|" + key
	if op, ok := ps.index[id]; ok {
		return op
	}

	op := &Operation{InstanceID: instanceID, Key: key, Started: at, State: StateRunning}
	ps.index[id] = op

	ops := append(ps.ops[instanceID], op)
	if len(ops) > ps.limit {
		for _, old := range ops[:len(ops)-ps.limit] {
			delete(ps.index, instanceID+"|"+old.Key)
		}
		ops = ops[len(ops)-ps.limit:]
	}
	ps.ops[instanceID] = ops
	return op
}

func copyOp(op *Operation) *Operation {
	c := *op
	return &c
}

// Operations returns copies of an instance's operations, oldest first.
func (ps *ProgressStore) Operations(instanceID string) []*Operation {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	ops := ps.ops[instanceID]
	result := make([]*Operation, len(ops))
	for i, op := range ops {
		result[i] = copyOp(op)
	}
	return result
}

// Instances lists known instances, most recently active first.
func (ps *ProgressStore) Instances() []*Instance {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	result := make([]*Instance, 0, len(ps.ops))
	for id, ops := range ps.ops {
		inst := &Instance{ID: id}
		for _, op := range ops {
			switch op.State {
			case StateRunning:
				inst.Running++
			case StateFailed:
				inst.Failed++
			}
			if op.Updated.After(inst.LastSeen) {
				inst.LastSeen = op.Updated
			}
		}
		result = append(result, inst)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastSeen.Equal(result[j].LastSeen) {
			return result[i].ID < result[j].ID
		}
		return result[i].LastSeen.After(result[j].LastSeen)
	})
	return result
}

// Clear forgets one instance and its operations.
func (ps *ProgressStore) Clear(instanceID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, op := range ps.ops[instanceID] {
		delete(ps.index, instanceID+"|"+op.Key)
	}
	delete(ps.ops, instanceID)
}

// ClearAll forgets every instance.
func (ps *ProgressStore) ClearAll() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.ops = make(map[string][]*Operation)
	ps.index = make(map[string]*Operation)
}
