// ABOUTME: Unit tests for the progress store
// ABOUTME: Tests event folding, completion states, instance summaries, and history limits
package client

import (
	"testing"
	"time"

	"github.com/harper/codeql-relay/internal/queryserver"
	feed "github.com/harper/codeql-relay/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func progressEvent(instance string, at time.Time, u queryserver.ProgressUpdate) feed.Event {
	return feed.Event{Type: feed.EventProgress, InstanceID: instance, Time: at, Progress: &u}
}

func TestNewProgressStore(t *testing.T) {
	store := NewProgressStore(100)

	assert.Empty(t, store.Operations("inst-1"))
	assert.Empty(t, store.Instances())
}

func TestProgressStore_FoldsStepsIntoOneOperation(t *testing.T) {
	store := NewProgressStore(100)

	store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: 4, Step: 1, MaxStep: 3, Message: "Compiling"}))
	op := store.Apply(progressEvent("inst-1", t0.Add(time.Second), queryserver.ProgressUpdate{ID: 4, Step: 2, MaxStep: 3, Message: "Evaluating"}))
	require.NotNil(t, op)
	assert.Equal(t, StateRunning, op.State)
	assert.InDelta(t, 2.0/3.0, op.Fraction(), 0.001)

	op = store.Apply(progressEvent("inst-1", t0.Add(2*time.Second), queryserver.ProgressUpdate{ID: 4, Step: 3, MaxStep: 3, Message: "Done"}))
	assert.Equal(t, StateFinished, op.State)

	ops := store.Operations("inst-1")
	require.Len(t, ops, 1)
	assert.Equal(t, "Done", ops[0].Message)
	assert.Equal(t, t0, ops[0].Started)
	assert.Equal(t, t0.Add(2*time.Second), ops[0].Updated)
}

func TestProgressStore_TextualProgressKeepsSteps(t *testing.T) {
	store := NewProgressStore(100)

	store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: 9, Step: 2, MaxStep: 5}))
	op := store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: 9, Message: "Running stage 3", Textual: true}))

	assert.Equal(t, 2, op.Step)
	assert.Equal(t, 5, op.MaxStep)
	assert.Equal(t, -1.0, op.Fraction())
	assert.Equal(t, StateRunning, op.State)
}

func TestProgressStore_Completion(t *testing.T) {
	store := NewProgressStore(100)

	ok := store.Apply(feed.Event{Type: feed.EventCompleted, InstanceID: "inst-1", RequestID: 1, Method: queryserver.MethodRegisterDatabases})
	assert.Equal(t, StateSucceeded, ok.State)
	assert.Equal(t, queryserver.MethodRegisterDatabases+" #1", ok.Title)

	failed := store.Apply(feed.Event{Type: feed.EventCompleted, InstanceID: "inst-1", RequestID: 2, Method: queryserver.MethodRunQuery, Error: "boom"})
	assert.Equal(t, StateFailed, failed.State)
	assert.Equal(t, "boom", failed.Message)

	insts := store.Instances()
	require.Len(t, insts, 1)
	assert.Equal(t, 1, insts[0].Failed)
	assert.Equal(t, 0, insts[0].Running)
}

func TestProgressStore_IgnoresEmptyProgress(t *testing.T) {
	store := NewProgressStore(100)
	assert.Nil(t, store.Apply(feed.Event{Type: feed.EventProgress, InstanceID: "inst-1"}))
	assert.Nil(t, store.Apply(feed.Event{Type: "other", InstanceID: "inst-1"}))
	assert.Empty(t, store.Instances())
}

func TestProgressStore_HistoryLimit(t *testing.T) {
	store := NewProgressStore(3)

	for i := int64(0); i < 5; i++ {
		store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: i, Step: 1, MaxStep: 2}))
	}

	ops := store.Operations("inst-1")
	require.Len(t, ops, 3)
	assert.Equal(t, "progress/2", ops[0].Key)
	assert.Equal(t, "progress/4", ops[2].Key)

	// An evicted progress id starts a fresh operation.
	store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: 0, Step: 2, MaxStep: 2}))
	ops = store.Operations("inst-1")
	assert.Equal(t, "progress/0", ops[2].Key)
	assert.Equal(t, StateFinished, ops[2].State)
}

func TestProgressStore_InstancesOrderedByActivity(t *testing.T) {
	store := NewProgressStore(100)

	store.Apply(progressEvent("old", t0, queryserver.ProgressUpdate{ID: 1, Step: 1, MaxStep: 2}))
	store.Apply(progressEvent("new", t0.Add(time.Minute), queryserver.ProgressUpdate{ID: 1, Step: 1, MaxStep: 2}))

	insts := store.Instances()
	require.Len(t, insts, 2)
	assert.Equal(t, "new", insts[0].ID)
	assert.Equal(t, 1, insts[0].Running)
	assert.Equal(t, "old", insts[1].ID)
}

func TestProgressStore_ReturnsCopies(t *testing.T) {
	store := NewProgressStore(100)
	op := store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: 1, Step: 1, MaxStep: 2, Message: "a"}))
	op.Message = "mutated"

	assert.Equal(t, "a", store.Operations("inst-1")[0].Message)
}

func TestProgressStore_Clear(t *testing.T) {
	store := NewProgressStore(100)
	store.Apply(progressEvent("inst-1", t0, queryserver.ProgressUpdate{ID: 1, Step: 1, MaxStep: 2}))
	store.Apply(progressEvent("inst-2", t0, queryserver.ProgressUpdate{ID: 1, Step: 1, MaxStep: 2}))

	store.Clear("inst-1")
	assert.Empty(t, store.Operations("inst-1"))
	assert.Len(t, store.Operations("inst-2"), 1)

	store.ClearAll()
	assert.Empty(t, store.Instances())
}

func TestOperationState_Strings(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "❓", OperationState(99).Icon())
}
