// ABOUTME: Blocking wrappers that wait for evaluation and registration to finish
// ABOUTME: Completion is the final progress step or an error response

package queryserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/symbols"
)

// ErrNotRunning is returned by the blocking helpers when the engine is down.
var ErrNotRunning = errors.WithHint(
	errors.New("query server is not running"),
	"Start the relay with a working CodeQL CLI before sending requests",
)

// RegisterDatabasesAndWait registers paths and waits for the response.
func (c *Client) RegisterDatabasesAndWait(ctx context.Context, paths []string, onProgress ProgressHandler) error {
	if !c.Running() {
		return ErrNotRunning
	}

	f := NewFuture()
	call, err := c.RegisterDatabases(paths, f.Complete, onProgress)
	if err != nil {
		return err
	}
	defer c.ReleaseProgress(call.ProgressID)

	_, err = c.await(ctx, f, MethodRegisterDatabases, call.ID)
	return err
}

// EvaluateAndWait runs a whole query and blocks until its final progress step.
func (c *Client) EvaluateAndWait(ctx context.Context, query, db, output string, onProgress ProgressHandler) error {
	if !c.Running() {
		return ErrNotRunning
	}

	f := NewFuture()
	call, err := c.EvaluateQueries(query, db, output, failOnly(f), completeOnFinalStep(f, onProgress))
	if err != nil {
		return err
	}
	defer c.ReleaseProgress(call.ProgressID)

	_, err = c.await(ctx, f, MethodRunQuery, call.ID)
	return err
}

// QuickEvaluateAndWait evaluates the symbol at span and blocks until its final
// progress step.
func (c *Client) QuickEvaluateAndWait(ctx context.Context, query, db, output string, span symbols.Span, onProgress ProgressHandler) error {
	if !c.Running() {
		return ErrNotRunning
	}

	f := NewFuture()
	call, err := c.QuickEvaluate(query, db, output, span, failOnly(f), completeOnFinalStep(f, onProgress))
	if err != nil {
		return err
	}
	defer c.ReleaseProgress(call.ProgressID)

	_, err = c.await(ctx, f, MethodRunQuery, call.ID)
	return err
}

func failOnly(f *Future) ResponseHandler {
	return func(_ json.RawMessage, err error) {
		if err != nil {
			f.Complete(nil, err)
		}
	}
}

func completeOnFinalStep(f *Future, onProgress ProgressHandler) ProgressHandler {
	return func(update ProgressUpdate) {
		if onProgress != nil {
			onProgress(update)
		}
		if update.Done() {
			f.Complete(nil, nil)
		}
	}
}

func (c *Client) await(ctx context.Context, f *Future, method string, id int64) (json.RawMessage, error) {
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline).Round(time.Millisecond)
	}

	result, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil, errors.NewTimeoutError(method, id, timeout, ctx.Err())
	}
	return result, err
}
