// ABOUTME: Query-server client façade over the process channel
// ABOUTME: Correlates requests with responses and routes progress to callers

package queryserver

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harper/codeql-relay/internal/codeql"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/jsonrpc"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/symbols"
)

// DefaultCodeQLPath is used when Options.CodeQLPath is empty.
const DefaultCodeQLPath = "codeql"

// Listener observes traffic for every request, whoever sent it.
type Listener interface {
	ProgressReceived(instanceID string, update ProgressUpdate)
	RequestCompleted(instanceID string, id int64, method string, err error)
}

// Options configures a Client.
type Options struct {
	// CodeQLPath is the CLI executable, "codeql" when empty.
	CodeQLPath string
	// ExtraArgs follow "execute query-server2" on the command line.
	ExtraArgs []string
	// Launcher defaults to ExecLauncher.
	Launcher        Launcher
	Observer        FrameObserver
	Metrics         *metrics.Metrics
	Listeners       []Listener
	CallbackWorkers int
}

// Call identifies an in-flight request.
type Call struct {
	ID         int64
	ProgressID int64
}

// Client speaks the query-server protocol to one engine process. Its pending
// requests and progress handlers belong to the instance.
type Client struct {
	instanceID string
	codeqlPath string
	args       []string

	channel  *Channel
	registry *Registry
	progress *Dispatcher
	pool     *Pool
	runner   *codeql.Runner

	progressSeq atomic.Int64
	startedAt   atomic.Pointer[time.Time]

	metrics   *metrics.Metrics
	listeners []Listener
}

// New builds a Client; call Start to launch the engine.
func New(opts Options) *Client {
	path := opts.CodeQLPath
	if path == "" {
		path = DefaultCodeQLPath
	}
	args := append([]string{"execute", "query-server2"}, opts.ExtraArgs...)

	c := &Client{
		instanceID: uuid.New().String(),
		codeqlPath: path,
		args:       args,
		registry:   NewRegistry(),
		progress:   NewDispatcher(),
		pool:       NewPool(opts.CallbackWorkers),
		runner:     codeql.NewRunner(path),
		metrics:    opts.Metrics,
		listeners:  opts.Listeners,
	}
	c.registry.onResolve = c.metrics.ResponseReceived
	c.channel = newChannel(channelConfig{
		instanceID: c.instanceID,
		command:    path,
		args:       args,
		launcher:   opts.Launcher,
		observer:   opts.Observer,
		metrics:    opts.Metrics,
		onMessage:  c.handleMessage,
		onExit:     c.handleExit,
	})
	return c
}

// Start launches the query server.
func (c *Client) Start(ctx context.Context) error {
	if err := c.channel.Start(ctx); err != nil {
		return err
	}
	now := time.Now()
	c.startedAt.Store(&now)
	return nil
}

// Stop asks the query server to exit without waiting.
func (c *Client) Stop() {
	c.channel.Stop()
}

// Shutdown stops the query server, waits for it to exit or ctx to end, then
// drains the callback pool.
func (c *Client) Shutdown(ctx context.Context) error {
	c.channel.Stop()
	var err error
	if c.startedAt.Load() == nil {
		c.pool.Close()
		return nil
	}
	select {
	case <-c.channel.Done():
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "waiting for query server to exit")
	}
	c.pool.Close()
	return err
}

func (c *Client) InstanceID() string    { return c.instanceID }
func (c *Client) CodeQLPath() string    { return c.codeqlPath }
func (c *Client) Args() []string        { return append([]string(nil), c.args...) }
func (c *Client) Running() bool         { return c.channel.Running() }
func (c *Client) Done() <-chan struct{} { return c.channel.Done() }

// StartedAt is when Start succeeded, zero before that.
func (c *Client) StartedAt() time.Time {
	if t := c.startedAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Runner runs one-shot codeql subcommands with the same CLI path.
func (c *Client) Runner() *codeql.Runner { return c.runner }

// Pending is the number of requests awaiting a response.
func (c *Client) Pending() int {
	return c.registry.Len()
}

// PendingRequests lists outstanding requests, oldest first.
func (c *Client) PendingRequests() []PendingInfo {
	return c.registry.Snapshot()
}

// NextID is the id the next request will use.
func (c *Client) NextID() int64 {
	return c.registry.Peek()
}

// FramingErrors counts malformed frames skipped since Start.
func (c *Client) FramingErrors() int64 {
	return c.channel.FramingErrors()
}

// NewProgressID hands out a progress id from the client's own sequence.
func (c *Client) NewProgressID() int64 {
	return c.progressSeq.Add(1)
}

// ReleaseProgress drops the progress handler for progressID.
func (c *Client) ReleaseProgress(progressID int64) {
	c.progress.Unregister(progressID)
}

// SendRequest writes a request and registers its handlers. When onProgress is
// set and params carry a progressId, progress for that id goes to onProgress
// until released.
func (c *Client) SendRequest(method string, params interface{}, onResult ResponseHandler, onProgress ProgressHandler) (int64, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, errors.Wrapf(err, "marshal %s params", method)
	}

	id := c.registry.NextID()
	c.registry.Register(id, method, c.wrapResult(id, method, onResult))

	progressID, hasProgress := progressIDOf(raw)
	if hasProgress && onProgress != nil {
		c.progress.Register(progressID, c.wrapProgress(progressID, onProgress))
	}

	c.metrics.RequestSent(method)
	req := jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: method, Params: raw, ID: id}
	if err := c.channel.Send(req); err != nil {
		c.registry.Forget(id)
		if hasProgress && onProgress != nil {
			c.progress.Unregister(progressID)
		}
		c.metrics.RequestsAbandoned(1)
		return 0, err
	}
	return id, nil
}

func progressIDOf(raw json.RawMessage) (int64, bool) {
	var p struct {
		ProgressID *int64 `json:"progressId"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.ProgressID == nil {
		return 0, false
	}
	return *p.ProgressID, true
}

func (c *Client) wrapResult(id int64, method string, onResult ResponseHandler) ResponseHandler {
	return func(result json.RawMessage, err error) {
		c.pool.Submit(id, func() {
			for _, l := range c.listeners {
				l.RequestCompleted(c.instanceID, id, method, err)
			}
			if onResult != nil {
				onResult(result, err)
			}
		})
	}
}

func (c *Client) wrapProgress(progressID int64, onProgress ProgressHandler) ProgressHandler {
	return func(update ProgressUpdate) {
		c.pool.Submit(progressID, func() { onProgress(update) })
	}
}

// RegisterDatabases sends evaluation/registerDatabases for paths.
func (c *Client) RegisterDatabases(paths []string, onResult ResponseHandler, onProgress ProgressHandler) (Call, error) {
	pid := c.NewProgressID()
	id, err := c.SendRequest(MethodRegisterDatabases, newDatabasesParams(paths, pid), onResult, onProgress)
	return Call{ID: id, ProgressID: pid}, err
}

// DeregisterDatabases sends evaluation/deregisterDatabases for paths.
func (c *Client) DeregisterDatabases(paths []string, onResult ResponseHandler) (Call, error) {
	pid := c.NewProgressID()
	id, err := c.SendRequest(MethodDeregisterDatabases, newDatabasesParams(paths, pid), onResult, nil)
	return Call{ID: id, ProgressID: pid}, err
}

// EvaluateQueries runs a whole query file against db, writing results to output.
func (c *Client) EvaluateQueries(query, db, output string, onResult ResponseHandler, onProgress ProgressHandler) (Call, error) {
	pid := c.NewProgressID()
	params := newRunQueryParams(query, db, output, wholeQueryTarget(), pid)
	id, err := c.SendRequest(MethodRunQuery, params, onResult, onProgress)
	return Call{ID: id, ProgressID: pid}, err
}

// QuickEvaluate evaluates only the symbol at span in query.
func (c *Client) QuickEvaluate(query, db, output string, span symbols.Span, onResult ResponseHandler, onProgress ProgressHandler) (Call, error) {
	pid := c.NewProgressID()
	params := newRunQueryParams(query, db, output, quickEvalTargetFor(query, span), pid)
	id, err := c.SendRequest(MethodRunQuery, params, onResult, onProgress)
	return Call{ID: id, ProgressID: pid}, err
}

// FindClassIdentifierPosition locates the declaration of class name in path.
func (c *Client) FindClassIdentifierPosition(path, name string) (symbols.Span, error) {
	return symbols.FindClass(path, name)
}

// FindPredicateIdentifierPosition locates the declaration of predicate name in path.
func (c *Client) FindPredicateIdentifierPosition(path, name string) (symbols.Span, error) {
	return symbols.FindPredicate(path, name)
}

func (c *Client) handleMessage(raw json.RawMessage) {
	msg, err := jsonrpc.Parse(raw)
	if err != nil {
		logger.Warn("[%s] Ignoring message that is not a JSON-RPC object: %v", c.instanceID[:8], err)
		return
	}

	switch msg.Kind() {
	case jsonrpc.KindResponse:
		id, ok := msg.IntID()
		if !ok {
			logger.Warn("[%s] Ignoring response with non-numeric id %s", c.instanceID[:8], string(*msg.ID))
			c.metrics.UnmatchedResponse()
			return
		}
		if !c.registry.Resolve(id, msg.Result, msg.Error) {
			c.metrics.UnmatchedResponse()
		}

	case jsonrpc.KindNotification:
		update, ok := ParseProgress(msg.Method, msg.Params)
		if !ok {
			logger.Debug("[%s] Ignoring notification %s", c.instanceID[:8], msg.Method)
			return
		}
		c.metrics.ProgressReceived(msg.Method)
		if len(c.listeners) > 0 {
			c.pool.Submit(update.ID, func() {
				for _, l := range c.listeners {
					l.ProgressReceived(c.instanceID, update)
				}
			})
		}
		c.progress.Deliver(update)

	case jsonrpc.KindRequest:
		logger.Warn("[%s] Query server sent unsupported request %s", c.instanceID[:8], msg.Method)
		resp := map[string]interface{}{
			"jsonrpc": jsonrpc.Version,
			"id":      msg.ID,
			"error": jsonrpc.Error{
				Code:    jsonrpc.MethodNotFound,
				Message: "method not supported by relay: " + msg.Method,
			},
		}
		if err := c.channel.Send(resp); err != nil {
			logger.Warn("[%s] Failed to reject request %s: %v", c.instanceID[:8], msg.Method, err)
		}

	default:
		logger.Warn("[%s] Ignoring malformed envelope: %s", c.instanceID[:8], preview(raw))
	}
}

func (c *Client) handleExit(exitErr error) {
	cause := errors.New("query server exited before responding")
	if exitErr != nil {
		cause = errors.Wrap(exitErr, "query server exited before responding")
	}
	cause = errors.WithHint(cause, "Check the relay log for engine stderr and restart the relay")

	if n := c.registry.FailAll(cause); n > 0 {
		logger.Warn("[%s] Failed %d pending requests after query server exit", c.instanceID[:8], n)
		c.metrics.RequestsAbandoned(n)
	}
}
