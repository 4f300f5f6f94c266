package queryserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/harper/codeql-relay/internal/framing"
	"github.com/harper/codeql-relay/internal/jsonrpc"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/stretchr/testify/require"
)

// fakeEngine plays the query server over in-memory pipes.
type fakeEngine struct {
	t *testing.T

	stdinR, stdoutR, stderrR *io.PipeReader
	stdinW, stdoutW, stderrW *io.PipeWriter

	writeMu  sync.Mutex
	requests chan *jsonrpc.Message
	exited   chan struct{}
	exitOnce sync.Once

	command string
	args    []string
}

func newFakeEngine(t *testing.T) *fakeEngine {
	e := &fakeEngine{
		t:        t,
		requests: make(chan *jsonrpc.Message, 32),
		exited:   make(chan struct{}),
	}
	e.stdinR, e.stdinW = io.Pipe()
	e.stdoutR, e.stdoutW = io.Pipe()
	e.stderrR, e.stderrW = io.Pipe()
	return e
}

func (e *fakeEngine) Launch(_ context.Context, command string, args []string) (Process, error) {
	e.command = command
	e.args = args
	go e.readRequests()
	return e, nil
}

func (e *fakeEngine) readRequests() {
	dec := framing.NewDecoder(e.stdinR)
	for {
		body, err := dec.Next()
		if err != nil {
			close(e.requests)
			return
		}
		msg, err := jsonrpc.Parse(body)
		if err != nil {
			continue
		}
		e.requests <- msg
	}
}

func (e *fakeEngine) Stdin() io.WriteCloser { return e.stdinW }
func (e *fakeEngine) Stdout() io.Reader     { return e.stdoutR }
func (e *fakeEngine) Stderr() io.Reader     { return e.stderrR }
func (e *fakeEngine) ID() string            { return "fake" }

func (e *fakeEngine) Terminate() error {
	e.exit()
	return nil
}

func (e *fakeEngine) Wait() error {
	<-e.exited
	return nil
}

// exit simulates the engine going away.
func (e *fakeEngine) exit() {
	e.exitOnce.Do(func() {
		e.stdoutW.Close()
		e.stderrW.Close()
		e.stdinR.Close()
		close(e.exited)
	})
}

func (e *fakeEngine) writeRaw(s string) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, err := e.stdoutW.Write([]byte(s))
	require.NoError(e.t, err)
}

func (e *fakeEngine) send(payload interface{}) {
	frame, err := framing.Encode(payload)
	require.NoError(e.t, err)
	e.writeRaw(string(frame))
}

func (e *fakeEngine) respond(id int64, result interface{}) {
	e.send(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
}

func (e *fakeEngine) respondError(id int64, code int, message string) {
	e.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]interface{}{"code": code, "message": message},
	})
}

func (e *fakeEngine) progress(progressID int64, step, maxStep int) {
	e.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  MethodProgressUpdated,
		"params":  map[string]interface{}{"id": progressID, "step": step, "maxStep": maxStep, "message": "working"},
	})
}

func (e *fakeEngine) nextRequest() *jsonrpc.Message {
	select {
	case msg, ok := <-e.requests:
		require.True(e.t, ok, "engine stdin closed")
		return msg
	case <-time.After(2 * time.Second):
		e.t.Fatal("timed out waiting for request")
		return nil
	}
}

// startClient launches a client against a fresh fake engine.
func startClient(t *testing.T, opts Options) (*Client, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine(t)
	opts.Launcher = engine
	c := New(opts)
	require.NoError(t, c.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c, engine
}

func paramsOf(t *testing.T, msg *jsonrpc.Message) map[string]interface{} {
	t.Helper()
	var p map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Params, &p))
	return p
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *safeBuffer {
	t.Helper()
	buf := &safeBuffer{}
	logger.SetOutput(buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return buf
}
