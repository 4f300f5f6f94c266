// ABOUTME: Process channel owning the query-server subprocess and its stdio
// ABOUTME: Writes framed messages to stdin and decodes framed messages from stdout

package queryserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/framing"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/metrics"
)

// Direction of a frame relative to the relay.
type Direction string

const (
	DirectionRelayToEngine Direction = "relay_to_engine"
	DirectionEngineToRelay Direction = "engine_to_relay"
)

// FrameObserver sees every frame body in either direction.
type FrameObserver interface {
	ObserveFrame(instanceID string, dir Direction, body []byte)
}

// Channel owns one engine process. It is not restartable once stopped.
type Channel struct {
	instanceID string
	command    string
	args       []string
	launcher   Launcher
	observer   FrameObserver
	metrics    *metrics.Metrics

	onMessage func(json.RawMessage)
	onExit    func(error)

	mu      sync.Mutex
	proc    Process
	done    chan struct{}
	exitErr error

	writeMu sync.Mutex
	running atomic.Bool
	stopped atomic.Bool

	framingErrors atomic.Int64
}

type channelConfig struct {
	instanceID string
	command    string
	args       []string
	launcher   Launcher
	observer   FrameObserver
	metrics    *metrics.Metrics
	onMessage  func(json.RawMessage)
	onExit     func(error)
}

func newChannel(cfg channelConfig) *Channel {
	launcher := cfg.launcher
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	return &Channel{
		instanceID: cfg.instanceID,
		command:    cfg.command,
		args:       cfg.args,
		launcher:   launcher,
		observer:   cfg.observer,
		metrics:    cfg.metrics,
		onMessage:  cfg.onMessage,
		onExit:     cfg.onExit,
		done:       make(chan struct{}),
	}
}

func (c *Channel) tag() string {
	if len(c.instanceID) > 8 {
		return c.instanceID[:8]
	}
	return c.instanceID
}

// Start launches the engine and the reader goroutines.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc != nil {
		if c.stopped.Load() {
			return errors.New("query server channel already stopped")
		}
		return nil
	}

	logger.Info("[%s] Starting query server: %s", c.tag(), commandLine(c.command, c.args))
	proc, err := c.launcher.Launch(ctx, c.command, c.args)
	if err != nil {
		return err
	}
	c.proc = proc
	c.running.Store(true)
	logger.Info("[%s] Query server started (%s)", c.tag(), proc.ID())

	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		c.drainStderr(proc)
	}()
	go c.readLoop(proc, &drained)

	return nil
}

// Send encodes payload as one frame and writes it whole. When the engine is
// not running the frame is dropped with a diagnostic and nil is returned.
func (c *Channel) Send(payload interface{}) error {
	if !c.running.Load() {
		logger.Warn("[%s] Tried to send but process not running", c.tag())
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	frame, err := framing.Encode(json.RawMessage(body))
	if err != nil {
		return err
	}

	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.running.Load() {
		logger.Warn("[%s] Tried to send but process not running", c.tag())
		return nil
	}
	if c.observer != nil {
		c.observer.ObserveFrame(c.instanceID, DirectionRelayToEngine, body)
	}
	logger.Debug("[%s] -> %s", c.tag(), preview(body))

	if _, err := proc.Stdin().Write(frame); err != nil {
		// Stop closed stdin under us, or the engine exited mid-write.
		if !c.running.Load() || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			logger.Warn("[%s] Tried to send but process not running: %v", c.tag(), err)
			return nil
		}
		return errors.Wrap(err, "write to query server stdin")
	}
	return nil
}

// Stop asks the engine to exit. It does not wait.
func (c *Channel) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	c.running.Store(false)

	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return
	}

	logger.Info("[%s] Stopping query server (%s)", c.tag(), proc.ID())
	_ = proc.Stdin().Close()
	if err := proc.Terminate(); err != nil {
		logger.Warn("[%s] Failed to terminate query server: %v", c.tag(), err)
	}
}

// Running reports whether the engine is up and accepting frames.
func (c *Channel) Running() bool {
	return c.running.Load()
}

// Done is closed once the engine has exited and the reader has finished.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// ExitErr is the engine's exit status, valid after Done is closed.
func (c *Channel) ExitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitErr
}

// FramingErrors counts frames skipped by the reader.
func (c *Channel) FramingErrors() int64 {
	return c.framingErrors.Load()
}

func (c *Channel) readLoop(proc Process, drained *sync.WaitGroup) {
	dec := framing.NewDecoder(proc.Stdout())
	count := 0

	for {
		body, err := dec.Next()
		if err != nil {
			var ferr *errors.FramingError
			if errors.As(err, &ferr) {
				c.framingErrors.Add(1)
				c.metrics.FramingError()
				logger.Warn("[%s] Skipping malformed frame: %v", c.tag(), ferr)
				continue
			}
			if !c.stopped.Load() {
				logger.Warn("[%s] Query server stdout closed: %v", c.tag(), err)
			}
			break
		}

		count++
		logger.Debug("[%s] <- #%d %s", c.tag(), count, preview(body))
		if c.observer != nil {
			c.observer.ObserveFrame(c.instanceID, DirectionEngineToRelay, body)
		}
		if c.onMessage != nil {
			c.onMessage(body)
		}
	}

	c.running.Store(false)
	drained.Wait()
	exitErr := proc.Wait()
	logger.Info("[%s] Query server exited after %d messages (err: %v)", c.tag(), count, exitErr)

	c.mu.Lock()
	c.exitErr = exitErr
	c.mu.Unlock()
	close(c.done)

	if c.onExit != nil {
		c.onExit(exitErr)
	}
}

func (c *Channel) drainStderr(proc Process) {
	scanner := bufio.NewScanner(proc.Stderr())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Info("[%s] engine stderr: %s", c.tag(), scanner.Text())
	}
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
