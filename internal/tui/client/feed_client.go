// ABOUTME: WebSocket client for the relay's progress feed
// ABOUTME: Decodes feed events onto a channel and supports reconnecting after drops
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	feed "github.com/harper/codeql-relay/internal/websocket"
)

// FeedClient follows the relay progress feed over a WebSocket.
type FeedClient struct {
	url     string
	timeout time.Duration

	mu       sync.RWMutex
	conn     *websocket.Conn
	shutdown bool

	events chan feed.Event
	errors chan error
	done   chan struct{}
}

// NewFeedClient returns an unconnected client for url.
func NewFeedClient(url string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedClient{
		url:     url,
		timeout: timeout,
		events:  make(chan feed.Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}
}

func (c *FeedClient) URL() string {
	return c.url
}

// Connect dials the feed. It may be called again after a dropped
// connection, but not after Close.
func (c *FeedClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return errors.New("feed client closed")
	}
	if c.conn != nil {
		return errors.New("already connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil) //nolint:bodyclose // websocket connection, not HTTP response
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.url)
	}

	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// IsConnected reports whether a feed connection is open.
func (c *FeedClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Events delivers decoded feed events.
func (c *FeedClient) Events() <-chan feed.Event {
	return c.events
}

// Errors delivers read failures; the connection is gone after each one.
func (c *FeedClient) Errors() <-chan error {
	return c.errors
}

// Close ends the connection; the client cannot reconnect afterwards.
func (c *FeedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil
	}
	c.shutdown = true
	close(c.done)

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *FeedClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case c.errors <- errors.Wrap(err, "read"):
			case <-c.done:
			}
			return
		}

		var ev feed.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.Debug("skipping malformed feed event: %v", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
