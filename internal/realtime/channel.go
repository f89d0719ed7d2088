// Package realtime implements the persistent text channel to the backend.
//
// Inbound messages are delivered to the most recently registered handler, one
// at a time, from the channel's read goroutine. Nothing is buffered: a message
// that arrives while no handler is registered is only retained as the latest
// value, which callers that poll can read with Latest.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPingInterval is how often keepalive pings are sent.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxMessageSize bounds inbound frames (64KB).
	DefaultMaxMessageSize = 64 * 1024

	writeWait = 10 * time.Second
)

// ErrClosed is returned by Send once the channel has shut down.
var ErrClosed = errors.New("realtime channel closed")

// Handler receives inbound text messages.
type Handler func(msg string)

// Options configures Dial.
type Options struct {
	// PingInterval between keepalive pings; negative disables keepalive.
	PingInterval   time.Duration
	MaxMessageSize int64
	Header         http.Header
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Channel is a connected realtime channel.
type Channel struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	handler   Handler
	latest    string
	hasLatest bool
	err       error
	closing   bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to rawURL and starts the read and keepalive loops. The
// context only bounds the handshake.
func Dial(ctx context.Context, rawURL string, opts Options) (*Channel, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", rawURL, err)
	}

	maxSize := opts.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	conn.SetReadLimit(maxSize)

	interval := opts.PingInterval
	if interval == 0 {
		interval = DefaultPingInterval
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:   conn,
		log:    logger.With("component", "realtime", "url", rawURL),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(runCtx, interval)

	c.log.Debug("realtime channel connected")
	return c, nil
}

// OnMessage registers h as the only handler, replacing the previous one.
// A nil handler stops delivery.
func (c *Channel) OnMessage(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Latest returns the most recently received message.
func (c *Channel) Latest() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.hasLatest
}

// Send writes msg as a text frame. Delivery is not confirmed.
func (c *Channel) Send(msg string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Done is closed when the channel stops.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns why the channel stopped; nil after a clean Close.
func (c *Channel) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close sends a close frame and waits for the loops to exit.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()

		c.cancel()
	})
	<-c.done
	return c.Err()
}

func (c *Channel) run(ctx context.Context, interval time.Duration) {
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return c.readLoop(interval)
	})
	if interval > 0 {
		g.Go(func() error { return c.pingLoop(loopCtx, interval) })
	}
	g.Go(func() error {
		// Unblocks the read loop once anything else stops
		<-loopCtx.Done()
		c.conn.Close()
		return nil
	})

	err := g.Wait()

	c.mu.Lock()
	if c.closing {
		err = nil
	}
	c.err = err
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("realtime channel stopped", "error", err)
	} else {
		c.log.Debug("realtime channel closed")
	}
	close(c.done)
}

func (c *Channel) readLoop(interval time.Duration) error {
	pongWait := 2 * interval
	if interval > 0 {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}
		if interval > 0 {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		c.deliver(string(data))
	}
}

func (c *Channel) deliver(msg string) {
	c.mu.Lock()
	c.latest = msg
	c.hasLatest = true
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(msg)
	}
}

func (c *Channel) pingLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("sending ping: %w", err)
			}
		}
	}
}

// URLFromBase derives the realtime endpoint from the HTTP base URL,
// mapping http to ws and https to wss.
func URLFromBase(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
