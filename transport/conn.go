// Package transport keeps one reconnecting websocket connection to the
// gateway and reports its lifecycle through callbacks.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	maxMsgSize = 1 << 20 // 1MB
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrGaveUp       = errors.New("transport: retries exhausted")
)

// Options mirror the reconnect settings the gateway client has always used:
// a one second connection timeout and at most ten attempts per outage.
type Options struct {
	ConnectTimeout time.Duration
	MaxRetries     uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout: time.Second,
		MaxRetries:     10,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Handler receives lifecycle notifications. All callbacks run on the
// connection's own goroutine, one at a time. Nil callbacks are skipped.
type Handler struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func()
}

// Conn is a websocket that redials after every drop until closed or until
// MaxRetries consecutive dial attempts fail.
type Conn struct {
	url  string
	opts Options
	h    Handler
	log  *slog.Logger

	mu      sync.Mutex
	ws      *websocket.Conn
	started bool
	closed  bool
	cancel  context.CancelFunc

	writeMu sync.Mutex
	done    chan struct{}
}

// New prepares a connection without dialing. Call Start to begin.
func New(url string, opts Options, h Handler) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		url:  url,
		opts: opts,
		h:    h,
		log:  opts.Logger.With("component", "transport"),
		done: make(chan struct{}),
	}
}

// Dial is New followed by Start.
func Dial(ctx context.Context, url string, opts Options, h Handler) *Conn {
	c := New(url, opts, h)
	c.Start(ctx)
	return c
}

// Start launches the connection loop and returns immediately. The loop
// stops when ctx is cancelled or Close is called. Only the first call has
// any effect.
func (c *Conn) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Done is closed once the connection loop has exited for good.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Send writes one text frame on the current connection.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	ws := c.ws
	closed := c.closed
	c.mu.Unlock()
	if ws == nil || closed {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close stops reconnecting and tears down the live connection. It does not
// wait for the loop to exit, so it is safe to call from a callback.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ws := c.ws
	started := c.started
	c.mu.Unlock()

	if !started {
		close(c.done)
		return
	}
	c.cancel()
	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.notifyClose()
				return
			case <-time.After(c.opts.InitialBackoff):
			}
		}

		ws, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.notifyError(fmt.Errorf("%w: %w", ErrGaveUp, err))
			}
			c.notifyClose()
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			c.notifyClose()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		c.log.Info("websocket connected", "url", redact(c.url))
		if c.h.OnOpen != nil {
			c.h.OnOpen()
		}

		stop := context.AfterFunc(ctx, func() { ws.Close() })
		err = c.readLoop(ws)
		stop()

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()

		if ctx.Err() != nil {
			c.log.Info("websocket closed")
			c.notifyClose()
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.log.Info("websocket closed by peer", "err", err)
		} else {
			c.notifyError(fmt.Errorf("read: %w", err))
		}
		c.notifyClose()
	}
}

func (c *Conn) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff

	op := func() (*websocket.Conn, error) {
		dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
		ws, _, err := c.opts.Dialer.DialContext(dctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return ws, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.opts.MaxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("dial failed, retrying", "err", err, "in", next)
		}),
	)
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	ws.SetReadLimit(maxMsgSize)
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if c.h.OnMessage != nil {
			c.h.OnMessage(message)
		}
	}
}

func (c *Conn) notifyError(err error) {
	c.log.Error("websocket error", "err", err)
	if c.h.OnError != nil {
		c.h.OnError(err)
	}
}

func (c *Conn) notifyClose() {
	if c.h.OnClose != nil {
		c.h.OnClose()
	}
}
