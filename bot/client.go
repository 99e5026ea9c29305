// Package bot is a client for a mirai-api-http style chat-bot gateway. It
// keeps the websocket session alive, paces outbound messages and routes
// inbound events to registered handlers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicebartender/miraibot/transport"
)

const DefaultDrainInterval = 100 * time.Millisecond

type State int

const (
	Unconnected State = iota
	Connecting
	Open
	Closed
	Errored
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder is told about every routed event and every frame written.
type Recorder interface {
	RecordInbound(eventType, syncID string, data []byte) error
	RecordOutbound(command string, target int64, frame []byte) error
}

type Config struct {
	// DrainInterval is the minimum spacing between two outbound sends.
	DrainInterval time.Duration
	SessionPolicy SessionPolicy
	// WaitForSession holds the queue while no session token is known.
	WaitForSession bool
	Transport      transport.Options
	Logger         *slog.Logger
	// OnError receives every ProtocolError and TransportError, after it
	// has been logged.
	OnError  func(error)
	Recorder Recorder
}

type Client struct {
	cfg Config
	log *slog.Logger

	session  session
	queue    *outbox
	handlers *registry

	mu        sync.Mutex
	state     State
	gen       uint64
	conn      *transport.Conn
	drainStop context.CancelFunc

	// drainMu is held by the running drain loop so a loop started by a
	// reconnect cannot overlap one that is still finishing a send.
	drainMu sync.Mutex
}

func NewClient(cfg Config) *Client {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Transport.Logger == nil {
		cfg.Transport.Logger = cfg.Logger
	}
	return &Client{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "bot"),
		queue:    newOutbox(),
		handlers: newRegistry(),
	}
}

// Open validates link and starts connecting in the background. Configuration
// problems are returned before any dial. ctx bounds the connection's lifetime.
func (c *Client) Open(ctx context.Context, link LinkConfig) error {
	wsURL, err := link.URL()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == Connecting || c.state == Open {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	old := c.conn
	c.gen++
	gen := c.gen
	c.state = Connecting
	conn := transport.New(wsURL, c.cfg.Transport, transport.Handler{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(data []byte) { c.handleMessage(gen, data) },
		OnError:   func(err error) { c.handleError(gen, err) },
		OnClose:   func() { c.handleClose(gen) },
	})
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.log.Info("connecting", "qq", link.QQ, "api", link.APIURL)
	conn.Start(ctx)
	return nil
}

// Close tears down the connection and stops draining. Queued messages stay
// queued for the next Open. Safe to call repeatedly and from handlers.
func (c *Client) Close() {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = Closed
	stop := c.takeDrainLocked()
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	conn.Close()
	c.applySessionPolicy()
	c.log.Info("closed", "pending", c.queue.len())
}

// Send queues info for delivery. It never blocks; the message goes out once
// the connection is open, carrying whatever session token is current then.
func (c *Client) Send(info SendInfo) {
	cmd := newCommand(info)
	c.queue.push(cmd)
	c.log.Debug("message queued", "command", cmd.name(), "target", cmd.target, "pending", c.queue.len())
}

// On registers h for events of type t. Handlers for the same type run in
// registration order on the connection's read goroutine.
func (c *Client) On(t EventType, h Handler) HandlerID {
	return c.handlers.add(t, h)
}

// Off removes a registration. It reports whether id was registered.
func (c *Client) Off(id HandlerID) bool {
	return c.handlers.remove(id)
}

func (c *Client) Token() string {
	return c.session.Token()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending is the number of queued, unsent messages.
func (c *Client) Pending() int {
	return c.queue.len()
}

func (c *Client) current(gen uint64) bool {
	return c.gen == gen && c.conn != nil
}

func (c *Client) handleOpen(gen uint64) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	c.state = Open
	if c.drainStop != nil {
		c.drainStop()
	}
	ctx, stop := context.WithCancel(context.Background())
	c.drainStop = stop
	conn := c.conn
	c.mu.Unlock()

	c.log.Info("connection open", "pending", c.queue.len())
	go c.drain(ctx, conn)
}

func (c *Client) handleMessage(gen uint64, data []byte) {
	c.mu.Lock()
	ok := c.current(gen)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Debug("frame received", "frame", string(data))
	c.route(data)
}

func (c *Client) handleError(gen uint64, err error) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	c.state = Errored
	stop := c.takeDrainLocked()
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.applySessionPolicy()
	c.report(&TransportError{Op: "connection", Err: err})
}

func (c *Client) handleClose(gen uint64) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	if c.state != Errored {
		c.state = Closed
	}
	stop := c.takeDrainLocked()
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.applySessionPolicy()
	c.log.Info("connection closed", "pending", c.queue.len())
}

func (c *Client) takeDrainLocked() context.CancelFunc {
	stop := c.drainStop
	c.drainStop = nil
	return stop
}

func (c *Client) applySessionPolicy() {
	if c.cfg.SessionPolicy == ClearSession && c.session.Token() != "" {
		c.session.set("")
		c.log.Info("session cleared")
	}
}

// drain sends queued commands one at a time, at most one per DrainInterval.
// The first send waits one interval after open so the handshake reply can
// land first.
func (c *Client) drain(ctx context.Context, conn *transport.Conn) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	interval := c.cfg.DrainInterval
	last := time.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if wait := interval - time.Since(last); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}

		cmd, ok := c.queue.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-c.queue.notify:
				continue
			}
		}
		if c.cfg.WaitForSession && c.session.Token() == "" {
			last = time.Now()
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if !c.sendCommand(conn, cmd) {
			<-ctx.Done()
			return
		}
		c.queue.pop()
		last = time.Now()
	}
}

// sendCommand reports whether the command counts as attempted. Only a send
// that never reached the socket leaves it queued.
func (c *Client) sendCommand(conn *transport.Conn, cmd command) bool {
	data, err := cmd.encode(c.session.Token())
	if err != nil {
		c.report(fmt.Errorf("encode %s: %w", cmd.name(), err))
		return true
	}
	if err := conn.Send(data); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return false
		}
		c.report(&TransportError{Op: cmd.name(), Err: err})
		return true
	}

	c.log.Debug("message sent", "command", cmd.name(), "target", cmd.target)
	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.RecordOutbound(cmd.name(), cmd.target, data); err != nil {
			c.log.Warn("record outbound failed", "err", err)
		}
	}
	return true
}

func (c *Client) route(raw []byte) {
	f, err := classify(raw)
	if err != nil {
		c.report(err)
		return
	}

	switch f.kind {
	case kindControl:
		if err := c.session.apply(f, raw); err != nil {
			c.report(err)
			return
		}
		if f.session != "" {
			c.log.Info("session established")
		}
	case kindEvent:
		evt := Event{Type: f.event, SyncID: f.syncID, Data: f.data}
		if c.cfg.Recorder != nil {
			if err := c.cfg.Recorder.RecordInbound(string(evt.Type), evt.SyncID, evt.Data); err != nil {
				c.log.Warn("record inbound failed", "err", err)
			}
		}
		n := c.handlers.dispatch(evt, c.report)
		c.log.Debug("event dispatched", "type", evt.Type, "handlers", n)
	}
}

func (c *Client) report(err error) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		c.log.Warn("protocol error", "code", perr.Code, "reason", perr.Reason, "payload", string(perr.Payload))
	} else {
		c.log.Error("client error", "err", err)
	}
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}
