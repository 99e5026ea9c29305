// Package gatewaytest runs an in-process fake of the bot gateway's
// websocket endpoint. It performs the verifyKey handshake, records every
// frame the client sends and lets callers push events to connected clients.
package gatewaytest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 20 // 1MB
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway is a fake gateway. Configure the exported fields before the first
// client connects.
type Gateway struct {
	VerifyKey string
	Session   string

	// SkipHandshake leaves new connections without the automatic
	// {code:0, session} reply so tests can push their own control frames.
	SkipHandshake bool

	server *httptest.Server

	mu       sync.Mutex
	peers    map[*peer]bool
	queries  []url.Values
	received chan []byte
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// New starts a gateway that accepts verifyKey and hands out session.
func New(verifyKey, session string) *Gateway {
	g := &Gateway{
		VerifyKey: verifyKey,
		Session:   session,
		peers:     make(map[*peer]bool),
		received:  make(chan []byte, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/all", g.handleAll)
	g.server = httptest.NewServer(mux)
	return g
}

// URL is the http base address, the same shape users configure as the API URL.
func (g *Gateway) URL() string {
	return g.server.URL
}

// Received yields every text frame sent by any client, in arrival order.
func (g *Gateway) Received() <-chan []byte {
	return g.received
}

// Queries returns the query parameters of every accepted upgrade.
func (g *Gateway) Queries() []url.Values {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]url.Values, len(g.queries))
	copy(out, g.queries)
	return out
}

func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.peers)
}

// Push marshals v and writes it to every connected client.
func (g *Gateway) Push(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	g.PushRaw(data)
	return nil
}

// PushEvent wraps data in the {syncId, data} frame used for events.
func (g *Gateway) PushEvent(data any) error {
	return g.Push(map[string]any{"syncId": "-1", "data": data})
}

func (g *Gateway) PushRaw(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for p := range g.peers {
		select {
		case p.send <- data:
		default:
			slog.Warn("gatewaytest: peer send buffer full, dropping frame")
		}
	}
}

// DropAll closes every client connection without a close handshake.
func (g *Gateway) DropAll() {
	g.mu.Lock()
	peers := make([]*peer, 0, len(g.peers))
	for p := range g.peers {
		peers = append(peers, p)
	}
	g.mu.Unlock()
	for _, p := range peers {
		p.conn.Close()
	}
}

func (g *Gateway) Close() {
	g.DropAll()
	g.server.Close()
}

func (g *Gateway) handleAll(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gatewaytest: upgrade failed", "err", err)
		return
	}
	q := r.URL.Query()
	p := &peer{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}

	g.mu.Lock()
	g.queries = append(g.queries, q)
	g.peers[p] = true
	skip := g.SkipHandshake
	g.mu.Unlock()

	go p.writePump()

	if q.Get("verifyKey") != g.VerifyKey {
		p.send <- mustJSON(map[string]any{
			"syncId": "",
			"data":   map[string]any{"code": 1, "msg": "Auth Key错误"},
		})
	} else if !skip {
		p.send <- mustJSON(map[string]any{
			"syncId": "",
			"data":   map[string]any{"code": 0, "session": g.Session},
		})
	}

	g.readPump(p)
}

func (g *Gateway) unregister(p *peer) {
	g.mu.Lock()
	delete(g.peers, p)
	g.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}

func (g *Gateway) readPump(p *peer) {
	defer func() {
		g.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMsgSize)
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case g.received <- message:
		default:
			slog.Warn("gatewaytest: received buffer full, dropping frame")
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
