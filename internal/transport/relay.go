package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/puzzlesync/internal/wire"
)

// DefaultClientBuffer is the number of frames queued per relay client
// before frames to it are dropped.
const DefaultClientBuffer = 256

// Relay is the hub behind the WebSocket transport. Clients connect to
// /ws?channel=<name>&participant=<id>; every frame a client sends is
// forwarded to the other clients of the same channel.
//
// A slow client never blocks the others: when its queue is full, frames to
// it are dropped. The protocol tolerates loss.
type Relay struct {
	upgrader websocket.Upgrader
	buffer   int

	mu       sync.Mutex
	channels map[string]map[*relayClient]struct{}
}

type relayClient struct {
	conn        *websocket.Conn
	channel     string
	participant string
	send        chan []byte
}

// NewRelay creates a relay with the default client buffer.
func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		buffer:   DefaultClientBuffer,
		channels: make(map[string]map[*relayClient]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	channel := req.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		slog.Warn("relay upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c := &relayClient{
		conn:        conn,
		channel:     channel,
		participant: req.URL.Query().Get("participant"),
		send:        make(chan []byte, r.buffer),
	}
	r.register(c)
	go r.writePump(c)
	r.readPump(c)
}

// Clients returns the number of clients connected to channel.
func (r *Relay) Clients(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channel])
}

func (r *Relay) register(c *relayClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[c.channel]
	if !ok {
		members = make(map[*relayClient]struct{})
		r.channels[c.channel] = members
	}
	members[c] = struct{}{}
	slog.Info("relay client joined", "channel", c.channel, "participant", c.participant, "clients", len(members))
}

func (r *Relay) unregister(c *relayClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.channels[c.channel]
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	close(c.send)
	if len(members) == 0 {
		delete(r.channels, c.channel)
	}
	slog.Info("relay client left", "channel", c.channel, "participant", c.participant)
}

// broadcast queues data for every other client of the channel.
func (r *Relay) broadcast(from *relayClient, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.channels[from.channel] {
		if c == from {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("relay client queue full, dropping frame", "channel", c.channel, "participant", c.participant)
		}
	}
}

func (r *Relay) readPump(c *relayClient) {
	defer func() {
		r.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("relay read failed", "participant", c.participant, "error", err)
			}
			return
		}
		if _, err := wire.Decode(data); err != nil {
			slog.Debug("relay dropping undecodable frame", "participant", c.participant, "error", err)
			continue
		}
		r.broadcast(c, data)
	}
}

func (r *Relay) writePump(c *relayClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
