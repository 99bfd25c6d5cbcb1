package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/puzzlesync/internal/wire"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a peer may stay silent before the connection
	// is considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound frames.
	maxFrameSize = 1 << 20
)

// WebSocket is the primary transport: a client connection to a Relay that
// broadcasts every frame to the other members of the channel.
type WebSocket struct {
	relayURL    string
	channel     string
	participant string
	dialer      *websocket.Dialer

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

// NewWebSocket creates a client for the relay at relayURL
// (ws://host:port/ws).
func NewWebSocket(relayURL, channel, participant string) *WebSocket {
	return &WebSocket{
		relayURL:    relayURL,
		channel:     channel,
		participant: participant,
		dialer:      websocket.DefaultDialer,
	}
}

// Name identifies the transport in logs.
func (w *WebSocket) Name() string { return "websocket" }

// Connect dials the relay. Listen connects on its own if needed.
func (w *WebSocket) Connect(ctx context.Context) error {
	u, err := url.Parse(w.relayURL)
	if err != nil {
		return fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("channel", w.channel)
	q.Set("participant", w.participant)
	u.RawQuery = q.Encode()

	conn, _, err := w.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	w.mu.Lock()
	old := w.conn
	w.conn = conn
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}
	slog.Debug("connected to relay", "url", w.relayURL, "channel", w.channel)
	return nil
}

// Send writes one frame. The recipient list is ignored: the relay
// broadcasts.
func (w *WebSocket) Send(_ context.Context, out Outbound) error {
	if out.Channel != "" && out.Channel != w.channel {
		return fmt.Errorf("websocket: connected to channel %q, not %q", w.channel, out.Channel)
	}
	data, err := wire.Encode(out.Envelope)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return errors.New("websocket: not connected")
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Listen reads frames until ctx is done or the connection fails. Frames
// that do not decode are logged and skipped.
func (w *WebSocket) Listen(ctx context.Context, h Handler) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		if err := w.Connect(ctx); err != nil {
			return err
		}
		w.mu.Lock()
		conn = w.conn
		w.mu.Unlock()
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		env, err := wire.Decode(data)
		if err != nil {
			slog.Debug("dropping undecodable frame", "transport", w.Name(), "error", err)
			continue
		}
		h(env, w.Name())
	}
}

// Close closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
