package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/puzzlesync/internal/wire"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	return relay, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, relay *Relay, url, channel, participant string) (*WebSocket, <-chan wire.Envelope) {
	t.Helper()
	ws := NewWebSocket(url, channel, participant)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		ws.Close()
	})

	before := relay.Clients(channel)
	require.NoError(t, ws.Connect(ctx))
	require.Eventually(t, func() bool { return relay.Clients(channel) == before+1 }, 2*time.Second, 5*time.Millisecond)

	got := make(chan wire.Envelope, 8)
	go func() {
		_ = ws.Listen(ctx, func(env wire.Envelope, from string) {
			assert.Equal(t, "websocket", from)
			got <- env
		})
	}()
	return ws, got
}

func TestWebSocket_RelayBroadcastsToOthers(t *testing.T) {
	relay, url := startRelay(t)
	a, gotA := connect(t, relay, url, "table-1", "A")
	_, gotB := connect(t, relay, url, "table-1", "B")
	_, gotC := connect(t, relay, url, "table-1", "C")

	env := stateEnvelope("A", 1)
	require.NoError(t, a.Send(context.Background(), Outbound{Channel: "table-1", Envelope: env}))

	for _, got := range []<-chan wire.Envelope{gotB, gotC} {
		select {
		case e := <-got:
			assert.Equal(t, env, e)
		case <-time.After(2 * time.Second):
			t.Fatal("frame not relayed")
		}
	}
	select {
	case <-gotA:
		t.Fatal("relay echoed frame to its sender")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocket_ChannelsAreIsolated(t *testing.T) {
	relay, url := startRelay(t)
	a, _ := connect(t, relay, url, "table-1", "A")
	_, gotB := connect(t, relay, url, "table-2", "B")

	require.NoError(t, a.Send(context.Background(), Outbound{Envelope: stateEnvelope("A", 1)}))

	select {
	case <-gotB:
		t.Fatal("frame crossed channels")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocket_SendRequiresConnection(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/ws", "table-1", "A")
	err := ws.Send(context.Background(), Outbound{Envelope: stateEnvelope("A", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestWebSocket_SendRejectsOtherChannel(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/ws", "table-1", "A")
	err := ws.Send(context.Background(), Outbound{Channel: "table-9", Envelope: stateEnvelope("A", 1)})
	assert.Error(t, err)
}

func TestRelay_RequiresChannel(t *testing.T) {
	relay := NewRelay()
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestRelay_ClientLeaving(t *testing.T) {
	relay, url := startRelay(t)
	a, _ := connect(t, relay, url, "table-1", "A")
	connect(t, relay, url, "table-1", "B")
	require.Equal(t, 2, relay.Clients("table-1"))

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return relay.Clients("table-1") == 1 }, 2*time.Second, 5*time.Millisecond)
}
