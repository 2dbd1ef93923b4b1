package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-core/domain/event"
)

// dialTestConn spins up a websocket echo-sink server and returns the client
// side of a live connection.
func dialTestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverConn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := serverConn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClient_Consume_After_Close_Fails_Instead_Of_Panicking(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := NewClient(dialTestConn(t), nil, 4, slog.Default())

	req.NoError(client.Consume(ctx, event.StopTyping{SenderID: "anon-1"}))
	req.NoError(client.Close())

	// A publisher holding a stale snapshot of this sink gets an error back
	req.Error(client.Consume(ctx, event.StopTyping{SenderID: "anon-1"}))

	// Closing twice is a no-op
	req.NoError(client.Close())
}

func TestClient_Broadcast_Racing_A_Disconnect_Never_Panics(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := NewClient(dialTestConn(t), nil, 1, slog.Default())

	// Given one goroutine publishing while another tears the client down
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = client.Consume(ctx, event.StopTyping{SenderID: "anon-1"})
		}
	}()
	go func() {
		defer wg.Done()
		_ = client.Close()
	}()
	wg.Wait()

	req.Error(client.Consume(ctx, event.StopTyping{SenderID: "anon-1"}))
}

func TestClient_Slow_Connection_Drops_Events_With_An_Error(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	// Write pump never started, so one event saturates the buffer
	client := NewClient(dialTestConn(t), nil, 1, slog.Default())

	req.NoError(client.Consume(ctx, event.StopTyping{SenderID: "anon-1"}))
	req.Error(client.Consume(ctx, event.StopTyping{SenderID: "anon-1"}))
}
