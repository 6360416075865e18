package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func startServer(t *testing.T, hub *Hub) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("topic"))
	}))
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	return "ws" + srv.URL[len("http"):]
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, topic string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(topic) != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers on %s", n, topic)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastTopic(t *testing.T) {
	t.Parallel()

	hub := newTestHub(t)
	wsURL := startServer(t, hub)

	subscriber := dial(t, wsURL+"?topic=order:1")
	other := dial(t, wsURL+"?topic=order:2")
	waitForSubscribers(t, hub, "order:1", 1)
	waitForSubscribers(t, hub, "order:2", 1)

	msg := []byte(`{"type":"payment_status","status":"approved"}`)
	hub.BroadcastTopic("order:1", msg)

	readCh := make(chan []byte, 1)
	go func() {
		_, data, err := subscriber.ReadMessage()
		if err != nil {
			t.Errorf("read message: %v", err)
			return
		}
		readCh <- data
	}()

	select {
	case got := <-readCh:
		if string(got) != string(msg) {
			t.Fatalf("expected %q, got %q", msg, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("subscriber of another topic must not receive the message")
	}
}

func TestHub_UnsubscribesOnClose(t *testing.T) {
	t.Parallel()

	hub := newTestHub(t)
	wsURL := startServer(t, hub)

	conn := dial(t, wsURL+"?topic=order:9")
	waitForSubscribers(t, hub, "order:9", 1)

	_ = conn.Close()
	waitForSubscribers(t, hub, "order:9", 0)
}

func TestHub_BroadcastDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	for i := 0; i < broadcastQueue+10; i++ {
		hub.BroadcastTopic("order:1", []byte("x"))
	}
	if len(hub.broadcast) != broadcastQueue {
		t.Fatalf("expected full queue of %d, got %d", broadcastQueue, len(hub.broadcast))
	}
}

func TestHub_ServeWSReturnsAfterRunStops(t *testing.T) {
	t.Parallel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}
	served := make(chan error, 2)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served <- hub.ServeWS(w, r, "order:7")
	}))
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	wsURL := "ws" + srv.URL[len("http"):]

	dial(t, wsURL)
	waitForSubscribers(t, hub, "order:7", 1)
	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ServeWS blocked after the hub stopped")
	}

	// New subscriptions are refused once the hub is gone.
	dial(t, wsURL)
	select {
	case err := <-served:
		if !errors.Is(err, ErrHubStopped) {
			t.Fatalf("expected ErrHubStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ServeWS blocked registering on a stopped hub")
	}
}
