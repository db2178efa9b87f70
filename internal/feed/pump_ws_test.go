package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHandleMessageDispatchesTick(t *testing.T) {
	client := NewWSClient("wss://example.invalid")
	var got Tick
	client.OnTick(func(tick Tick) { got = tick })

	client.handleMessage([]byte(`{"symbol":"SOL","price":"150.25","timestamp":"2026-03-10T12:00:00Z"}`))

	if got.Symbol != "SOL" {
		t.Fatalf("symbol = %q, want SOL", got.Symbol)
	}
	if got.Price.String() != "150.25" {
		t.Fatalf("price = %s, want 150.25", got.Price)
	}
	want := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, want)
	}
}

func TestHandleMessageDropsBadPayloads(t *testing.T) {
	client := NewWSClient("wss://example.invalid")
	calls := 0
	client.OnTick(func(Tick) { calls++ })

	for _, raw := range []string{
		`not json`,
		`{"symbol":"","price":"1.0"}`,
		`{"symbol":"SOL"}`,
		`{"symbol":"SOL","price":"-5"}`,
		`{"symbol":"SOL","price":"0"}`,
	} {
		client.handleMessage([]byte(raw))
	}

	if calls != 0 {
		t.Fatalf("handler called %d times, want 0", calls)
	}
}

// newFeedServer serves a WebSocket endpoint that accepts connections and
// drains whatever the client sends.
func newFeedServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReconnectStopsPreviousPingLoop(t *testing.T) {
	srv, url := newFeedServer(t)
	defer srv.Close()

	client := NewWSClient(url)
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	client.mu.RLock()
	first := client.pingStop
	client.mu.RUnlock()

	// A reconnect replaces the connection; the old ping loop must not keep
	// pinging the new one.
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	select {
	case <-first:
	default:
		t.Fatal("ping loop of the replaced connection was not stopped")
	}

	client.mu.RLock()
	second := client.pingStop
	client.mu.RUnlock()
	select {
	case <-second:
		t.Fatal("ping loop of the live connection was stopped")
	default:
	}
}
