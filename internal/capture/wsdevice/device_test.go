package wsdevice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// newGateway starts a test gateway that upgrades the connection and sends
// the given binary frames, then waits for the client to go away.
func newGateway(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestAcquire_DeliversFramesInOrder(t *testing.T) {
	ts := newGateway(t, [][]byte{{1, 1}, {2, 2}, {3, 3}})
	defer ts.Close()

	dev := New(Config{URL: wsURL(ts)})
	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer stream.Close()

	var got [][]byte
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				t.Fatalf("stream closed early after %d chunks", len(got))
			}
			got = append(got, chunk)
		case <-timeout:
			t.Fatalf("timed out after %d chunks", len(got))
		}
	}
	for i, want := range []byte{1, 2, 3} {
		if got[i][0] != want {
			t.Errorf("chunk %d out of order: got %v", i, got[i])
		}
	}
}

func TestAcquire_GatewayDown(t *testing.T) {
	dev := New(Config{URL: "ws://127.0.0.1:1", HandshakeSecs: 1})
	if _, err := dev.Acquire(context.Background()); err == nil {
		t.Fatal("expected dial error for unreachable gateway")
	}
}

func TestAcquire_GatewayRefuses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device busy", http.StatusConflict)
	}))
	defer ts.Close()

	dev := New(Config{URL: wsURL(ts)})
	_, err := dev.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected refusal error")
	}
	if !strings.Contains(err.Error(), "refused") {
		t.Errorf("expected refusal wording, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	ts := newGateway(t, nil)
	defer ts.Close()

	dev := New(Config{URL: wsURL(ts)})
	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}

	// The chunk channel ends once the reader sees the closed connection.
	select {
	case _, ok := <-stream.Chunks():
		if ok {
			t.Error("expected closed chunk channel")
		}
	case <-time.After(2 * time.Second):
		t.Error("chunk channel never closed")
	}
}

func TestAcquire_ContextCanceled(t *testing.T) {
	ts := newGateway(t, nil)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev := New(Config{URL: wsURL(ts)})
	if _, err := dev.Acquire(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
