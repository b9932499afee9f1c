package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// MockMicGateway simulates the microphone gateway: a WebSocket endpoint
// that streams scripted PCM frames to the first reader and refuses further
// connections while one is held, matching the real gateway's exclusivity.
type MockMicGateway struct {
	Server *httptest.Server

	mu     sync.Mutex
	frames [][]byte
	held   bool
	deny   bool
}

var micUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewMockMicGateway starts a gateway that will stream the given frames to
// an acquiring client. Callers own Close.
func NewMockMicGateway(frames ...[]byte) *MockMicGateway {
	g := &MockMicGateway{frames: frames}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	return g
}

// URL returns the ws:// endpoint of the gateway.
func (g *MockMicGateway) URL() string {
	return "ws" + strings.TrimPrefix(g.Server.URL, "http")
}

// Close shuts the gateway down.
func (g *MockMicGateway) Close() { g.Server.Close() }

// Deny makes subsequent connection attempts fail with 403, simulating a
// revoked device permission.
func (g *MockMicGateway) Deny(deny bool) {
	g.mu.Lock()
	g.deny = deny
	g.mu.Unlock()
}

func (g *MockMicGateway) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.deny {
		g.mu.Unlock()
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}
	if g.held {
		g.mu.Unlock()
		http.Error(w, "device busy", http.StatusConflict)
		return
	}
	g.held = true
	frames := g.frames
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.held = false
		g.mu.Unlock()
	}()

	conn, err := micUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, f := range frames {
		if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
			return
		}
	}
	// Hold the stream open until the client releases it.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
