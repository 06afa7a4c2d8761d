package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func hubServer(hub *Hub) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.handleWS)
	return httptest.NewServer(mux)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := hubServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the server side to register the client.
	for i := 0; hub.Count() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != 1 {
		t.Fatalf("hub count = %d, want 1", hub.Count())
	}

	state := State{Weight: 12.3456, Delta: 0.0011, Stable: true, Timestamp: time.Now()}
	hub.Broadcast(Message{Type: "weight", Data: state})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg struct {
		Type string `json:"type"`
		Data State  `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != "weight" {
		t.Errorf("type = %q, want weight", msg.Type)
	}
	if msg.Data.Weight != 12.3456 {
		t.Errorf("weight = %f, want 12.3456", msg.Data.Weight)
	}
	if !msg.Data.Stable {
		t.Error("expected stable reading")
	}
}

func TestHub_Remove(t *testing.T) {
	hub := NewHub()
	srv := hubServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	for i := 0; hub.Count() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()
	for i := 0; hub.Count() > 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != 0 {
		t.Errorf("hub count = %d after disconnect, want 0", hub.Count())
	}
}
