package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/otaviojr/truenorth/internal/mag"
)

func TestStatusEndpointEmpty(t *testing.T) {
	srv := httptest.NewServer(newWebMux(newWebState()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Raw != nil || status.Bounds != nil || status.Heading != nil {
		t.Errorf("fresh status = %+v, want all nil", status)
	}
}

func TestStatusEndpointReflectsEvents(t *testing.T) {
	state := newWebState()
	srv := httptest.NewServer(newWebMux(state))
	defer srv.Close()

	state.handleEvent(mag.RawChanged{Sample: mag.Vector3{X: 1, Y: 2, Z: 3}})
	state.handleEvent(mag.CalibratedChanged{MaxX: 10, MinX: -10})
	state.handleEvent(mag.HeadingChanged{Degrees: 90})

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Raw == nil || status.Raw.X != 1 || status.Raw.Y != 2 || status.Raw.Z != 3 {
		t.Errorf("raw = %+v, want (1, 2, 3)", status.Raw)
	}
	if status.Bounds == nil || status.Bounds.MaxX != 10 || status.Bounds.MinX != -10 {
		t.Errorf("bounds = %+v", status.Bounds)
	}
	if status.Heading == nil || *status.Heading != 90 {
		t.Errorf("heading = %v, want 90", status.Heading)
	}
}

func TestWebSocketPushesEvents(t *testing.T) {
	state := newWebState()
	srv := httptest.NewServer(newWebMux(state))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	// The server registers the client inside the upgrade handler; give it a
	// moment before pushing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		state.mu.RLock()
		n := len(state.clients)
		state.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	state.handleEvent(mag.HeadingChanged{Degrees: 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsEvent
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Type != "heading" {
		t.Errorf("frame type = %q, want heading", frame.Type)
	}
	payload, ok := frame.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload = %T", frame.Payload)
	}
	if deg, _ := payload["degrees"].(float64); deg != 42 {
		t.Errorf("payload degrees = %v, want 42", payload["degrees"])
	}
}
