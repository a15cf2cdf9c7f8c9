package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsEvent is the frame pushed to websocket clients for every sensor event.
type wsEvent struct {
	Type    string      `json:"type"` // raw, calibration, heading
	Payload interface{} `json:"payload"`
}

// webState caches the latest values for the JSON API and fans events out to
// connected websocket clients.
type webState struct {
	mu          sync.RWMutex
	lastRaw     *mag.Vector3
	lastBounds  *mag.CalibratedChanged
	lastHeading *int

	clients map[*websocket.Conn]struct{}
}

func newWebState() *webState {
	return &webState{clients: make(map[*websocket.Conn]struct{})}
}

// handleEvent is registered as a sensor event handler.
func (w *webState) handleEvent(e mag.Event) {
	var frame wsEvent
	w.mu.Lock()
	switch ev := e.(type) {
	case mag.RawChanged:
		s := ev.Sample
		w.lastRaw = &s
		frame = wsEvent{Type: "raw", Payload: s}
	case mag.CalibratedChanged:
		b := ev
		w.lastBounds = &b
		frame = wsEvent{Type: "calibration", Payload: b}
	case mag.HeadingChanged:
		deg := ev.Degrees
		w.lastHeading = &deg
		frame = wsEvent{Type: "heading", Payload: ev}
	default:
		w.mu.Unlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(w.clients))
	for c := range w.clients {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(frame); err != nil {
			log.Printf("web: websocket write: %v", err)
			w.drop(c)
		}
	}
}

func (w *webState) add(c *websocket.Conn) {
	w.mu.Lock()
	w.clients[c] = struct{}{}
	w.mu.Unlock()
}

func (w *webState) drop(c *websocket.Conn) {
	w.mu.Lock()
	delete(w.clients, c)
	w.mu.Unlock()
	c.Close()
}

type statusResponse struct {
	Raw     *mag.Vector3           `json:"raw,omitempty"`
	Bounds  *mag.CalibratedChanged `json:"bounds,omitempty"`
	Heading *int                   `json:"heading,omitempty"`
}

// newWebMux routes the JSON status API, the live websocket feed, the
// Prometheus metrics endpoint and the static UI.
func newWebMux(state *webState) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(rw http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		resp := statusResponse{
			Raw:     state.lastRaw,
			Bounds:  state.lastBounds,
			Heading: state.lastHeading,
		}
		state.mu.RUnlock()

		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(resp); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		state.add(conn)
		// Reads are discarded; the connection exists to push events. A read
		// error means the client went away.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					state.drop(conn)
					return
				}
			}
		}()
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	return mux
}

// runWebServer serves the web mux on the given port.
func runWebServer(port int, state *webState) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, newWebMux(state))
}
