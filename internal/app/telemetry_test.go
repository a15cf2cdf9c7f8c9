package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/otaviojr/truenorth/internal/config"
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/otaviojr/truenorth/internal/params"
)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publication struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeMQTT records publishes and subscriptions. Only the methods the code
// under test calls are implemented; the embedded interface covers the rest.
type fakeMQTT struct {
	mqtt.Client
	mu        sync.Mutex
	published []publication
	subs      map[string]mqtt.MessageHandler
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, publication{topic: topic, retained: retained, payload: b})
	return fakeToken{}
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = callback
	return fakeToken{}
}

func (f *fakeMQTT) publications() []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publication, len(f.published))
	copy(out, f.published)
	return out
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

func TestPublishEventsRoutesToDefaultTopics(t *testing.T) {
	client := newFakeMQTT()
	h := publishEvents(client, &config.Config{})

	h(mag.RawChanged{Sample: mag.Vector3{X: 1.5, Y: -2.5, Z: 3}})
	h(mag.CalibratedChanged{MaxX: 10, MinX: -10, MaxY: 8, MinY: -8, MaxZ: 6, MinZ: -6})
	h(mag.HeadingChanged{Degrees: 270})

	pubs := client.publications()
	if len(pubs) != 3 {
		t.Fatalf("published %d messages, want 3", len(pubs))
	}

	if pubs[0].topic != defaultTopicRaw {
		t.Errorf("raw topic = %q, want %q", pubs[0].topic, defaultTopicRaw)
	}
	var raw rawPayload
	if err := json.Unmarshal(pubs[0].payload, &raw); err != nil {
		t.Fatalf("raw payload: %v", err)
	}
	if raw.X != 1.5 || raw.Y != -2.5 || raw.Z != 3 {
		t.Errorf("raw payload = %+v", raw)
	}
	if _, err := time.Parse(time.RFC3339, raw.Time); err != nil {
		t.Errorf("raw time %q not RFC3339: %v", raw.Time, err)
	}

	if pubs[1].topic != defaultTopicCalibration {
		t.Errorf("calibration topic = %q, want %q", pubs[1].topic, defaultTopicCalibration)
	}
	var cal calibrationPayload
	if err := json.Unmarshal(pubs[1].payload, &cal); err != nil {
		t.Fatalf("calibration payload: %v", err)
	}
	if cal.MaxX != 10 || cal.MinZ != -6 {
		t.Errorf("calibration payload = %+v", cal)
	}

	if pubs[2].topic != defaultTopicHeading {
		t.Errorf("heading topic = %q, want %q", pubs[2].topic, defaultTopicHeading)
	}
	var hdg headingPayload
	if err := json.Unmarshal(pubs[2].payload, &hdg); err != nil {
		t.Fatalf("heading payload: %v", err)
	}
	if hdg.Degrees != 270 {
		t.Errorf("heading payload = %+v, want 270", hdg)
	}
}

func TestPublishEventsHonorsConfiguredTopics(t *testing.T) {
	client := newFakeMQTT()
	cfg := &config.Config{TopicHeading: "boat/hdg"}
	h := publishEvents(client, cfg)

	h(mag.HeadingChanged{Degrees: 10})
	pubs := client.publications()
	if len(pubs) != 1 || pubs[0].topic != "boat/hdg" {
		t.Errorf("published to %+v, want boat/hdg", pubs)
	}
}

func TestWatchDeclinationRoundTrip(t *testing.T) {
	client := newFakeMQTT()
	declination := params.New(0)

	if err := watchDeclination(client, &config.Config{}, declination); err != nil {
		t.Fatalf("watchDeclination: %v", err)
	}
	cb, ok := client.subs[defaultTopicDeclinationSet]
	if !ok {
		t.Fatalf("no subscription on %q", defaultTopicDeclinationSet)
	}

	// A remote set of 375° normalizes and republishes retained.
	cb(client, fakeMessage{payload: []byte("375")})
	if got := declination.Get(); got != 15 {
		t.Errorf("declination = %d, want 15", got)
	}
	pubs := client.publications()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	if pubs[0].topic != defaultTopicDeclination || !pubs[0].retained {
		t.Errorf("publication = %+v, want retained on %q", pubs[0], defaultTopicDeclination)
	}
	var payload declinationPayload
	if err := json.Unmarshal(pubs[0].payload, &payload); err != nil {
		t.Fatalf("declination payload: %v", err)
	}
	if payload.Degrees != 15 {
		t.Errorf("declination payload = %+v, want 15", payload)
	}
}

func TestWatchDeclinationRejectsBadPayload(t *testing.T) {
	client := newFakeMQTT()
	declination := params.New(7)

	if err := watchDeclination(client, &config.Config{}, declination); err != nil {
		t.Fatalf("watchDeclination: %v", err)
	}
	client.subs[defaultTopicDeclinationSet](client, fakeMessage{payload: []byte("north-ish")})

	if got := declination.Get(); got != 7 {
		t.Errorf("declination = %d, want unchanged 7", got)
	}
	if pubs := client.publications(); len(pubs) != 0 {
		t.Errorf("bad payload still published %+v", pubs)
	}
}

func TestTopicOr(t *testing.T) {
	if got := topicOr("", "fallback"); got != "fallback" {
		t.Errorf("topicOr empty = %q", got)
	}
	if got := topicOr("custom", "fallback"); got != "custom" {
		t.Errorf("topicOr custom = %q", got)
	}
}
