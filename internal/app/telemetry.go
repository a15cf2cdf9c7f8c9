package app

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/otaviojr/truenorth/internal/config"
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/otaviojr/truenorth/internal/params"
)

// Default MQTT topics, overridable through the config file.
const (
	defaultTopicRaw            = "truenorth/mag/raw"
	defaultTopicCalibration    = "truenorth/mag/calibration"
	defaultTopicHeading        = "truenorth/heading"
	defaultTopicDeclination    = "truenorth/declination"
	defaultTopicDeclinationSet = "truenorth/declination/set"
)

// JSON schemas published over MQTT. Time is RFC3339.
type rawPayload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Time string  `json:"time"`
}

type calibrationPayload struct {
	MaxX float64 `json:"max_x"`
	MinX float64 `json:"min_x"`
	MaxY float64 `json:"max_y"`
	MinY float64 `json:"min_y"`
	MaxZ float64 `json:"max_z"`
	MinZ float64 `json:"min_z"`
	Time string  `json:"time"`
}

type headingPayload struct {
	Degrees int    `json:"degrees"`
	Time    string `json:"time"`
}

type declinationPayload struct {
	Degrees int    `json:"degrees"`
	Time    string `json:"time"`
}

func topicOr(topic, fallback string) string {
	if topic == "" {
		return fallback
	}
	return topic
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Printf("app: connected to MQTT broker at %s", broker)
	return client, nil
}

// publishEvents returns a sensor event handler that mirrors every event to
// its MQTT topic. Publishes are fire-and-forget; the sampling loop must not
// block on the network.
func publishEvents(client mqtt.Client, cfg *config.Config) mag.Handler {
	topicRaw := topicOr(cfg.TopicRaw, defaultTopicRaw)
	topicCal := topicOr(cfg.TopicCalibration, defaultTopicCalibration)
	topicHeading := topicOr(cfg.TopicHeading, defaultTopicHeading)

	return func(e mag.Event) {
		now := time.Now().UTC().Format(time.RFC3339)
		var topic string
		var payload interface{}
		switch ev := e.(type) {
		case mag.RawChanged:
			topic = topicRaw
			payload = rawPayload{X: ev.Sample.X, Y: ev.Sample.Y, Z: ev.Sample.Z, Time: now}
		case mag.CalibratedChanged:
			topic = topicCal
			payload = calibrationPayload{
				MaxX: ev.MaxX, MinX: ev.MinX,
				MaxY: ev.MaxY, MinY: ev.MinY,
				MaxZ: ev.MaxZ, MinZ: ev.MinZ,
				Time: now,
			}
		case mag.HeadingChanged:
			topic = topicHeading
			payload = headingPayload{Degrees: ev.Degrees, Time: now}
		default:
			return
		}
		b, err := json.Marshal(payload)
		if err != nil {
			log.Printf("app: marshaling %s payload: %v", topic, err)
			return
		}
		client.Publish(topic, 0, false, b)
	}
}

// watchDeclination subscribes to the declination set-topic (the remote
// configuration link) and republishes the current value whenever it
// changes, including the initial load from storage.
func watchDeclination(client mqtt.Client, cfg *config.Config, declination *params.Var[int]) error {
	setTopic := topicOr(cfg.TopicDeclinationSet, defaultTopicDeclinationSet)
	pubTopic := topicOr(cfg.TopicDeclination, defaultTopicDeclination)

	declination.AddHandler(func(value int) {
		b, err := json.Marshal(declinationPayload{
			Degrees: value,
			Time:    time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			log.Printf("app: marshaling declination: %v", err)
			return
		}
		client.Publish(pubTopic, 0, true, b)
		log.Printf("app: declination changed to %d", value)
	})

	token := client.Subscribe(setTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		value, err := strconv.Atoi(string(msg.Payload()))
		if err != nil {
			log.Printf("app: bad declination payload %q: %v", msg.Payload(), err)
			return
		}
		value %= 360
		if err := declination.Set(value); err != nil {
			log.Printf("app: setting declination: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", setTopic, token.Error())
	}
	log.Printf("app: subscribed to %s", setTopic)
	return nil
}
