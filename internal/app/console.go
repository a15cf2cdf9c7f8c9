package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/otaviojr/truenorth/internal/config"
)

// RunConsole subscribes to the daemon's MQTT topics and prints every event,
// for bench debugging without the web UI.
func RunConsole(configPath string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("config init: %w", err)
	}
	cfg := config.Get()

	clientID := cfg.MQTTClientIDConsole
	if clientID == "" {
		clientID = "truenorth-console"
	}
	client, err := connectMQTT(cfg.MQTTBroker, clientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	subscriptions := []struct {
		topic string
		print func(payload []byte)
	}{
		{topicOr(cfg.TopicRaw, defaultTopicRaw), func(payload []byte) {
			var p rawPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				log.Printf("console: raw unmarshal error: %v", err)
				return
			}
			fmt.Printf("[RAW ] x=%8.2f y=%8.2f z=%8.2f µT\n", p.X, p.Y, p.Z)
		}},
		{topicOr(cfg.TopicCalibration, defaultTopicCalibration), func(payload []byte) {
			var p calibrationPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				log.Printf("console: calibration unmarshal error: %v", err)
				return
			}
			fmt.Printf("[CAL ] x=[%.2f, %.2f] y=[%.2f, %.2f] z=[%.2f, %.2f]\n",
				p.MinX, p.MaxX, p.MinY, p.MaxY, p.MinZ, p.MaxZ)
		}},
		{topicOr(cfg.TopicHeading, defaultTopicHeading), func(payload []byte) {
			var p headingPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				log.Printf("console: heading unmarshal error: %v", err)
				return
			}
			fmt.Printf("[HDG ] %d°\n", p.Degrees)
		}},
		{topicOr(cfg.TopicDeclination, defaultTopicDeclination), func(payload []byte) {
			var p declinationPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				log.Printf("console: declination unmarshal error: %v", err)
				return
			}
			fmt.Printf("[DECL] %d°\n", p.Degrees)
		}},
	}

	for _, sub := range subscriptions {
		printFn := sub.print
		token := client.Subscribe(sub.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			printFn(msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", sub.topic, token.Error())
		}
		log.Printf("console: subscribed to %s", sub.topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}
