package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 10 * time.Second

// publisher is the part of mqtt.Client the Publisher needs
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher pushes device variables to an MQTT broker
type Publisher struct {
	client *foxess.Client
	cfg    Config
	mqtt   publisher
}

type variableState struct {
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

type deviceState struct {
	Serial      string                    `json:"serial"`
	Type        string                    `json:"type"`
	StationName string                    `json:"station_name,omitempty"`
	Time        time.Time                 `json:"time"`
	Variables   map[string]*variableState `json:"variables"`
}

// connectMQTT connects to the configured broker and marks the publisher
// online via its last will topic
func connectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(statusTopic(cfg.TopicPrefix), "offline", 1, true)
	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("Connected to MQTT broker %s", cfg.Broker)
		c.Publish(statusTopic(cfg.TopicPrefix), 1, true, "online")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("Lost connection to MQTT broker: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// NewPublisher creates a publisher over an MQTT client
func NewPublisher(client *foxess.Client, cfg Config, mqttClient publisher) *Publisher {
	return &Publisher{client: client, cfg: cfg, mqtt: mqttClient}
}

// Run publishes once and then every interval until ctx is done
func (p *Publisher) Run(ctx context.Context) {
	p.publishAll(ctx)

	ticker := time.NewTicker(p.cfg.MQTT.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishAll(ctx)
		}
	}
}

// Close marks the publisher offline. The broker drops the last will on a
// clean disconnect, so this must run before Disconnect.
func (p *Publisher) Close() error {
	topic := statusTopic(p.cfg.MQTT.TopicPrefix)
	token := p.mqtt.Publish(topic, 1, true, "offline")
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) publishAll(ctx context.Context) {
	devices, err := selectedDevices(ctx, p.client, p.cfg)
	if err != nil {
		log.Printf("Error listing devices: %v", err)
		return
	}

	for _, device := range devices {
		if err := refreshDevice(ctx, device, p.cfg.Variables); err != nil {
			log.Printf("Error refreshing %s: %v", device, err)
			continue
		}
		if err := p.publishDevice(device, time.Now()); err != nil {
			log.Printf("Error publishing %s: %v", device, err)
		}
	}
}

func (p *Publisher) publishDevice(device *foxess.Device, now time.Time) error {
	payload, err := json.Marshal(buildDeviceState(device, now))
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	topic := stateTopic(p.cfg.MQTT.TopicPrefix, device.Serial)
	token := p.mqtt.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	log.WithFields(log.Fields{"topic": topic, "bytes": len(payload)}).Debug("Published device state")
	return nil
}

// buildDeviceState includes every known variable; unfetched ones are null
func buildDeviceState(device *foxess.Device, now time.Time) deviceState {
	state := deviceState{
		Serial:      device.Serial,
		Type:        device.Name,
		StationName: device.StationName,
		Time:        now.UTC(),
		Variables:   make(map[string]*variableState),
	}
	for name, reading := range device.AllVariables() {
		if reading == nil {
			state.Variables[name] = nil
			continue
		}
		state.Variables[name] = &variableState{Value: reading.Value, Unit: reading.Unit}
	}
	return state
}

func statusTopic(prefix string) string {
	return prefix + "/status"
}

func stateTopic(prefix, serial string) string {
	return fmt.Sprintf("%s/%s/state", prefix, serial)
}
